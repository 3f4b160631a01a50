package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/screenlag/internal/analysis"
	"github.com/banshee-data/screenlag/internal/timestr"
)

// Run identifies one persisted analysis run.
type Run struct {
	RunID     string
	VideoName string
	FPS       float64
	FrameStep int
	CreatedAt time.Time
}

// FrameStore persists runs and their frame records.
type FrameStore struct {
	db *DB
}

// NewFrameStore creates a FrameStore over db.
func NewFrameStore(db *DB) *FrameStore {
	return &FrameStore{db: db}
}

// CreateRun inserts a new run row. An empty RunID gets a generated UUID.
func (s *FrameStore) CreateRun(run Run) (Run, error) {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	err := retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO runs (run_id, video_name, fps, frame_step, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			run.RunID, run.VideoName, run.FPS, run.FrameStep, run.CreatedAt.UnixNano())
		return err
	})
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// InsertRecords appends frame records to a run in one transaction.
func (s *FrameStore) InsertRecords(runID string, records []analysis.FrameRecord) error {
	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.Prepare(`
			INSERT INTO frames (
				run_id, frame_idx, video_time_s,
				app_time_str, app_time_ms,
				real_time_str, real_time_ms,
				delay_ms, status, error_reason
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range records {
			_, err := stmt.Exec(
				runID, r.FrameIdx, r.VideoTimeS,
				labelStr(r.AppLabel), labelMsNull(r.AppLabel),
				labelStr(r.RealLabel), labelMsNull(r.RealLabel),
				delayNull(r), string(r.Status), r.ErrorReason)
			if err != nil {
				return fmt.Errorf("insert frame %d: %w", r.FrameIdx, err)
			}
		}
		return tx.Commit()
	})
}

// Records returns a run's frame records ordered by frame index.
func (s *FrameStore) Records(runID string) ([]analysis.FrameRecord, error) {
	var videoName string
	err := s.db.QueryRow(`SELECT video_name FROM runs WHERE run_id = ?`, runID).Scan(&videoName)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}

	rows, err := s.db.Query(`
		SELECT frame_idx, video_time_s,
		       app_time_str, app_time_ms,
		       real_time_str, real_time_ms,
		       delay_ms, status, error_reason
		FROM frames WHERE run_id = ? ORDER BY frame_idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	var records []analysis.FrameRecord
	for rows.Next() {
		var (
			r                    analysis.FrameRecord
			appStr, realStr      string
			appMs, realMs, delay sql.NullInt64
		)
		if err := rows.Scan(&r.FrameIdx, &r.VideoTimeS,
			&appStr, &appMs, &realStr, &realMs,
			&delay, &r.Status, &r.ErrorReason); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		r.VideoName = videoName
		r.AppLabel = scanLabel(appStr, appMs)
		r.RealLabel = scanLabel(realStr, realMs)
		if delay.Valid {
			r.DelayMs = delay.Int64
			r.HasDelay = true
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Runs lists all runs, newest first.
func (s *FrameStore) Runs() ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT run_id, video_name, fps, frame_step, created_at
		FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r  Run
			ns int64
		)
		if err := rows.Scan(&r.RunID, &r.VideoName, &r.FPS, &r.FrameStep, &ns); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.CreatedAt = time.Unix(0, ns)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and its frames.
func (s *FrameStore) DeleteRun(runID string) error {
	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`DELETE FROM frames WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("delete frames: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM runs WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		return tx.Commit()
	})
}

func labelStr(l timestr.Label) string {
	if l.OK {
		return l.Canonical
	}
	return l.Raw
}

func labelMsNull(l timestr.Label) any {
	if !l.OK {
		return nil
	}
	return l.Ms
}

func delayNull(r analysis.FrameRecord) any {
	if !r.HasDelay {
		return nil
	}
	return r.DelayMs
}

func scanLabel(text string, ms sql.NullInt64) timestr.Label {
	l := timestr.Label{Raw: text}
	if ms.Valid {
		l.Canonical = text
		l.Ms = ms.Int64
		l.OK = true
	}
	return l
}
