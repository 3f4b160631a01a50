package analysis

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/banshee-data/screenlag/internal/timestr"
)

var recordHeader = []string{
	"video_name", "frame_idx", "video_time_s",
	"app_time_str", "app_time_ms",
	"real_time_str", "real_time_ms",
	"delay_ms", "status", "error_reason",
}

// WriteRecords writes the per-frame CSV. Absent labels and delays become
// empty cells.
func WriteRecords(w io.Writer, records []FrameRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(recordHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		if err := cw.Write(recordRow(r)); err != nil {
			return fmt.Errorf("write frame %d: %w", r.FrameIdx, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveRecords writes the per-frame CSV to path.
func SaveRecords(path string, records []FrameRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer f.Close()
	return WriteRecords(f, records)
}

func recordRow(r FrameRecord) []string {
	row := []string{
		r.VideoName,
		strconv.Itoa(r.FrameIdx),
		strconv.FormatFloat(r.VideoTimeS, 'f', 3, 64),
		labelText(r.AppLabel), labelMs(r.AppLabel),
		labelText(r.RealLabel), labelMs(r.RealLabel),
		"", string(r.Status), r.ErrorReason,
	}
	if r.HasDelay {
		row[7] = strconv.FormatInt(r.DelayMs, 10)
	}
	return row
}

func labelText(l timestr.Label) string {
	if l.OK {
		return l.Canonical
	}
	return l.Raw
}

func labelMs(l timestr.Label) string {
	if !l.OK {
		return ""
	}
	return strconv.FormatInt(l.Ms, 10)
}

// ReadRecords parses a per-frame CSV produced by WriteRecords. Rows that do
// not parse are skipped.
func ReadRecords(r io.Reader) ([]FrameRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(recordHeader)

	if _, err := cr.Read(); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var records []FrameRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		idx, err := strconv.Atoi(row[1])
		if err != nil {
			continue
		}
		vt, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			continue
		}
		rec := FrameRecord{
			VideoName:   row[0],
			FrameIdx:    idx,
			VideoTimeS:  vt,
			AppLabel:    readLabel(row[3], row[4]),
			RealLabel:   readLabel(row[5], row[6]),
			Status:      Status(row[8]),
			ErrorReason: row[9],
		}
		if row[7] != "" {
			if v, err := strconv.ParseInt(row[7], 10, 64); err == nil {
				rec.DelayMs = v
				rec.HasDelay = true
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// LoadRecords reads a per-frame CSV file at path.
func LoadRecords(path string) ([]FrameRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	records, err := ReadRecords(f)
	if err != nil {
		return nil, fmt.Errorf("read report %s: %w", path, err)
	}
	return records, nil
}

func readLabel(text, ms string) timestr.Label {
	l := timestr.Label{Raw: text}
	if ms == "" {
		return l
	}
	v, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return l
	}
	l.Canonical = text
	l.Ms = v
	l.OK = true
	return l
}
