// Package netlog reconciles external network-ping logs against the video's
// relative timeline: loading monitor CSVs, calibrating the clock offset
// between a log's absolute wall-clock and the video clock, and joining the
// per-frame timeline against the nearest ping sample. It also provides the
// background ping monitor that produces such logs.
package netlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"
)

// Status classifies one ping sample or one match result.
type Status string

const (
	StatusOK         Status = "ok"
	StatusTimeout    Status = "timeout"
	StatusError      Status = "error"
	StatusParseError Status = "parse_error"
	StatusNoData     Status = "no_data"
)

// Entry is one sample from a network monitor log. Timestamp is absolute
// Unix seconds with millisecond precision. HasPing is false when the sample
// recorded a failure rather than a latency.
type Entry struct {
	Timestamp  float64
	PingMs     float64
	HasPing    bool
	PacketLoss float64
	Status     Status
	Target     string
}

var logHeader = []string{"timestamp", "datetime", "target", "ping_ms", "packet_loss", "status"}

// LoadLog reads a network monitor CSV and returns its entries sorted
// ascending by timestamp — the matcher's binary search requires sortedness.
// Malformed rows are skipped, not fatal.
func LoadLog(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open network log: %w", err)
	}
	defer f.Close()

	entries, err := ReadLog(f)
	if err != nil {
		return nil, fmt.Errorf("read network log %s: %w", path, err)
	}
	return entries, nil
}

// ReadLog parses network monitor CSV data from r. See LoadLog.
func ReadLog(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	if _, ok := col["timestamp"]; !ok {
		return nil, fmt.Errorf("missing timestamp column")
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var entries []Entry
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Skip unreadable rows; a single bad line must not abort the merge.
			continue
		}

		ts, err := strconv.ParseFloat(field(row, "timestamp"), 64)
		if err != nil {
			continue
		}
		e := Entry{
			Timestamp: ts,
			Status:    Status(field(row, "status")),
			Target:    field(row, "target"),
		}
		if e.Status == "" {
			e.Status = StatusError
		}
		if s := field(row, "ping_ms"); s != "" {
			if v, err := strconv.ParseFloat(s, 64); err == nil {
				e.PingMs = v
				e.HasPing = true
			}
		}
		if s := field(row, "packet_loss"); s != "" {
			if v, err := strconv.ParseFloat(s, 64); err == nil {
				e.PacketLoss = v
			}
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp < entries[j].Timestamp })
	return entries, nil
}

// WriteLog writes entries as a network monitor CSV to w.
func WriteLog(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(logHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, e := range entries {
		ping := ""
		if e.HasPing {
			ping = strconv.FormatFloat(e.PingMs, 'f', 1, 64)
		}
		sec := int64(e.Timestamp)
		nsec := int64((e.Timestamp - float64(sec)) * 1e9)
		row := []string{
			strconv.FormatFloat(e.Timestamp, 'f', 3, 64),
			time.Unix(sec, nsec).Format("2006-01-02 15:04:05.000"),
			e.Target,
			ping,
			strconv.FormatFloat(e.PacketLoss, 'f', 2, 64),
			string(e.Status),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// SaveLog writes entries as a network monitor CSV file at path.
func SaveLog(path string, entries []Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create network log: %w", err)
	}
	defer f.Close()
	return WriteLog(f, entries)
}
