package analysis

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/banshee-data/screenlag/internal/netlog"
)

// MergedRecord pairs a frame record with the nearest ping from each
// network log.
type MergedRecord struct {
	FrameRecord
	PhonePingMs  float64
	PhoneHasPing bool
	PhoneStatus  netlog.Status
	PCPingMs     float64
	PCHasPing    bool
	PCStatus     netlog.Status
}

// Samples converts frame records into the matcher's calibration samples.
func Samples(records []FrameRecord) []netlog.Sample {
	samples := make([]netlog.Sample, len(records))
	for i, r := range records {
		samples[i] = netlog.Sample{
			FrameIdx:   r.FrameIdx,
			VideoTimeS: r.VideoTimeS,
			AppMs:      r.AppLabel.Ms,
			AppOK:      r.AppLabel.OK,
			RealMs:     r.RealLabel.Ms,
			RealOK:     r.RealLabel.OK,
			DelayMs:    float64(r.DelayMs),
			HasDelay:   r.HasDelay,
		}
	}
	return samples
}

// MergeNetworkLogs joins records against the phone and PC ping logs. Either
// log may be nil; the corresponding columns come back as no_data.
func MergeNetworkLogs(m *netlog.Matcher, records []FrameRecord, phoneLog, pcLog []netlog.Entry) []MergedRecord {
	joined := m.Match(Samples(records), phoneLog, pcLog)

	merged := make([]MergedRecord, len(records))
	for i, r := range records {
		merged[i] = MergedRecord{
			FrameRecord:  r,
			PhonePingMs:  joined[i].PhonePingMs,
			PhoneHasPing: joined[i].PhoneHasPing,
			PhoneStatus:  joined[i].PhoneStatus,
			PCPingMs:     joined[i].PCPingMs,
			PCHasPing:    joined[i].PCHasPing,
			PCStatus:     joined[i].PCStatus,
		}
	}
	return merged
}

// WriteMerged writes the merged CSV: the per-frame columns followed by the
// phone and PC ping columns.
func WriteMerged(w io.Writer, merged []MergedRecord) error {
	cw := csv.NewWriter(w)
	header := append(append([]string{}, recordHeader...),
		"phone_ping_ms", "phone_status", "pc_ping_ms", "pc_status")
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, m := range merged {
		row := recordRow(m.FrameRecord)
		row = append(row,
			pingCell(m.PhonePingMs, m.PhoneHasPing), string(m.PhoneStatus),
			pingCell(m.PCPingMs, m.PCHasPing), string(m.PCStatus))
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write frame %d: %w", m.FrameIdx, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveMerged writes the merged CSV to path.
func SaveMerged(path string, merged []MergedRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create merged report: %w", err)
	}
	defer f.Close()
	return WriteMerged(f, merged)
}

func pingCell(ms float64, has bool) string {
	if !has {
		return ""
	}
	return strconv.FormatFloat(ms, 'f', 1, 64)
}
