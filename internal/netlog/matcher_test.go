package netlog

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entriesAt(timestamps ...float64) []Entry {
	entries := make([]Entry, len(timestamps))
	for i, ts := range timestamps {
		entries[i] = Entry{Timestamp: ts, PingMs: float64(10 + i), HasPing: true, Status: StatusOK}
	}
	return entries
}

func TestFindNearestPingPicksCloserNeighbor(t *testing.T) {
	m := NewMatcher(DefaultMatcherConfig(), nil)
	entries := entriesAt(100, 103)

	e, ok := m.FindNearestPing(entries, 100.6)
	require.True(t, ok)
	assert.Equal(t, 100.0, e.Timestamp)

	e, ok = m.FindNearestPing(entries, 102.5)
	require.True(t, ok)
	assert.Equal(t, 103.0, e.Timestamp)
}

func TestFindNearestPingToleranceIsInclusive(t *testing.T) {
	m := NewMatcher(DefaultMatcherConfig(), nil)
	entries := entriesAt(100, 103)

	// Exactly at the 1.0s boundary still matches.
	e, ok := m.FindNearestPing(entries, 101.0)
	require.True(t, ok)
	assert.Equal(t, 100.0, e.Timestamp)

	// 1.4s from 100 and 1.6s from 103: outside tolerance on both sides.
	_, ok = m.FindNearestPing(entries, 101.4)
	assert.False(t, ok)

	_, ok = m.FindNearestPing(entries, 101.6)
	assert.False(t, ok)
}

func TestFindNearestPingEdges(t *testing.T) {
	m := NewMatcher(DefaultMatcherConfig(), nil)

	_, ok := m.FindNearestPing(nil, 100)
	assert.False(t, ok)

	entries := entriesAt(100, 103)

	// Before the first entry and after the last.
	e, ok := m.FindNearestPing(entries, 99.5)
	require.True(t, ok)
	assert.Equal(t, 100.0, e.Timestamp)

	e, ok = m.FindNearestPing(entries, 103.8)
	require.True(t, ok)
	assert.Equal(t, 103.0, e.Timestamp)

	_, ok = m.FindNearestPing(entries, 98.0)
	assert.False(t, ok)
}

// msSinceMidnight builds a label value for h:m:s.ms local time.
func msSinceMidnight(h, m, s, ms int) int64 {
	return int64(((h*60+m)*60+s)*1000 + ms)
}

func TestCalculateTimeOffset(t *testing.T) {
	m := NewMatcher(DefaultMatcherConfig(), nil)

	logStart := time.Date(2026, 3, 14, 10, 0, 5, 0, time.Local)
	entries := entriesAt(float64(logStart.UnixNano()) / 1e9)

	samples := []Sample{
		{FrameIdx: 0, VideoTimeS: 0.0},
		{FrameIdx: 3, VideoTimeS: 2.0, RealMs: msSinceMidnight(10, 0, 7, 0), RealOK: true},
	}

	offset, ok := m.CalculateTimeOffset(samples, entries, FieldReal)
	require.True(t, ok)

	// 10:00:07 local minus 2.0s of video time.
	wallclock := time.Date(2026, 3, 14, 10, 0, 7, 0, time.Local)
	want := float64(wallclock.UnixNano())/1e9 - 2.0
	assert.InDelta(t, want, offset, 1e-6)
}

func TestCalculateTimeOffsetFailures(t *testing.T) {
	m := NewMatcher(DefaultMatcherConfig(), nil)
	entries := entriesAt(1000)

	_, ok := m.CalculateTimeOffset(nil, entries, FieldReal)
	assert.False(t, ok)

	_, ok = m.CalculateTimeOffset([]Sample{{VideoTimeS: 1}}, entries, FieldReal)
	assert.False(t, ok, "no sample has a parsed label")

	_, ok = m.CalculateTimeOffset([]Sample{{VideoTimeS: 1, RealMs: 100, RealOK: true}}, nil, FieldReal)
	assert.False(t, ok, "empty log")
}

func TestMatchJoinsBothLogs(t *testing.T) {
	m := NewMatcher(DefaultMatcherConfig(), nil)

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.Local)
	at := func(h, mi, s int, ms int) float64 {
		return float64(day.Add(time.Duration(msSinceMidnight(h, mi, s, ms))*time.Millisecond).UnixNano()) / 1e9
	}

	phoneLog := []Entry{
		{Timestamp: at(10, 0, 7, 100), PingMs: 42, HasPing: true, Status: StatusOK},
		{Timestamp: at(10, 0, 12, 0), Status: StatusTimeout, PacketLoss: 1},
	}
	pcLog := []Entry{
		{Timestamp: at(10, 0, 6, 900), PingMs: 8, HasPing: true, Status: StatusOK},
	}

	samples := []Sample{
		{FrameIdx: 0, VideoTimeS: 2.0,
			AppMs: msSinceMidnight(10, 0, 7, 0), AppOK: true,
			RealMs: msSinceMidnight(10, 0, 7, 0), RealOK: true},
		{FrameIdx: 30, VideoTimeS: 7.0,
			AppMs: msSinceMidnight(10, 0, 12, 0), AppOK: true},
		{FrameIdx: 60, VideoTimeS: 30.0},
	}

	merged := m.Match(samples, phoneLog, pcLog)
	require.Len(t, merged, 3)

	assert.Equal(t, StatusOK, merged[0].PhoneStatus)
	assert.Equal(t, 42.0, merged[0].PhonePingMs)
	assert.Equal(t, StatusOK, merged[0].PCStatus)
	assert.Equal(t, 8.0, merged[0].PCPingMs)

	// Second frame lands on the timeout sample; its status carries over.
	assert.Equal(t, StatusTimeout, merged[1].PhoneStatus)
	assert.False(t, merged[1].PhoneHasPing)

	// Far outside both logs.
	assert.Equal(t, StatusNoData, merged[2].PhoneStatus)
	assert.Equal(t, StatusNoData, merged[2].PCStatus)
}

func TestMatchDegradedRawTimestamps(t *testing.T) {
	m := NewMatcher(DefaultMatcherConfig(), nil)

	// No sample has labels, so calibration fails and raw relative
	// timestamps are compared directly.
	samples := []Sample{{FrameIdx: 0, VideoTimeS: 5.0}}
	phoneLog := []Entry{{Timestamp: 5.3, PingMs: 17, HasPing: true, Status: StatusOK}}

	merged := m.Match(samples, phoneLog, nil)
	require.Len(t, merged, 1)
	assert.Equal(t, StatusOK, merged[0].PhoneStatus)
	assert.Equal(t, 17.0, merged[0].PhonePingMs)
	assert.Equal(t, StatusNoData, merged[0].PCStatus)
}

func TestLogRoundTrip(t *testing.T) {
	entries := []Entry{
		{Timestamp: 1700000000.5, PingMs: 23.4, HasPing: true, Status: StatusOK, Target: "8.8.8.8"},
		{Timestamp: 1700000001.5, Status: StatusTimeout, PacketLoss: 1, Target: "8.8.8.8"},
	}

	var sb strings.Builder
	require.NoError(t, WriteLog(&sb, entries))

	got, err := ReadLog(strings.NewReader(sb.String()))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 23.4, got[0].PingMs)
	assert.True(t, got[0].HasPing)
	assert.Equal(t, StatusTimeout, got[1].Status)
	assert.False(t, got[1].HasPing)
	assert.Equal(t, 1.0, got[1].PacketLoss)
}

func TestReadLogSkipsMalformedAndSorts(t *testing.T) {
	data := strings.Join([]string{
		"timestamp,datetime,target,ping_ms,packet_loss,status",
		"200.0,,8.8.8.8,12.0,0.00,ok",
		"not-a-number,,8.8.8.8,12.0,0.00,ok",
		"100.0,,8.8.8.8,,1.00,timeout",
	}, "\n")

	got, err := ReadLog(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 100.0, got[0].Timestamp)
	assert.Equal(t, 200.0, got[1].Timestamp)
}

func TestReadLogRequiresTimestampColumn(t *testing.T) {
	_, err := ReadLog(strings.NewReader("datetime,target\nx,y"))
	assert.Error(t, err)
}
