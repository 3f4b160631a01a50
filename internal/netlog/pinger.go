package netlog

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"time"
)

// Sentinel errors that Monitor maps onto sample statuses.
var (
	ErrPingTimeout = errors.New("ping timed out")
	ErrPingParse   = errors.New("ping output unparseable")
)

// Pinger measures round-trip latency to a target. Implementations return
// the latency in milliseconds, or an error wrapping ErrPingTimeout or
// ErrPingParse for the corresponding failure modes.
type Pinger interface {
	Ping(ctx context.Context, target string, timeout time.Duration) (float64, error)
}

var (
	pingTimePattern = regexp.MustCompile(`time[=<]\s*([0-9.]+)\s*ms`)
	// Windows localized output omits "time=" in some locales but always
	// prints the summary average.
	pingAvgPattern = regexp.MustCompile(`Average = (\d+)ms`)
)

// SystemPinger shells out to the platform ping utility for a single probe.
type SystemPinger struct{}

// Ping sends one ICMP echo to target and parses the reported latency.
func (SystemPinger) Ping(ctx context.Context, target string, timeout time.Duration) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout+time.Second)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		ms := strconv.FormatInt(timeout.Milliseconds(), 10)
		cmd = exec.CommandContext(ctx, "ping", "-n", "1", "-w", ms, target)
	} else {
		secs := int(timeout.Seconds())
		if secs < 1 {
			secs = 1
		}
		cmd = exec.CommandContext(ctx, "ping", "-c", "1", "-W", strconv.Itoa(secs), target)
	}

	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if ctx.Err() != nil || errors.As(err, &exitErr) {
			return 0, fmt.Errorf("%s: %w", target, ErrPingTimeout)
		}
		return 0, fmt.Errorf("run ping %s: %w", target, err)
	}

	if m := pingTimePattern.FindSubmatch(out); m != nil {
		v, err := strconv.ParseFloat(string(m[1]), 64)
		if err == nil {
			return v, nil
		}
	}
	if m := pingAvgPattern.FindSubmatch(out); m != nil {
		v, err := strconv.ParseFloat(string(m[1]), 64)
		if err == nil {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%s: %w", target, ErrPingParse)
}
