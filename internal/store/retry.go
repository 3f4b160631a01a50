package store

import (
	"strings"
	"time"
)

const (
	busyMaxRetries = 5
	busyBaseDelay  = 10 * time.Millisecond
)

// isSQLiteBusy reports whether err is a transient lock contention error.
// The driver surfaces these as text, not typed errors.
func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy runs fn, retrying with exponential backoff while it fails
// with a busy error. Non-busy errors return immediately.
func retryOnBusy(fn func() error) error {
	var err error
	delay := busyBaseDelay
	for attempt := 0; attempt < busyMaxRetries; attempt++ {
		if err = fn(); !isSQLiteBusy(err) {
			return err
		}
		time.Sleep(delay)
		delay *= 2
	}
	return err
}
