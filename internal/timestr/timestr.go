// Package timestr normalizes raw recognized text into canonical time labels.
//
// Recognized text is noisy: digits get misread, labels truncate at region
// edges, and the clock overlay may render either "HH:MM:SS.mmm" or a bare
// digit run "HHMMSSmmm". Parsing runs a fixed-priority list of strategies and
// returns the first structurally valid match; validation is strict because a
// coerced partial read poisons every downstream delay sample.
package timestr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Side marks which part of a label appears to be missing after truncation.
type Side string

const (
	SideComplete Side = "complete"
	SideLeft     Side = "left"
	SideRight    Side = "right"
	SideBoth     Side = "both"
)

// Label is the result of parsing one piece of recognized text.
// OK is false when no strategy matched; Canonical and Ms are then meaningless.
type Label struct {
	Raw        string  // text as produced by the recognizer
	Canonical  string  // "HH:MM:SS.mmm", zero-padded
	Ms         int64   // milliseconds since midnight
	OK         bool
	Confidence float64 // recognizer confidence carried through, [0, 1]
}

// Colon form: fields strictly two digits; an optional millisecond suffix must
// be exactly three digits. The negative lookahead from the reference grammar
// (no trailing digit or separator after the match) is expressed by the
// explicit boundary group.
var colonPattern = regexp.MustCompile(`(\d{2}):(\d{2}):(\d{2})(?:[.:](\d{3}))?([.:\d]?)`)

var digitRunPattern = regexp.MustCompile(`\d+`)

// parser is one strategy in the fixed priority order.
type parser func(text string) (Label, bool)

// strategies are tried in order; the colon form wins over digit runs because
// it is the more common overlay rendering and is unambiguous.
var strategies = []parser{parseColon, parseDigits}

// Parse normalizes recognized text into a Label. Strategies are attempted in
// fixed priority order; each either matches structurally and validates, or
// falls through. OK is false when nothing matched.
func Parse(text string) Label {
	for _, p := range strategies {
		if l, ok := p(text); ok {
			l.Raw = text
			return l
		}
	}
	return Label{Raw: text}
}

// parseColon matches HH:MM:SS[.mmm]. A millisecond suffix of one or two
// digits is a malformed read, not a short one, so the candidate is rejected
// rather than zero-padded.
func parseColon(text string) (Label, bool) {
	for _, m := range colonPattern.FindAllStringSubmatch(text, -1) {
		h, _ := strconv.Atoi(m[1])
		mi, _ := strconv.Atoi(m[2])
		s, _ := strconv.Atoi(m[3])
		ms := m[4]
		tail := m[5]

		// A trailing digit or separator means the millisecond field was cut
		// mid-read ("12:34:56.78" or "12:34:56.1234"); reject the candidate.
		if tail != "" {
			continue
		}
		if !fieldsInRange(h, mi, s) {
			continue
		}
		if ms == "" {
			ms = "000"
		}
		return makeLabel(h, mi, s, ms), true
	}
	return Label{}, false
}

// parseDigits matches bare digit runs. Exactly 6 digits is HHMMSS with no
// milliseconds; 9 or more is HHMMSSmmm… with the first three trailing digits
// as milliseconds. Runs of 7 or 8 digits are ambiguous truncations and are
// rejected outright.
func parseDigits(text string) (Label, bool) {
	for _, run := range digitRunPattern.FindAllString(text, -1) {
		var msStr string
		switch {
		case len(run) == 6:
			msStr = "000"
		case len(run) >= 9:
			msStr = run[6:9]
		default:
			continue
		}

		h, _ := strconv.Atoi(run[0:2])
		mi, _ := strconv.Atoi(run[2:4])
		s, _ := strconv.Atoi(run[4:6])
		if !fieldsInRange(h, mi, s) {
			continue
		}
		return makeLabel(h, mi, s, msStr), true
	}
	return Label{}, false
}

func fieldsInRange(h, m, s int) bool {
	return h >= 0 && h <= 23 && m >= 0 && m <= 59 && s >= 0 && s <= 59
}

func makeLabel(h, m, s int, ms string) Label {
	msv, _ := strconv.Atoi(ms)
	canonical := fmt.Sprintf("%02d:%02d:%02d.%s", h, m, s, ms)
	return Label{
		Canonical: canonical,
		Ms:        (int64(h)*3600+int64(m)*60+int64(s))*1000 + int64(msv),
		OK:        true,
	}
}

// ToMilliseconds converts a canonical "HH:MM:SS.mmm" string to milliseconds
// since midnight. A missing millisecond suffix counts as zero.
func ToMilliseconds(canonical string) (int64, error) {
	parts := strings.Split(canonical, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("malformed time string %q", canonical)
	}

	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("malformed hour in %q: %w", canonical, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("malformed minute in %q: %w", canonical, err)
	}

	secParts := strings.SplitN(parts[2], ".", 2)
	s, err := strconv.Atoi(secParts[0])
	if err != nil {
		return 0, fmt.Errorf("malformed second in %q: %w", canonical, err)
	}
	var ms int
	if len(secParts) == 2 {
		ms, err = strconv.Atoi(secParts[1])
		if err != nil {
			return 0, fmt.Errorf("malformed milliseconds in %q: %w", canonical, err)
		}
	}

	return (int64(h)*3600+int64(m)*60+int64(s))*1000 + int64(ms), nil
}

var originalHourPattern = regexp.MustCompile(`(\d{1,2}):(\d{2}):(\d{2})`)
var completenessPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2}):(\d{2})(?:[.:](\d{1,3}))?$`)

// IsComplete checks whether a parsed label plausibly captured the whole
// on-screen string, guarding against the recognizer cropping a label at a
// region edge. The original recognized text decides left-completeness: a
// single-digit hour there usually means the leading digit fell outside the
// region even when zero-padding made the canonical form look whole.
func IsComplete(canonical, original string) (bool, Side) {
	if canonical == "" {
		return false, SideBoth
	}

	m := completenessPattern.FindStringSubmatch(canonical)
	if m == nil {
		// Not a colon-form label; a canonical string always is, so anything
		// else arrived pre-normalization and is treated as unusable.
		return false, SideBoth
	}

	if original != "" {
		if om := originalHourPattern.FindStringSubmatch(original); om != nil {
			if len(om[1]) == 1 {
				return false, SideLeft
			}
		}
	}

	if ms := m[4]; len(ms) < 3 {
		return false, SideRight
	}
	return true, SideComplete
}
