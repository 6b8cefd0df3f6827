package logstore

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Timespan is the query look-back window, carried on the wire as the ISO-8601
// duration subset the workspace API accepts: P{n}M (months), P{n}D (days),
// PT{n}H (hours), and combinations in that order.
type Timespan struct {
	Months int
	Days   int
	Hours  int
}

// DefaultTimespan is applied when the model omits the field.
var DefaultTimespan = Timespan{Days: 1}

var timespanPattern = regexp.MustCompile(`^P(?:(\d+)M)?(?:(\d+)D)?(?:T(\d+)H)?$`)

// ParseTimespan parses the supported ISO-8601 duration subset.
func ParseTimespan(s string) (Timespan, error) {
	m := timespanPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil || (m[1] == "" && m[2] == "" && m[3] == "") {
		return Timespan{}, fmt.Errorf("invalid timespan %q: expected P{n}M, P{n}D or PT{n}H", s)
	}
	var ts Timespan
	if m[1] != "" {
		ts.Months, _ = strconv.Atoi(m[1])
	}
	if m[2] != "" {
		ts.Days, _ = strconv.Atoi(m[2])
	}
	if m[3] != "" {
		ts.Hours, _ = strconv.Atoi(m[3])
	}
	return ts, nil
}

// IsZero reports whether no component is set.
func (t Timespan) IsZero() bool {
	return t.Months == 0 && t.Days == 0 && t.Hours == 0
}

// String renders the canonical ISO-8601 form.
func (t Timespan) String() string {
	if t.IsZero() {
		return "PT0H"
	}
	var sb strings.Builder
	sb.WriteString("P")
	if t.Months > 0 {
		fmt.Fprintf(&sb, "%dM", t.Months)
	}
	if t.Days > 0 {
		fmt.Fprintf(&sb, "%dD", t.Days)
	}
	if t.Hours > 0 {
		fmt.Fprintf(&sb, "T%dH", t.Hours)
	}
	return sb.String()
}
