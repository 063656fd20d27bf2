package providers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// isoDuration accepts PT2H30M, PT45M, PT3H and PT.
var isoDuration = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?$`)

// parseISODurationMinutes converts an ISO-8601 style duration to minutes.
// Anything outside the grammar, or too large for an int32 minute count,
// yields 0.
func parseISODurationMinutes(s string) int {
	m := isoDuration.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	var parts [2]int64
	for i, digits := range m[1:] {
		if digits == "" {
			continue
		}
		n, err := strconv.ParseInt(digits, 10, 32)
		if err != nil {
			return 0
		}
		parts[i] = n
	}
	total := parts[0]*60 + parts[1]
	if total > math.MaxInt32 {
		return 0
	}
	return int(total)
}

// secondsToMinutes converts a vendor second count; negative input yields 0.
func secondsToMinutes(sec int64) int {
	if sec <= 0 || sec/60 > math.MaxInt32 {
		return 0
	}
	return int(sec / 60)
}

// qualifiedFlightNumber returns the flight designator as carrier+number
// ("G31234"). A number that already carries letters is kept as sent.
func qualifiedFlightNumber(carrier, number string) string {
	number = strings.ToUpper(strings.TrimSpace(number))
	if number == "" {
		return ""
	}
	if strings.IndexFunc(number, unicode.IsLetter) >= 0 {
		return number
	}
	return strings.ToUpper(strings.TrimSpace(carrier)) + number
}

// parseVendorTime handles RFC3339 and offset-less local timestamps, which are
// kept as UTC wall clock.
func parseVendorTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", s)
}

// flexString decodes a JSON string or number into a string. Vendors are not
// consistent about flight numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func ptrTime(t time.Time) *time.Time { return &t }
