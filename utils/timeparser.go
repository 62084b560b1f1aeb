package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ledgerTimeLayouts are tried in order when parsing transaction timestamps.
// Exported CRM dumps are wildly inconsistent about this, so the parser is
// deliberately permissive about layout but never about ambiguity: a string
// that matches none of these is an error, not a guess.
var ledgerTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"01/02/2006 15:04",
	"01/02/2006",
}

// ParseLedgerTimestamp parses a transaction timestamp from a ledger CSV.
// Numeric strings are treated as Unix seconds.
func ParseLedgerTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}

	for _, layout := range ledgerTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", value)
}

// WholeDaysBetween returns the number of complete days from earlier to later,
// truncated toward zero.
func WholeDaysBetween(earlier, later time.Time) int {
	return int(later.Sub(earlier).Hours() / 24)
}
