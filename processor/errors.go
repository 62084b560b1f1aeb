package processor

import "fmt"

// InvalidLedgerError indicates the uploaded ledger cannot be aggregated at all:
// required columns are missing, the ledger has zero rows, or a row failed to
// parse. Computation does not proceed past validation.
type InvalidLedgerError struct {
	Reason string
}

func (e *InvalidLedgerError) Error() string {
	return fmt.Sprintf("invalid ledger: %s", e.Reason)
}

// ScoringError indicates a metric could not be partitioned into four
// non-degenerate quartile bins. Collapsed bins would silently change the
// meaning of every score, so the whole run fails instead.
type ScoringError struct {
	Metric string
	Reason string
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("cannot score %s: %s", e.Metric, e.Reason)
}

// InvalidInputError indicates the segment classifier was handed a value that
// is not a usable number.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input %q: %s", e.Field, e.Reason)
}
