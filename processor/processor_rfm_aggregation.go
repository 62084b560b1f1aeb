package processor

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/insightloop/rfm-pipeline-workflow/utils"
)

// RFMAggregationProcessor turns a transaction ledger into a scored customer
// RFM table: per-customer recency/frequency/monetary plus quartile scores and
// the composite three-digit segment code. The whole table is recomputed from
// scratch on every message; nothing is retained between runs.
type RFMAggregationProcessor struct {
	referenceDate time.Time // zero means max(timestamp)+1d, derived per ledger
	processors    []Processor
}

func NewRFMAggregationProcessor(config map[string]interface{}) (*RFMAggregationProcessor, error) {
	p := &RFMAggregationProcessor{}

	if refDate, ok := config["reference_date"].(string); ok && refDate != "" {
		t, err := time.Parse("2006-01-02", refDate)
		if err != nil {
			return nil, fmt.Errorf("invalid reference_date %q: %w", refDate, err)
		}
		p.referenceDate = t
	}

	return p, nil
}

func (p *RFMAggregationProcessor) Subscribe(receiver Processor) {
	p.processors = append(p.processors, receiver)
}

func (p *RFMAggregationProcessor) Process(ctx context.Context, msg Message) error {
	ledger, err := ExtractLedger(msg)
	if err != nil {
		return err
	}

	table, err := ComputeRFM(ledger, p.referenceDate)
	if err != nil {
		return err
	}

	log.Printf("RFMAggregation: scored %d customers from %d transactions (reference date %s)",
		len(table.Rows), len(ledger), table.ReferenceDate.Format("2006-01-02"))

	for _, proc := range p.processors {
		if err := proc.Process(ctx, Message{Payload: table, Metadata: msg.Metadata}); err != nil {
			return fmt.Errorf("error in processor chain: %w", err)
		}
	}

	return nil
}

// ComputeRFM is the whole aggregation as a pure function: group the ledger
// into per-customer metrics, then quartile-score each metric. Callers that
// already hold a ledger in memory can use it directly and skip the pipeline
// plumbing.
func ComputeRFM(ledger Ledger, referenceDate time.Time) (*RFMTable, error) {
	table, err := AggregateLedger(ledger, referenceDate)
	if err != nil {
		return nil, err
	}
	if err := ScoreTable(table); err != nil {
		return nil, err
	}
	return table, nil
}

// AggregateLedger groups a ledger into unscored per-customer rows: recency in
// whole truncated days, transaction count, and decimal monetary sum.
//
// When referenceDate is the zero time it defaults to one day past the latest
// transaction in the ledger, which keeps every recency value non-negative and
// the most recent customer above zero.
func AggregateLedger(ledger Ledger, referenceDate time.Time) (*RFMTable, error) {
	if len(ledger) == 0 {
		return nil, &InvalidLedgerError{Reason: "ledger has no rows"}
	}
	for i, tx := range ledger {
		if tx.CustomerID == "" {
			return nil, &InvalidLedgerError{Reason: fmt.Sprintf("row %d: missing customer_id", i)}
		}
		if tx.Timestamp.IsZero() {
			return nil, &InvalidLedgerError{Reason: fmt.Sprintf("row %d: missing timestamp", i)}
		}
	}

	if referenceDate.IsZero() {
		latest := ledger[0].Timestamp
		for _, tx := range ledger[1:] {
			if tx.Timestamp.After(latest) {
				latest = tx.Timestamp
			}
		}
		referenceDate = latest.Add(24 * time.Hour)
	}

	// Group by customer, preserving first-encounter order. The grouped
	// aggregates are named explicitly here; nothing depends on relabeling
	// an intermediate column.
	rows := make([]CustomerRFM, 0)
	latest := make(map[string]time.Time)
	index := make(map[string]int)

	for _, tx := range ledger {
		i, seen := index[tx.CustomerID]
		if !seen {
			index[tx.CustomerID] = len(rows)
			rows = append(rows, CustomerRFM{CustomerID: tx.CustomerID, Monetary: tx.Amount, Frequency: 1})
			latest[tx.CustomerID] = tx.Timestamp
			continue
		}
		rows[i].Frequency++
		rows[i].Monetary = rows[i].Monetary.Add(tx.Amount)
		if tx.Timestamp.After(latest[tx.CustomerID]) {
			latest[tx.CustomerID] = tx.Timestamp
		}
	}

	// Recency in whole days, truncated.
	for i := range rows {
		rows[i].Recency = utils.WholeDaysBetween(latest[rows[i].CustomerID], referenceDate)
	}

	return &RFMTable{ReferenceDate: referenceDate, Rows: rows}, nil
}

// ScoreTable assigns quartile scores in place. Each metric is cut against its
// own interpolated quartile boundaries; recency is scored inverted (the most
// recent quartile gets 4). A metric whose boundaries collapse fails the whole
// run with a ScoringError on every code path, never a degenerate binning.
func ScoreTable(table *RFMTable) error {
	rows := table.Rows

	recency := make([]float64, len(rows))
	frequency := make([]float64, len(rows))
	monetary := make([]float64, len(rows))
	for i, row := range rows {
		recency[i] = float64(row.Recency)
		frequency[i] = float64(row.Frequency)
		monetary[i] = row.Monetary.InexactFloat64()
	}

	rCuts, err := quartileCuts(recency)
	if err != nil {
		return &ScoringError{Metric: "recency", Reason: err.Error()}
	}

	// Frequency is ranked before cutting: large blocks of tied counts (every
	// one-time buyer has frequency 1) would otherwise collapse the quartile
	// edges and fail the cut.
	freqRanks := stableRank(frequency)
	fCuts, err := quartileCuts(freqRanks)
	if err != nil {
		return &ScoringError{Metric: "frequency", Reason: err.Error()}
	}

	mCuts, err := quartileCuts(monetary)
	if err != nil {
		return &ScoringError{Metric: "monetary", Reason: err.Error()}
	}

	for i := range rows {
		rows[i].RScore = scoreByCuts(recency[i], rCuts, true) // most recent quartile scores highest
		rows[i].FScore = scoreByCuts(freqRanks[i], fCuts, false)
		rows[i].MScore = scoreByCuts(monetary[i], mCuts, false)
		rows[i].RFMScore = strconv.Itoa(rows[i].RScore) + strconv.Itoa(rows[i].FScore) + strconv.Itoa(rows[i].MScore)
	}

	return nil
}
