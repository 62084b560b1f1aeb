package processor

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/montanaflynn/stats"
)

// SegmentSummary aggregates one rfm_score segment of the customer table.
type SegmentSummary struct {
	RFMScore        string  `json:"rfm_score"`
	Customers       int     `json:"customers"`
	MeanRecency     float64 `json:"mean_recency"`
	MeanFrequency   float64 `json:"mean_frequency"`
	MeanMonetary    float64 `json:"mean_monetary"`
	MedianMonetary  float64 `json:"median_monetary"`
	MonetaryShare   float64 `json:"monetary_share"`
	SegmentLabel    string  `json:"segment_label"`
	LabelRationale  string  `json:"label_rationale,omitempty"`
}

// SegmentSummaryProcessor rolls a scored RFM table up by rfm_score and labels
// each segment with the insight classifier. The output slice is ordered by
// descending rfm_score so the strongest segments lead.
type SegmentSummaryProcessor struct {
	includeRationale bool
	processors       []Processor
}

func NewSegmentSummaryProcessor(config map[string]interface{}) (*SegmentSummaryProcessor, error) {
	p := &SegmentSummaryProcessor{}
	if v, ok := config["include_rationale"].(bool); ok {
		p.includeRationale = v
	}
	return p, nil
}

func (p *SegmentSummaryProcessor) Subscribe(receiver Processor) {
	p.processors = append(p.processors, receiver)
}

func (p *SegmentSummaryProcessor) Process(ctx context.Context, msg Message) error {
	table, err := ExtractRFMTable(msg)
	if err != nil {
		return err
	}

	summaries, err := SummarizeSegments(table, p.includeRationale)
	if err != nil {
		return err
	}

	log.Printf("SegmentSummary: %d segments from %d customers", len(summaries), len(table.Rows))

	return ForwardToProcessors(ctx, summaries, p.processors)
}

// SummarizeSegments groups table rows by rfm_score and computes per-segment
// means, medians, and monetary share.
func SummarizeSegments(table *RFMTable, includeRationale bool) ([]SegmentSummary, error) {
	groups := make(map[string][]CustomerRFM)
	for _, row := range table.Rows {
		groups[row.RFMScore] = append(groups[row.RFMScore], row)
	}

	totalMonetary := 0.0
	for _, row := range table.Rows {
		totalMonetary += row.Monetary.InexactFloat64()
	}

	summaries := make([]SegmentSummary, 0, len(groups))
	for score, rows := range groups {
		recencies := make([]float64, len(rows))
		frequencies := make([]float64, len(rows))
		monetaries := make([]float64, len(rows))
		for i, row := range rows {
			recencies[i] = float64(row.Recency)
			frequencies[i] = float64(row.Frequency)
			monetaries[i] = row.Monetary.InexactFloat64()
		}

		meanR, err := stats.Mean(recencies)
		if err != nil {
			return nil, fmt.Errorf("segment %s: %w", score, err)
		}
		meanF, _ := stats.Mean(frequencies)
		meanM, _ := stats.Mean(monetaries)
		medianM, _ := stats.Median(monetaries)
		sumM, _ := stats.Sum(monetaries)

		label, rationale, err := ClassifySegment(meanR, meanF, meanM)
		if err != nil {
			return nil, fmt.Errorf("segment %s: %w", score, err)
		}

		summary := SegmentSummary{
			RFMScore:       score,
			Customers:      len(rows),
			MeanRecency:    meanR,
			MeanFrequency:  meanF,
			MeanMonetary:   meanM,
			MedianMonetary: medianM,
			SegmentLabel:   label,
		}
		if totalMonetary != 0 {
			summary.MonetaryShare = sumM / totalMonetary
		}
		if includeRationale {
			summary.LabelRationale = rationale
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(a, b int) bool {
		return summaries[a].RFMScore > summaries[b].RFMScore
	})

	return summaries, nil
}
