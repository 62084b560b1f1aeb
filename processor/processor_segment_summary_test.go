package processor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeSegments(t *testing.T) {
	table := &RFMTable{
		ReferenceDate: time.Now(),
		Rows: []CustomerRFM{
			{CustomerID: "A", Recency: 10, Frequency: 5, Monetary: amount("4000"), RScore: 4, FScore: 4, MScore: 4, RFMScore: "444"},
			{CustomerID: "B", Recency: 12, Frequency: 4, Monetary: amount("6000"), RScore: 4, FScore: 4, MScore: 4, RFMScore: "444"},
			{CustomerID: "C", Recency: 90, Frequency: 1, Monetary: amount("30"), RScore: 1, FScore: 1, MScore: 1, RFMScore: "111"},
		},
	}

	summaries, err := SummarizeSegments(table, true)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// Ordered by descending rfm_score.
	top := summaries[0]
	assert.Equal(t, "444", top.RFMScore)
	assert.Equal(t, 2, top.Customers)
	assert.InDelta(t, 11, top.MeanRecency, 1e-9)
	assert.InDelta(t, 4.5, top.MeanFrequency, 1e-9)
	assert.InDelta(t, 5000, top.MeanMonetary, 1e-9)
	assert.InDelta(t, 5000, top.MedianMonetary, 1e-9)
	assert.InDelta(t, 10000.0/10030.0, top.MonetaryShare, 1e-9)
	assert.Equal(t, "Loyal & High-Value", top.SegmentLabel)
	assert.NotEmpty(t, top.LabelRationale)

	bottom := summaries[1]
	assert.Equal(t, "111", bottom.RFMScore)
	assert.Equal(t, "At Risk / Churned", bottom.SegmentLabel)
}

func TestSegmentSummaryProcessor(t *testing.T) {
	proc, err := NewSegmentSummaryProcessor(map[string]interface{}{})
	require.NoError(t, err)

	downstream := &mockProcessor{}
	proc.Subscribe(downstream)

	table, err := ComputeRFM(eightCustomerLedger(t), time.Time{})
	require.NoError(t, err)

	require.NoError(t, proc.Process(context.Background(), Message{Payload: table}))
	require.Len(t, downstream.messages, 1)

	var summaries []SegmentSummary
	require.NoError(t, json.Unmarshal(downstream.messages[0].Payload.([]byte), &summaries))

	total := 0
	for _, s := range summaries {
		total += s.Customers
		assert.NotEmpty(t, s.SegmentLabel)
		assert.Empty(t, s.LabelRationale) // include_rationale defaults off
	}
	assert.Equal(t, 8, total)
}
