package processor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProcessor captures forwarded messages for assertions.
type mockProcessor struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

func (m *mockProcessor) Process(ctx context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockProcessor) Subscribe(p Processor) {}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return ts
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// eightCustomerLedger returns one transaction per customer with strictly
// distinct recency, rank, and monetary values, so every quartile holds exactly
// two customers.
func eightCustomerLedger(t *testing.T) Ledger {
	t.Helper()
	ledger := make(Ledger, 0, 8)
	base := day(t, "2024-01-01")
	amounts := []string{"10", "20", "30", "40", "50", "60", "70", "80"}
	for i := 0; i < 8; i++ {
		ledger = append(ledger, Transaction{
			CustomerID: string(rune('A' + i)),
			Timestamp:  base.AddDate(0, 0, i),
			Amount:     amount(amounts[i]),
		})
	}
	return ledger
}

func TestAggregateLedgerGrouping(t *testing.T) {
	base := day(t, "2024-03-01")
	ledger := Ledger{
		{CustomerID: "C1", Timestamp: base, Amount: amount("100")},
		{CustomerID: "C1", Timestamp: base.AddDate(0, 0, 5), Amount: amount("50")},
		{CustomerID: "C2", Timestamp: base.AddDate(0, 0, 10), Amount: amount("500")},
	}

	table, err := AggregateLedger(ledger, time.Time{})
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)

	// Reference date is one day past the newest transaction.
	assert.Equal(t, base.AddDate(0, 0, 11), table.ReferenceDate)

	c1, ok := table.Lookup("C1")
	require.True(t, ok)
	assert.Equal(t, 2, c1.Frequency)
	assert.True(t, c1.Monetary.Equal(amount("150")), "C1 monetary = %s", c1.Monetary)
	assert.Equal(t, 6, c1.Recency)

	c2, ok := table.Lookup("C2")
	require.True(t, ok)
	assert.Equal(t, 1, c2.Frequency)
	assert.True(t, c2.Monetary.Equal(amount("500")))
	assert.Equal(t, 1, c2.Recency)
}

func TestAggregateLedgerTruncatesPartialDays(t *testing.T) {
	early, err := time.Parse(time.RFC3339, "2024-01-01T12:00:00Z")
	require.NoError(t, err)
	late, err := time.Parse(time.RFC3339, "2024-01-03T00:00:00Z")
	require.NoError(t, err)

	table, err := AggregateLedger(Ledger{
		{CustomerID: "A", Timestamp: early, Amount: amount("1")},
		{CustomerID: "B", Timestamp: late, Amount: amount("2")},
	}, time.Time{})
	require.NoError(t, err)

	// A is 2.5 days before the reference date; whole days truncate, not round.
	a, _ := table.Lookup("A")
	assert.Equal(t, 2, a.Recency)
	b, _ := table.Lookup("B")
	assert.Equal(t, 1, b.Recency)
}

func TestAggregateLedgerErrors(t *testing.T) {
	tests := []struct {
		name   string
		ledger Ledger
	}{
		{name: "empty ledger", ledger: Ledger{}},
		{
			name:   "missing customer id",
			ledger: Ledger{{Timestamp: time.Now(), Amount: amount("1")}},
		},
		{
			name:   "missing timestamp",
			ledger: Ledger{{CustomerID: "A", Amount: amount("1")}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AggregateLedger(tt.ledger, time.Time{})
			var ledgerErr *InvalidLedgerError
			require.ErrorAs(t, err, &ledgerErr)
		})
	}
}

func TestComputeRFMQuartileScores(t *testing.T) {
	table, err := ComputeRFM(eightCustomerLedger(t), time.Time{})
	require.NoError(t, err)
	require.Len(t, table.Rows, 8)

	// Customer A is the oldest, least spending; every quartile holds two
	// customers. Recency scores invert, frequency falls back to encounter
	// order because every count ties at 1.
	expected := map[string]string{
		"A": "111", "B": "111",
		"C": "222", "D": "222",
		"E": "333", "F": "333",
		"G": "444", "H": "444",
	}
	for _, row := range table.Rows {
		assert.Equal(t, expected[row.CustomerID], row.RFMScore, "customer %s", row.CustomerID)
		assert.Len(t, row.RFMScore, 3)
		for _, s := range []int{row.RScore, row.FScore, row.MScore} {
			assert.GreaterOrEqual(t, s, 1)
			assert.LessOrEqual(t, s, 4)
		}
	}
}

func TestComputeRFMNonNegativeRecency(t *testing.T) {
	table, err := ComputeRFM(eightCustomerLedger(t), time.Time{})
	require.NoError(t, err)
	for _, row := range table.Rows {
		assert.GreaterOrEqual(t, row.Recency, 0, "customer %s", row.CustomerID)
	}
}

func TestComputeRFMMonotonicScores(t *testing.T) {
	base := day(t, "2024-06-01")
	ledger := make(Ledger, 0)
	// 12 customers with irregular activity: repeats, gaps, uneven spend.
	amounts := []string{"12.50", "340", "88", "1500", "5", "260", "770", "43", "910", "66", "2100", "135"}
	for i := 0; i < 12; i++ {
		id := string(rune('a' + i))
		for j := 0; j <= i%4; j++ {
			ledger = append(ledger, Transaction{
				CustomerID: id,
				Timestamp:  base.AddDate(0, 0, i*3+j),
				Amount:     amount(amounts[i]),
			})
		}
	}

	table, err := ComputeRFM(ledger, time.Time{})
	require.NoError(t, err)

	for _, x := range table.Rows {
		for _, y := range table.Rows {
			if x.Recency < y.Recency {
				assert.GreaterOrEqual(t, x.RScore, y.RScore,
					"recency %d vs %d", x.Recency, y.Recency)
			}
			if x.Frequency < y.Frequency {
				assert.LessOrEqual(t, x.FScore, y.FScore,
					"frequency %d vs %d", x.Frequency, y.Frequency)
			}
			if x.Monetary.LessThan(y.Monetary) {
				assert.LessOrEqual(t, x.MScore, y.MScore,
					"monetary %s vs %s", x.Monetary, y.Monetary)
			}
		}
	}
}

func TestComputeRFMIdempotent(t *testing.T) {
	ledger := eightCustomerLedger(t)

	first, err := ComputeRFM(ledger, time.Time{})
	require.NoError(t, err)
	second, err := ComputeRFM(ledger, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestComputeRFMAllSingleBuyers(t *testing.T) {
	// Every customer has frequency 1. The stable rank tiebreak must still
	// produce four valid frequency quartiles instead of failing the cut.
	table, err := ComputeRFM(eightCustomerLedger(t), time.Time{})
	require.NoError(t, err)

	counts := map[int]int{}
	for _, row := range table.Rows {
		counts[row.FScore]++
	}
	assert.Equal(t, map[int]int{1: 2, 2: 2, 3: 2, 4: 2}, counts)
}

func TestComputeRFMScoringErrors(t *testing.T) {
	base := day(t, "2024-01-01")

	tests := []struct {
		name   string
		ledger Ledger
		metric string
	}{
		{
			name: "population under four",
			ledger: Ledger{
				{CustomerID: "A", Timestamp: base, Amount: amount("10")},
				{CustomerID: "B", Timestamp: base.AddDate(0, 0, 1), Amount: amount("20")},
				{CustomerID: "C", Timestamp: base.AddDate(0, 0, 2), Amount: amount("30")},
			},
			metric: "recency",
		},
		{
			name: "identical recency",
			ledger: Ledger{
				{CustomerID: "A", Timestamp: base, Amount: amount("10")},
				{CustomerID: "B", Timestamp: base, Amount: amount("20")},
				{CustomerID: "C", Timestamp: base, Amount: amount("30")},
				{CustomerID: "D", Timestamp: base, Amount: amount("40")},
			},
			metric: "recency",
		},
		{
			name: "identical monetary",
			ledger: Ledger{
				{CustomerID: "A", Timestamp: base, Amount: amount("100")},
				{CustomerID: "B", Timestamp: base.AddDate(0, 0, 1), Amount: amount("100")},
				{CustomerID: "C", Timestamp: base.AddDate(0, 0, 2), Amount: amount("100")},
				{CustomerID: "D", Timestamp: base.AddDate(0, 0, 3), Amount: amount("100")},
			},
			metric: "monetary",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeRFM(tt.ledger, time.Time{})
			var scoringErr *ScoringError
			require.ErrorAs(t, err, &scoringErr)
			assert.Equal(t, tt.metric, scoringErr.Metric)
		})
	}
}

func TestRFMAggregationProcessorForwards(t *testing.T) {
	proc, err := NewRFMAggregationProcessor(map[string]interface{}{})
	require.NoError(t, err)

	downstream := &mockProcessor{}
	proc.Subscribe(downstream)

	err = proc.Process(context.Background(), Message{Payload: eightCustomerLedger(t)})
	require.NoError(t, err)
	require.Len(t, downstream.messages, 1)

	table, err := ExtractRFMTable(downstream.messages[0])
	require.NoError(t, err)
	assert.Len(t, table.Rows, 8)
}

func TestRFMAggregationProcessorFixedReferenceDate(t *testing.T) {
	proc, err := NewRFMAggregationProcessor(map[string]interface{}{
		"reference_date": "2024-02-01",
	})
	require.NoError(t, err)

	downstream := &mockProcessor{}
	proc.Subscribe(downstream)

	require.NoError(t, proc.Process(context.Background(), Message{Payload: eightCustomerLedger(t)}))
	table, err := ExtractRFMTable(downstream.messages[0])
	require.NoError(t, err)
	assert.Equal(t, day(t, "2024-02-01"), table.ReferenceDate)
}

func TestRFMAggregationProcessorRejectsBadConfig(t *testing.T) {
	_, err := NewRFMAggregationProcessor(map[string]interface{}{
		"reference_date": "02/01/2024",
	})
	require.Error(t, err)
}
