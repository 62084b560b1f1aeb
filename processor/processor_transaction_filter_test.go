package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransactionFilterProcessor(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]interface{}
		wantErr bool
	}{
		{name: "empty config", config: map[string]interface{}{}},
		{
			name: "customer list",
			config: map[string]interface{}{
				"customers": []interface{}{"C1", "C2"},
			},
		},
		{
			name: "amount range",
			config: map[string]interface{}{
				"min_amount": 10.0,
				"max_amount": 100.0,
			},
		},
		{
			name: "invalid customers type",
			config: map[string]interface{}{
				"customers": "not-a-list",
			},
			wantErr: true,
		},
		{
			name: "inverted amount range",
			config: map[string]interface{}{
				"min_amount": 100.0,
				"max_amount": 10.0,
			},
			wantErr: true,
		},
		{
			name: "bad date",
			config: map[string]interface{}{
				"after": "01/02/2024",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTransactionFilterProcessor(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTransactionFilterProcessor(t *testing.T) {
	base := day(t, "2024-05-01")
	ledger := Ledger{
		{CustomerID: "C1", Timestamp: base, Amount: amount("5")},
		{CustomerID: "C1", Timestamp: base.AddDate(0, 0, 10), Amount: amount("50")},
		{CustomerID: "C2", Timestamp: base.AddDate(0, 0, 20), Amount: amount("500")},
		{CustomerID: "C3", Timestamp: base.AddDate(0, 0, 30), Amount: amount("5000")},
	}

	tests := []struct {
		name   string
		config map[string]interface{}
		want   int
	}{
		{name: "passthrough", config: map[string]interface{}{}, want: 4},
		{
			name:   "by customer",
			config: map[string]interface{}{"customers": []interface{}{"C1"}},
			want:   2,
		},
		{
			name:   "by min amount",
			config: map[string]interface{}{"min_amount": 100.0},
			want:   2,
		},
		{
			name:   "by date window",
			config: map[string]interface{}{"after": "2024-05-05", "before": "2024-05-25"},
			want:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc, err := NewTransactionFilterProcessor(tt.config)
			require.NoError(t, err)

			downstream := &mockProcessor{}
			proc.Subscribe(downstream)

			require.NoError(t, proc.Process(context.Background(), Message{Payload: ledger}))
			require.Len(t, downstream.messages, 1)

			filtered, err := ExtractLedger(downstream.messages[0])
			require.NoError(t, err)
			assert.Len(t, filtered, tt.want)
		})
	}
}
