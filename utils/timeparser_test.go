package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLedgerTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string // RFC3339
	}{
		{name: "RFC3339", input: "2024-03-15T10:30:00Z", want: "2024-03-15T10:30:00Z"},
		{name: "date time", input: "2024-03-15 10:30:00", want: "2024-03-15T10:30:00Z"},
		{name: "date only", input: "2024-03-15", want: "2024-03-15T00:00:00Z"},
		{name: "slash date", input: "2024/03/15", want: "2024-03-15T00:00:00Z"},
		{name: "us date", input: "03/15/2024", want: "2024-03-15T00:00:00Z"},
		{name: "unix seconds", input: "1710498600", want: "2024-03-15T10:30:00Z"},
		{name: "padded", input: "  2024-03-15  ", want: "2024-03-15T00:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLedgerTimestamp(tt.input)
			require.NoError(t, err)
			want, err := time.Parse(time.RFC3339, tt.want)
			require.NoError(t, err)
			assert.True(t, got.Equal(want), "got %s want %s", got, want)
		})
	}
}

func TestParseLedgerTimestampErrors(t *testing.T) {
	for _, input := range []string{"", "  ", "yesterday", "15-03-2024x"} {
		_, err := ParseLedgerTimestamp(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestWholeDaysBetween(t *testing.T) {
	base, err := time.Parse(time.RFC3339, "2024-01-01T00:00:00Z")
	require.NoError(t, err)

	assert.Equal(t, 0, WholeDaysBetween(base, base.Add(23*time.Hour)))
	assert.Equal(t, 1, WholeDaysBetween(base, base.Add(24*time.Hour)))
	assert.Equal(t, 2, WholeDaysBetween(base, base.Add(60*time.Hour))) // 2.5 days truncates
}
