package processor

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Required ledger columns, matched case-insensitively against CSV headers.
const (
	ColumnCustomerID = "customer_id"
	ColumnTimestamp  = "timestamp"
	ColumnAmount     = "amount"
)

// Transaction is a single row of an uploaded transaction ledger.
type Transaction struct {
	CustomerID string          `json:"customer_id"`
	Timestamp  time.Time       `json:"timestamp"`
	Amount     decimal.Decimal `json:"amount"`
}

// Ledger is a read-only sequence of transactions. A customer may appear many times.
type Ledger []Transaction

// CustomerRFM is one output row of the aggregation: the three raw metrics plus
// their quartile scores for a single customer.
type CustomerRFM struct {
	CustomerID string          `json:"customer_id"`
	Recency    int             `json:"recency"`
	Frequency  int             `json:"frequency"`
	Monetary   decimal.Decimal `json:"monetary"`
	RScore     int             `json:"r_score"`
	FScore     int             `json:"f_score"`
	MScore     int             `json:"m_score"`
	RFMScore   string          `json:"rfm_score"`
}

// RFMTable is the scored customer table, one row per distinct customer in
// first-encounter order, together with the reference date the recency values
// were measured against.
type RFMTable struct {
	ReferenceDate time.Time     `json:"reference_date"`
	Rows          []CustomerRFM `json:"rows"`
}

// Header returns the export column order: customer key first, then the raw
// metrics, then the scores.
func (t *RFMTable) Header() []string {
	return []string{"customer_id", "Recency", "Frequency", "Monetary", "R_Score", "F_Score", "M_Score", "RFM_Score"}
}

// Record serializes a row in Header column order for delimited export.
func (r *CustomerRFM) Record() []string {
	return []string{
		r.CustomerID,
		strconv.Itoa(r.Recency),
		strconv.Itoa(r.Frequency),
		r.Monetary.String(),
		strconv.Itoa(r.RScore),
		strconv.Itoa(r.FScore),
		strconv.Itoa(r.MScore),
		r.RFMScore,
	}
}

// Lookup returns the row for the given customer, if present.
func (t *RFMTable) Lookup(customerID string) (CustomerRFM, bool) {
	for _, row := range t.Rows {
		if row.CustomerID == customerID {
			return row, true
		}
	}
	return CustomerRFM{}, false
}
