package tracking

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConversionStatus represents the verification state of a conversion
type ConversionStatus string

const (
	ConversionStatusPending  ConversionStatus = "pending"
	ConversionStatusVerified ConversionStatus = "verified"
)

// ConversionRecord is the durable accounting record for an attributed
// conversion, stored under conversion:{clickId}. At most one record exists
// per click id; the key's existence is the write-once guard. Records carry
// no TTL.
type ConversionRecord struct {
	ClickID              string            `json:"click_id"`
	PartnerID            string            `json:"partner_id"`
	ClickTimestamp       time.Time         `json:"click_timestamp"`
	ConversionTimestamp  time.Time         `json:"conversion_timestamp"`
	CustomerID           string            `json:"customer_id,omitempty"`
	ProductSelected      string            `json:"product_selected,omitempty"`
	ContractValue        *decimal.Decimal  `json:"contract_value,omitempty"`
	ContractLengthMonths int               `json:"contract_length_months,omitempty"`
	Status               ConversionStatus  `json:"status"`
	Source               string            `json:"source,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
}

// ConversionKey returns the KV key for a conversion record
func ConversionKey(clickID string) string {
	return "conversion:" + clickID
}

// DailyCounterKey returns the key of the per-partner daily conversion counter
func DailyCounterKey(day time.Time, partnerID string) string {
	return "conversions:daily:" + day.UTC().Format("2006-01-02") + ":" + partnerID
}

// DailyRevenueKey returns the key of the per-partner daily revenue accumulator
func DailyRevenueKey(day time.Time, partnerID string) string {
	return "revenue:daily:" + day.UTC().Format("2006-01-02") + ":" + partnerID
}

// QueueKey returns the key of the day's conversion processing queue (a list)
func QueueKey(day time.Time) string {
	return "conversion_queue:" + day.UTC().Format("2006-01-02")
}
