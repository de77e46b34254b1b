package models

// Bank is the read-only inventory snapshot injected into the advisor prompt.
// The record is owned by the external database; the proxy never writes it.
type Bank struct {
	ID           int64         `json:"id"`
	Name         string        `json:"name"`
	Rating       float64       `json:"rating"`
	Features     []string      `json:"features"`
	Locations    []string      `json:"locations"`
	AccountTypes []string      `json:"account_types"`
	Rates        InterestRates `json:"interest_rates"`
}

type InterestRates struct {
	Savings  float64 `json:"savings"`
	Checking float64 `json:"checking"`
	Mortgage float64 `json:"mortgage"`
	Personal float64 `json:"personal"`
}
