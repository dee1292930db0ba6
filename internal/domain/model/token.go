package model

import "strings"

// tokenPrices is the FCFA value of one token per service type.
var tokenPrices = map[string]int64{
	"auto":       750,
	"moto":       500,
	"sante":      1000,
	"habitation": 1000,
	"voyage":     1500,
}

// TokenValue returns the unit price of a token for serviceType, or 0 when the
// service is unknown.
func TokenValue(serviceType string) int64 {
	return tokenPrices[strings.ToLower(strings.TrimSpace(serviceType))]
}

// ServiceTypes lists the known service types.
func ServiceTypes() []string {
	return []string{"auto", "moto", "sante", "habitation", "voyage"}
}

// ComputeTokens returns floor(amountMinor / tokenValue). A non-positive
// tokenValue or amount yields 0.
func ComputeTokens(amountMinor, tokenValue int64) int64 {
	if tokenValue <= 0 || amountMinor <= 0 {
		return 0
	}
	return amountMinor / tokenValue
}
