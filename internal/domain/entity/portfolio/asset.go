package portfolio

import "strings"

// AssetDescriptor is a provider-listed equity. Read-only.
type AssetDescriptor struct {
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	Tradable  bool   `json:"tradable"`
	Shortable bool   `json:"shortable"`
}

// IsETF applies the name heuristic used to exclude funds from the equity
// universe.
func (a AssetDescriptor) IsETF() bool {
	return strings.Contains(a.Name, "ETF")
}

// Investable reports whether the asset belongs to the restricted universe:
// tradable, shortable, and not an ETF.
func (a AssetDescriptor) Investable() bool {
	return a.Tradable && a.Shortable && !a.IsETF()
}
