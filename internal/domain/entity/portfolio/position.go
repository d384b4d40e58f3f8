package portfolio

// Position is one account holding. Negative quantity means short.
type Position struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
}

// TargetAllocation maps symbols to desired final quantities while preserving
// insertion order, so one reconciliation pass emits instructions in a
// deterministic sequence. Immutable input to a reconcile call.
type TargetAllocation struct {
	symbols    []string
	quantities map[string]float64
}

// NewTargetAllocation builds an empty allocation.
func NewTargetAllocation() *TargetAllocation {
	return &TargetAllocation{quantities: make(map[string]float64)}
}

// Set records the desired quantity for a symbol. Setting a symbol again
// overwrites the quantity but keeps the symbol's place in the order.
func (t *TargetAllocation) Set(symbol string, quantity float64) {
	if _, ok := t.quantities[symbol]; !ok {
		t.symbols = append(t.symbols, symbol)
	}
	t.quantities[symbol] = quantity
}

// Get returns the desired quantity for a symbol.
func (t *TargetAllocation) Get(symbol string) (float64, bool) {
	q, ok := t.quantities[symbol]
	return q, ok
}

// Has reports whether the symbol is part of the allocation.
func (t *TargetAllocation) Has(symbol string) bool {
	_, ok := t.quantities[symbol]
	return ok
}

// Symbols returns the allocation symbols in insertion order.
func (t *TargetAllocation) Symbols() []string {
	out := make([]string, len(t.symbols))
	copy(out, t.symbols)
	return out
}

// Len is the number of allocated symbols.
func (t *TargetAllocation) Len() int {
	return len(t.symbols)
}
