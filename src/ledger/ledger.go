package ledger

// Ledger is the authoritative per-run portfolio state: the funds balance,
// per-symbol share counts and running trade counters. The settlement stage
// is its only writer; the strategy stage sizes trades against a forecast
// copy of Funds and never writes back.
type Ledger struct {
	Funds     float64
	Shares    map[string]int64
	BuyCount  int64
	SellCount int64
}

func New(initialFunds float64) *Ledger {
	return &Ledger{
		Funds:  initialFunds,
		Shares: make(map[string]int64),
	}
}

// Holding returns the share count for a symbol; absent means zero.
func (l *Ledger) Holding(symbol string) int64 {
	return l.Shares[symbol]
}

// Balance values the ledger at the given prices: funds plus the sum of
// price × holding over every held symbol.
func (l *Ledger) Balance(prices map[string]float64) float64 {
	balance := l.Funds
	for symbol, quantity := range l.Shares {
		balance += prices[symbol] * float64(quantity)
	}
	return balance
}

// SharesCopy returns an independent copy of the share map.
func (l *Ledger) SharesCopy() map[string]int64 {
	out := make(map[string]int64, len(l.Shares))
	for symbol, quantity := range l.Shares {
		out[symbol] = quantity
	}
	return out
}

func (l *Ledger) Clone() *Ledger {
	return &Ledger{
		Funds:     l.Funds,
		Shares:    l.SharesCopy(),
		BuyCount:  l.BuyCount,
		SellCount: l.SellCount,
	}
}
