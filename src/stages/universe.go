package stages

// UniverseSelector filters the configured symbol list down to the symbols
// eligible for trading in a period.
type UniverseSelector func(symbols []string) []string

// SingleCharSelector is the reference selection policy: only
// single-character tickers are tradeable. It is a placeholder rule, not a
// market-structure requirement; swap the selector to change it.
func SingleCharSelector(symbols []string) []string {
	universe := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if len(s) == 1 {
			universe = append(universe, s)
		}
	}
	return universe
}

// AllSymbolsSelector trades the full configured list.
func AllSymbolsSelector(symbols []string) []string {
	universe := make([]string, len(symbols))
	copy(universe, symbols)
	return universe
}
