package stages

import "math/rand"

// SizingPolicy decides trade quantities from the per-symbol context the
// strategy pass has already computed. Implementations must be deterministic
// given their own state so engines fed the same seed stay comparable.
type SizingPolicy interface {
	// SellQuantity sizes a sell against the current holding; the result is
	// bounded by 10% of the holding.
	SellQuantity(holding int64) int64
	// BuyQuantity sizes a buy bounded by 10% of the symbol's volume and by
	// the funds forecast; maxByCapital may be negative when the forecast is
	// below the transaction cost.
	BuyQuantity(maxByVolume, maxByCapital int64) int64
}

// RandomSizing draws quantities uniformly, the reference behavior. The rand
// source is shared with the price generator so a run has a single draw
// stream.
type RandomSizing struct {
	rng *rand.Rand
}

func NewRandomSizing(rng *rand.Rand) *RandomSizing {
	return &RandomSizing{rng: rng}
}

func (p *RandomSizing) SellQuantity(holding int64) int64 {
	capacity := holding / 10
	return int64(p.rng.Intn(int(capacity) + 1))
}

func (p *RandomSizing) BuyQuantity(maxByVolume, maxByCapital int64) int64 {
	if maxByVolume < 0 {
		maxByVolume = 0
	}
	drawn := int64(p.rng.Intn(int(maxByVolume) + 1))
	if drawn > maxByCapital {
		return maxByCapital
	}
	return drawn
}

// MaxSizing always takes the largest admissible quantity. Deterministic;
// used to pin exact golden traces in tests.
type MaxSizing struct{}

func (MaxSizing) SellQuantity(holding int64) int64 {
	return holding / 10
}

func (MaxSizing) BuyQuantity(maxByVolume, maxByCapital int64) int64 {
	if maxByCapital < maxByVolume {
		return maxByCapital
	}
	return maxByVolume
}
