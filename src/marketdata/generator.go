package marketdata

import (
	"math"
	"math/rand"
	"time"

	"github.com/aquilax/go-perlin"

	"tradesim/src/datamodels"
)

const (
	// MinPrice is the floor every evolved price is clamped to; the generator
	// never emits a zero or negative price.
	MinPrice = 0.001

	noiseScale = 50.0
	noiseAlpha = 2.0
	noiseBeta  = 2.0
	noiseOrder = 3
)

// Generator evolves per-symbol prices and volumes period by period using
// smooth 3-D coherent noise. It is a per-run service object: the seed and the
// draw stream are fixed at construction, so two generators built with the
// same seed produce identical evolutions.
type Generator struct {
	noise *perlin.Perlin
	rng   *rand.Rand
	seedZ float64
}

// NewGenerator builds a generator for one run. A zero seed picks a
// wall-clock seed.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano() % 1_000_000
	}
	return &Generator{
		noise: perlin.NewPerlin(noiseAlpha, noiseBeta, noiseOrder, seed),
		rng:   rand.New(rand.NewSource(seed)),
		seedZ: float64(seed%1_000_000) / 1000.0,
	}
}

// Rand exposes the generator's draw stream so trade sizing shares it; all
// randomness of a run flows through one seeded source.
func (g *Generator) Rand() *rand.Rand {
	return g.rng
}

// EvolvePrice produces the next price of a symbol: the old price shifted by
// coherent noise scaled to at most ±10% of it, floor-clamped to MinPrice.
func (g *Generator) EvolvePrice(period, symbolIndex int, oldPrice float64) float64 {
	bound := int(math.Round(0.10 * oldPrice * 1000))
	if bound < 1 {
		bound = 1
	}
	magnitude := float64(g.rng.Intn(bound)+1) / 1000.0
	n := g.noise.Noise3D(float64(period)/noiseScale, float64(symbolIndex), g.seedZ)
	newPrice := oldPrice + n*magnitude
	if newPrice < MinPrice {
		return MinPrice
	}
	return newPrice
}

// EvolveSymbol advances one symbol's price and volume in the frame and
// returns the old price, the new price and their difference. Volume is
// perturbed by a random amount bounded by volume × |price change fraction|,
// pushed opposite to the price move, and clamped at zero.
func (g *Generator) EvolveSymbol(frame *datamodels.Frame, period, symbolIndex int, symbol string) (float64, float64, float64) {
	oldPrice := frame.Prices[symbol]
	newPrice := g.EvolvePrice(period, symbolIndex, oldPrice)
	frame.Prices[symbol] = newPrice
	delta := newPrice - oldPrice

	volume := frame.Volumes[symbol]
	if volume > 0 && oldPrice > 0 {
		direction := int64(1)
		if delta > 0 {
			direction = -1
		}
		fraction := math.Abs(delta / oldPrice)
		bound := int(math.Round(float64(volume) * fraction))
		perturbation := int64(g.rng.Intn(bound + 1))
		frame.Volumes[symbol] = volume + direction*perturbation
	}
	if frame.Volumes[symbol] < 0 {
		frame.Volumes[symbol] = 0
	}

	return oldPrice, newPrice, delta
}
