package marketdata

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sync"

	"tradesim/src/datamodels"
	"tradesim/src/utils/errors"
	"tradesim/src/utils/symbols"
)

const defaultAcquireBatchSize = 32

// Snapshot holds the period-0 price and volume of every symbol.
type Snapshot struct {
	PriceData  map[string]float64 `json:"price_data"`
	VolumeData map[string]int64   `json:"volume_data"`
}

// Frame converts the snapshot into the period-0 market frame.
func (s *Snapshot) Frame() *datamodels.Frame {
	frame := datamodels.NewFrame()
	for symbol, price := range s.PriceData {
		frame.Prices[symbol] = price
	}
	for symbol, volume := range s.VolumeData {
		frame.Volumes[symbol] = volume
	}
	return frame
}

// Acquirer populates period-0 entries for a batch of symbols. The real data
// acquisition collaborator lives outside this module; SyntheticAcquirer is
// the shipped stand-in.
type Acquirer interface {
	AcquireBatch(ctx context.Context, symbols []string) (map[string]float64, map[string]int64, error)
}

// ProgressFunc receives the completed fraction of an acquisition, in [0, 1].
type ProgressFunc func(fraction float64)

// ColdStart resolves the period-0 snapshot: memory cache, then the on-disk
// snapshot file, then batched acquisition. A snapshot missing any configured
// symbol counts as a miss and falls through to the next source.
type ColdStart struct {
	path      string
	provider  *symbols.Provider
	acquirer  Acquirer
	batchSize int

	mu     sync.Mutex
	cached *Snapshot
}

func NewColdStart(path string, provider *symbols.Provider, acquirer Acquirer) *ColdStart {
	return &ColdStart{
		path:      path,
		provider:  provider,
		acquirer:  acquirer,
		batchSize: defaultAcquireBatchSize,
	}
}

func (c *ColdStart) WithBatchSize(batchSize int) *ColdStart {
	if batchSize > 0 {
		c.batchSize = batchSize
	}
	return c
}

// Load returns the period-0 snapshot, acquiring and persisting it on a cache
// miss. progress may be nil.
func (c *ColdStart) Load(ctx context.Context, progress ProgressFunc) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	required := c.provider.List()

	if c.cached != nil && c.covers(c.cached, required) {
		slog.Debug("Returning memory cached snapshot")
		return c.cached, nil
	}

	if snapshot, ok := c.loadFromDisk(required); ok {
		slog.Info("Returning disk cached snapshot", "path", c.path)
		c.cached = snapshot
		return snapshot, nil
	}

	snapshot, err := c.acquire(ctx, required, progress)
	if err != nil {
		return nil, err
	}
	c.persist(snapshot)
	c.cached = snapshot
	return snapshot, nil
}

func (c *ColdStart) covers(snapshot *Snapshot, required []string) bool {
	for _, s := range required {
		if _, ok := snapshot.PriceData[s]; !ok {
			return false
		}
		if _, ok := snapshot.VolumeData[s]; !ok {
			return false
		}
	}
	return true
}

func (c *ColdStart) loadFromDisk(required []string) (*Snapshot, bool) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		slog.Info("No cached snapshot found", "path", c.path)
		return nil, false
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		slog.Warn("Cached snapshot is corrupted, re-acquiring", "path", c.path, "error", err)
		return nil, false
	}
	if snapshot.PriceData == nil || snapshot.VolumeData == nil || !c.covers(&snapshot, required) {
		slog.Warn("Cached snapshot is incomplete, re-acquiring", "path", c.path)
		return nil, false
	}
	return &snapshot, true
}

// acquire fans the symbol list out to the acquirer in parallel batches,
// reporting fractional completion per finished batch. A failed batch is
// substituted symbol by symbol rather than failing the run.
func (c *ColdStart) acquire(ctx context.Context, required []string, progress ProgressFunc) (*Snapshot, error) {
	slog.Info("Acquiring initial symbol data", "symbols", len(required))

	batches := make([][]string, 0, len(required)/c.batchSize+1)
	for start := 0; start < len(required); start += c.batchSize {
		end := start + c.batchSize
		if end > len(required) {
			end = len(required)
		}
		batches = append(batches, required[start:end])
	}

	snapshot := &Snapshot{
		PriceData:  make(map[string]float64, len(required)),
		VolumeData: make(map[string]int64, len(required)),
	}
	fallback := NewSyntheticAcquirer(0)

	var mu sync.Mutex
	var wg sync.WaitGroup
	completed := 0

	for _, batch := range batches {
		wg.Add(1)
		go func(batch []string) {
			defer wg.Done()
			prices, volumes, err := c.acquirer.AcquireBatch(ctx, batch)
			if err != nil {
				slog.Warn("Batch acquisition failed, substituting synthetic data",
					"symbols", batch, "error", err)
				prices, volumes, _ = fallback.AcquireBatch(ctx, batch)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, s := range batch {
				price, ok := prices[s]
				if !ok {
					price, _ = fallback.price(s)
				}
				volume, ok := volumes[s]
				if !ok {
					volume = fallback.volume()
				}
				snapshot.PriceData[s] = price
				snapshot.VolumeData[s] = volume
			}
			completed++
			if progress != nil {
				progress(float64(completed) / float64(len(batches)))
			}
		}(batch)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (c *ColdStart) persist(snapshot *Snapshot) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		slog.Error("Failed to marshal snapshot", "error", err)
		return
	}
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			slog.Error("Failed to create snapshot directory", "dir", dir, "error", err)
			return
		}
	}
	if err := os.WriteFile(c.path, data, 0644); err != nil {
		slog.Error("Failed to persist snapshot", "path", c.path, "error", err)
	}
}

// SyntheticAcquirer generates plausible initial prices and volumes instead of
// fetching real market data. Safe for concurrent batches.
type SyntheticAcquirer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewSyntheticAcquirer(seed int64) *SyntheticAcquirer {
	if seed == 0 {
		seed = rand.Int63()
	}
	return &SyntheticAcquirer{rng: rand.New(rand.NewSource(seed))}
}

func (a *SyntheticAcquirer) AcquireBatch(ctx context.Context, batch []string) (map[string]float64, map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "synthetic acquisition cancelled")
	}
	prices := make(map[string]float64, len(batch))
	volumes := make(map[string]int64, len(batch))
	for _, s := range batch {
		prices[s], _ = a.price(s)
		volumes[s] = a.volume()
	}
	return prices, volumes, nil
}

func (a *SyntheticAcquirer) price(string) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return 1 + a.rng.Float64()*99, nil
}

func (a *SyntheticAcquirer) volume() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int64(a.rng.Intn(9991) + 10)
}
