// Package trafficdata feeds the simulation with per-approach spawn rates
// derived from a detector time series: a header-less CSV of vehicle counts,
// one row per time step and one column per detector. When no file is
// available a synthetic Poisson series stands in.
package trafficdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"trafficsim/models"
)

// ErrUnavailable marks a provider that cannot serve rates for the requested
// intersection. The simulation recovers with its uniform default rate.
var ErrUnavailable = errors.New("traffic data unavailable")

const (
	windowSteps = 120  // 2-minute window at one-second steps
	rateScale   = 0.01 // detector counts to spawn probability
	maxRate     = 0.5
)

// Provider maps simulated intersections onto detector columns and converts
// windowed mean flow into spawn probabilities.
type Provider struct {
	mu      sync.Mutex
	data    [][]float64
	columns map[string]int
	cursor  int
	rng     *rand.Rand
}

// Load reads the detector series from path and assigns a random column to
// each intersection id.
func Load(path string, intersectionIDs []string, seed int64) (*Provider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open traffic data file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read traffic data csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("traffic data file %s is empty", path)
	}

	data := make([][]float64, 0, len(records))
	for i, record := range records {
		row := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("bad value at row %d col %d: %w", i, j, err)
			}
			row[j] = v
		}
		data = append(data, row)
	}

	p := newProvider(data, intersectionIDs, seed)
	log.Infof("loaded traffic data: %d time steps, %d detectors", len(data), len(data[0]))
	return p, nil
}

// Synthetic builds a Poisson(15) detector series as a stand-in for real data.
func Synthetic(intersectionIDs []string, seed int64) *Provider {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	cols := len(intersectionIDs)
	if cols < 1 {
		cols = 1
	}

	data := make([][]float64, 2000)
	for i := range data {
		row := make([]float64, cols)
		for j := range row {
			row[j] = float64(poisson(rng, 15))
		}
		data[i] = row
	}

	log.Infof("generated synthetic traffic data: %d time steps, %d detectors", len(data), cols)
	return newProvider(data, intersectionIDs, seed)
}

func newProvider(data [][]float64, intersectionIDs []string, seed int64) *Provider {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	columns := make(map[string]int, len(intersectionIDs))
	perm := rng.Perm(len(data[0]))
	for i, id := range intersectionIDs {
		columns[id] = perm[i%len(perm)]
	}
	return &Provider{data: data, columns: columns, rng: rng}
}

// poisson samples by Knuth's method; fine for the small means used here.
func poisson(rng *rand.Rand, lambda float64) int {
	l := math.Exp(-lambda)
	k := 0
	p := 1.0
	for {
		p *= rng.Float64()
		if p <= l {
			return k
		}
		k++
	}
}

// SpawnRates returns per-approach spawn probabilities for one intersection:
// the windowed mean flow of its detector column, split across approaches with
// ±20% jitter, scaled and clamped.
func (p *Provider) SpawnRates(intersectionID string) (map[models.Approach]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	col, ok := p.columns[intersectionID]
	if !ok {
		return nil, fmt.Errorf("no detector column for %q: %w", intersectionID, ErrUnavailable)
	}

	end := p.cursor + windowSteps
	if end > len(p.data) {
		end = len(p.data)
	}
	sum := 0.0
	count := 0
	for i := p.cursor; i < end; i++ {
		sum += p.data[i][col]
		count++
	}
	if count == 0 {
		return nil, fmt.Errorf("empty data window: %w", ErrUnavailable)
	}
	avgFlow := sum / float64(count)

	rates := make(map[models.Approach]float64, 4)
	for _, a := range models.Approaches() {
		share := 0.25 + (p.rng.Float64()*0.4 - 0.2)
		if share < 0 {
			share = 0
		}
		rate := avgFlow * share * rateScale
		if rate > maxRate {
			rate = maxRate
		}
		rates[a] = rate
	}
	return rates, nil
}

// Advance moves the time cursor, wrapping at the end of the series.
func (p *Provider) Advance(steps int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor = (p.cursor + steps) % len(p.data)
}

// Cursor reports the current position in the series.
func (p *Provider) Cursor() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}
