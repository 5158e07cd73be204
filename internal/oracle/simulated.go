package oracle

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// SimulatedAggregator is a random-walk price reference used by the
// simulation binary and local development. It reports integer answers at a
// fixed decimal precision like a real reference would.
type SimulatedAggregator struct {
	ID          string
	NumDecimals uint8
	Drift       float64 // max per-round relative move, e.g. 0.02 for 2%
	FailureRate float64 // 0-1, probability a round read fails

	mu      sync.Mutex
	price   decimal.Decimal // whole units
	roundID uint64
}

// NewSimulatedAggregator creates a simulated reference starting at the given
// whole-unit price
func NewSimulatedAggregator(id string, startPrice decimal.Decimal, numDecimals uint8) *SimulatedAggregator {
	return &SimulatedAggregator{
		ID:          id,
		NumDecimals: numDecimals,
		Drift:       0.02,
		price:       startPrice,
	}
}

// SetPrice pins the reference to an exact whole-unit price
func (a *SimulatedAggregator) SetPrice(price decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.price = price
}

// LatestRoundData returns the current observation, applying a bounded random
// walk per read
func (a *SimulatedAggregator) LatestRoundData() (RoundData, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.FailureRate > 0 && rand.Float64() < a.FailureRate {
		log.Debug().Str("aggregator_id", a.ID).Msg("simulated aggregator round failure")
		return RoundData{}, fmt.Errorf("aggregator %s: round unavailable", a.ID)
	}

	if a.Drift > 0 {
		move := 1 + (rand.Float64()*2-1)*a.Drift
		a.price = a.price.Mul(decimal.NewFromFloat(move)).Round(int32(a.NumDecimals))
	}
	a.roundID++

	return RoundData{
		RoundID:   a.roundID,
		Answer:    a.price.Shift(int32(a.NumDecimals)).Truncate(0),
		StartedAt: time.Now(),
		UpdatedAt: time.Now(),
	}, nil
}

// Decimals returns the reference's native precision
func (a *SimulatedAggregator) Decimals() (uint8, error) {
	return a.NumDecimals, nil
}
