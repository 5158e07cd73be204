package oracle

import (
	"time"

	"github.com/shopspring/decimal"
)

// RoundData is one observation from an external price reference. Answer is
// expressed in the reference's native integer precision; the feed's recorded
// decimals rescale it to a whole-unit price on read.
type RoundData struct {
	RoundID   uint64
	Answer    decimal.Decimal
	StartedAt time.Time
	UpdatedAt time.Time
}

// Aggregator is an external price reference. A failed call is treated as an
// invalid price by the oracle, never as a fatal error.
type Aggregator interface {
	LatestRoundData() (RoundData, error)
	Decimals() (uint8, error)
}
