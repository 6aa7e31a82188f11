package montecarlo

import (
	"math/rand"
	"time"
)

// RandomStream is a source of uniform draws in [0, 1). *rand.Rand satisfies it.
type RandomStream interface {
	Float64() float64
}

// NewStream returns a reproducible stream for seed.
func NewStream(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// DeriveSeed returns the seed for run index's own stream within a batch.
// Uses splitmix64 so neighbouring indices get unrelated seeds.
func DeriveSeed(batchSeed int64, index int) int64 {
	z := uint64(batchSeed) + uint64(index+1)*0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return int64(z ^ (z >> 31))
}

func timeSeed() int64 {
	return time.Now().UnixNano()
}

// OutcomeGenerator decides whether each trade wins
type OutcomeGenerator struct {
	stream RandomStream
}

// NewOutcomeGenerator wraps stream. The stream is advanced once per trade.
func NewOutcomeGenerator(stream RandomStream) *OutcomeGenerator {
	return &OutcomeGenerator{stream: stream}
}

// Next draws one trade outcome: a win when the draw is strictly below winRate,
// so 0 never wins and 1 always wins.
func (g *OutcomeGenerator) Next(winRate float64) bool {
	return g.stream.Float64() < winRate
}
