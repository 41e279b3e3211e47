package sim

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible simulation trial.
// Two trials with the same SimulationKey and identical configuration
// MUST produce bit-for-bit identical traces.
type SimulationKey int64

// NewSimulationKey derives the key for trial k from the run configuration:
// startingSeed + k * seedMultiplier.
func NewSimulationKey(startingSeed, seedMultiplier int64, trial int) SimulationKey {
	return SimulationKey(startingSeed + int64(trial)*seedMultiplier)
}

// === Subsystem Constants ===

const (
	// SubsystemService is the RNG subsystem for service-time sampling.
	// All node and switch samplers share this single stream, consumed in
	// event-dispatch order, so the seed fixes the whole trial.
	SubsystemService = "service"
)

// SubsystemUplink returns the subsystem name for endpoint id's uplink
// selection stream. Each endpoint picks its uplink switch from its own
// sub-stream so the choice is stable regardless of dispatch order.
func SubsystemUplink(id int) string {
	return fmt.Sprintf("uplink_%d", id)
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derivation formula:
//   - For SubsystemService: uses the trial key directly
//   - For all other subsystems: key XOR fnv1a64(subsystemName)
//
// Thread-safety: NOT thread-safe. The event loop is single-threaded.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}

	var derivedSeed int64
	if name == SubsystemService {
		derivedSeed = int64(p.key)
	} else {
		derivedSeed = int64(p.key) ^ fnv1a64(name)
	}

	rng := rand.New(rand.NewSource(derivedSeed))
	p.subsystems[name] = rng
	return rng
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}

// === ExponentialSampler ===

// RateInstant is the sentinel service rate meaning zero service time
// (the node or switch is transparent).
const RateInstant = -1.0

// ExponentialSampler draws exponential service times by inverse CDF over
// a shared uniform stream. A rate of RateInstant never touches the
// stream and always returns 0.
type ExponentialSampler struct {
	rate    float64
	uniform *rand.Rand
}

// NewExponentialSampler creates a sampler with the given rate over the
// shared uniform stream.
func NewExponentialSampler(rate float64, uniform *rand.Rand) *ExponentialSampler {
	return &ExponentialSampler{rate: rate, uniform: uniform}
}

// Sample returns the next service time draw.
func (s *ExponentialSampler) Sample() float64 {
	if s.rate == RateInstant {
		return 0
	}
	u := s.uniform.Float64()
	return -math.Log1p(-u) / s.rate
}

// Rate returns the sampler's configured rate.
func (s *ExponentialSampler) Rate() float64 {
	return s.rate
}
