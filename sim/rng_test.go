package sim

import (
	"math"
	"math/rand"
	"testing"
)

// === SimulationKey Tests ===

func TestSimulationKey_TrialDerivation(t *testing.T) {
	tests := []struct {
		name           string
		startingSeed   int64
		seedMultiplier int64
		trial          int
		want           int64
	}{
		{"trial zero uses starting seed", 42, 100, 0, 42},
		{"trial one adds multiplier", 42, 100, 1, 142},
		{"trial three", 7, 10, 3, 37},
		{"negative seed", -5, 100, 2, 195},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := NewSimulationKey(tt.startingSeed, tt.seedMultiplier, tt.trial)
			if int64(key) != tt.want {
				t.Errorf("NewSimulationKey(%d, %d, %d) = %d, want %d",
					tt.startingSeed, tt.seedMultiplier, tt.trial, key, tt.want)
			}
		})
	}
}

// === PartitionedRNG Tests ===

func TestPartitionedRNG_DeterministicDerivation(t *testing.T) {
	rng1 := NewPartitionedRNG(NewSimulationKey(42, 100, 0))
	rng2 := NewPartitionedRNG(NewSimulationKey(42, 100, 0))

	for i := 0; i < 5; i++ {
		v1 := rng1.ForSubsystem(SubsystemService).Float64()
		v2 := rng2.ForSubsystem(SubsystemService).Float64()
		if v1 != v2 {
			t.Errorf("Value %d: got %v and %v, want identical", i, v1, v2)
		}
	}
}

func TestPartitionedRNG_UplinkIsolation(t *testing.T) {
	// Draining the shared service stream must not shift an endpoint's
	// uplink sub-stream.
	rngA := NewPartitionedRNG(NewSimulationKey(42, 100, 0))
	rngB := NewPartitionedRNG(NewSimulationKey(42, 100, 0))

	for i := 0; i < 100; i++ {
		rngA.ForSubsystem(SubsystemService).Float64()
	}

	for i := 0; i < 10; i++ {
		a := rngA.ForSubsystem(SubsystemUplink(3)).Float64()
		b := rngB.ForSubsystem(SubsystemUplink(3)).Float64()
		if a != b {
			t.Errorf("uplink draw %d: got %v and %v, want identical", i, a, b)
		}
	}
}

func TestPartitionedRNG_DistinctUplinkStreams(t *testing.T) {
	rng := NewPartitionedRNG(NewSimulationKey(0, 100, 0))
	a := rng.ForSubsystem(SubsystemUplink(0)).Float64()
	b := rng.ForSubsystem(SubsystemUplink(1)).Float64()
	if a == b {
		t.Errorf("uplink streams 0 and 1 produced the same first draw %v", a)
	}
}

// === ExponentialSampler Tests ===

func TestExponentialSampler_InstantRate(t *testing.T) {
	uniform := rand.New(rand.NewSource(7))
	sampler := NewExponentialSampler(RateInstant, uniform)

	for i := 0; i < 5; i++ {
		if got := sampler.Sample(); got != 0 {
			t.Errorf("instant sampler draw %d = %v, want 0", i, got)
		}
	}
	// The sentinel must not consume the shared stream.
	fresh := rand.New(rand.NewSource(7))
	if got, want := uniform.Float64(), fresh.Float64(); got != want {
		t.Errorf("instant sampler consumed the uniform stream: next draw %v, want %v", got, want)
	}
}

func TestExponentialSampler_InverseCDF(t *testing.T) {
	rate := 2.5
	sampler := NewExponentialSampler(rate, rand.New(rand.NewSource(42)))
	reference := rand.New(rand.NewSource(42))

	for i := 0; i < 10; i++ {
		want := -math.Log1p(-reference.Float64()) / rate
		if got := sampler.Sample(); got != want {
			t.Errorf("draw %d = %v, want %v", i, got, want)
		}
	}
}

func TestExponentialSampler_NonNegative(t *testing.T) {
	sampler := NewExponentialSampler(0.1, rand.New(rand.NewSource(1)))
	for i := 0; i < 1000; i++ {
		if got := sampler.Sample(); got < 0 {
			t.Fatalf("draw %d = %v, want >= 0", i, got)
		}
	}
}
