package sim

import (
	"fmt"
	"strings"
)

// ConsensusStatistics accumulates, per validator, the simulated time
// spent in each consensus state and the number of decided instances.
// Mutated only by its owning validator while it handles an event.
type ConsensusStatistics struct {
	states         []string
	timeInState    map[string]float64
	consensusCount int
}

// NewConsensusStatistics creates statistics over the given state names.
// The slice fixes the reporting order.
func NewConsensusStatistics(states []string) *ConsensusStatistics {
	t := make(map[string]float64, len(states))
	for _, s := range states {
		t[s] = 0
	}
	return &ConsensusStatistics{states: states, timeInState: t}
}

// AddTime charges dt simulated seconds to the given state.
func (cs *ConsensusStatistics) AddTime(state string, dt float64) {
	cs.timeInState[state] += dt
}

// SetConsensusCount records the validator's decided-instance count.
func (cs *ConsensusStatistics) SetConsensusCount(n int) {
	cs.consensusCount = n
}

// ConsensusCount returns the decided-instance count.
func (cs *ConsensusStatistics) ConsensusCount() int {
	return cs.consensusCount
}

// TimeIn returns the cumulative time charged to state.
func (cs *ConsensusStatistics) TimeIn(state string) float64 {
	return cs.timeInState[state]
}

// TotalTime returns the sum over all states. For a finalized validator
// this equals the final simulated time of the trial.
func (cs *ConsensusStatistics) TotalTime() float64 {
	var total float64
	for _, s := range cs.states {
		total += cs.timeInState[s]
	}
	return total
}

func (cs *ConsensusStatistics) String() string {
	parts := make([]string, 0, len(cs.states))
	for _, s := range cs.states {
		parts = append(parts, fmt.Sprintf("%s: %.3f", s, cs.timeInState[s]))
	}
	return fmt.Sprintf("count=%d {%s}", cs.consensusCount, strings.Join(parts, ", "))
}
