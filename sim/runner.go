package sim

import (
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// TrialResult summarizes one completed trial.
type TrialResult struct {
	Trial            int
	FinalTime        float64
	Steps            int
	ConsensusReached bool
}

// Summary aggregates results across a run's trials.
type Summary struct {
	Results []TrialResult

	MeanFinalTime   float64
	StddevFinalTime float64
	AllReached      bool
}

func (s *Summary) String() string {
	return fmt.Sprintf("=== Run Summary ===\nTrials               : %d\nAll reached consensus: %v\nMean final time      : %.3f\nStddev final time    : %.3f",
		len(s.Results), s.AllReached, s.MeanFinalTime, s.StddevFinalTime)
}

// BuildTrial constructs the simulator for one trial: validators first in
// the arena (so validator id equals NodeID), then the fabric, then the
// initial poll and bootstrap events.
func BuildTrial(cfg *RunConfig, trial int, maxRuntime time.Duration) (*Simulator, error) {
	key := NewSimulationKey(cfg.StartingSeed, cfg.SeedMultiplier, trial)
	rng := NewPartitionedRNG(key)
	s := NewSimulator(cfg.NumConsensus, maxRuntime)

	serviceStream := rng.ForSubsystem(SubsystemService)
	endpoints := make([]Endpoint, 0, cfg.NumNodes)
	for vid := 0; vid < cfg.NumNodes; vid++ {
		sampler := NewExponentialSampler(cfg.NodeProcessingRate, serviceStream)
		uplinkRd := rng.ForSubsystem(SubsystemUplink(vid))
		node := s.AddNode(func(id NodeID) Node {
			return newValidatorForProtocol(cfg, id, vid, sampler, uplinkRd, s)
		})
		v := node.(ConsensusNode)
		s.RegisterValidator(v)
		endpoints = append(endpoints, node.(Endpoint))
	}

	peers := make([]NodeID, cfg.NumNodes)
	for vid := 0; vid < cfg.NumNodes; vid++ {
		peers[vid] = NodeID(vid)
	}
	for _, v := range s.Validators() {
		v.SetPeers(peers)
	}

	if _, err := BuildTopology(s, cfg, endpoints, rng); err != nil {
		return nil, err
	}

	for vid := 0; vid < cfg.NumNodes; vid++ {
		s.Schedule(NewPollQueueEvent(0, NodeID(vid)))
		s.Schedule(NewBootstrapEvent(0, NodeID(vid)))
	}
	return s, nil
}

func newValidatorForProtocol(cfg *RunConfig, id NodeID, vid int,
	sampler *ExponentialSampler, uplinkRd *rand.Rand, notifier TimerNotifier) Node {
	switch cfg.ConsensusProtocol {
	case ProtocolHotStuff:
		return NewHSValidator(id, vid, cfg.NumNodes, cfg.BaseTimeLimit, sampler, uplinkRd, notifier)
	default:
		return NewIBFTValidator(id, vid, cfg.NumNodes, cfg.BaseTimeLimit, sampler, uplinkRd, notifier)
	}
}

// RunTrial drives one trial to completion, writing the event trace and
// the closing snapshot to out.
func RunTrial(s *Simulator, out io.Writer) (*TrialResult, error) {
	steps := 0
	for !s.IsOver() {
		line := s.Step()
		steps++
		if _, err := fmt.Fprintln(out, line); err != nil {
			return nil, err
		}
	}

	reached := true
	for _, v := range s.Validators() {
		v.Finalize(s.Clock)
		if v.ConsensusCount() < s.ConsensusLimit {
			reached = false
		}
	}
	if _, err := fmt.Fprintf(out, "\n%s\n", s.Snapshot()); err != nil {
		return nil, err
	}
	return &TrialResult{FinalTime: s.Clock, Steps: steps, ConsensusReached: reached}, nil
}

// SinkFunc opens the output sink for one trial. The returned closer may
// be nil for shared sinks like stdout.
type SinkFunc func(trial int) (io.Writer, func() error, error)

// Run executes cfg.NumRuns independent trials and aggregates a summary.
func Run(cfg *RunConfig, maxRuntime time.Duration, sink SinkFunc) (*Summary, error) {
	summary := &Summary{AllReached: true}
	finalTimes := make([]float64, 0, cfg.NumRuns)

	for trial := 0; trial < cfg.NumRuns; trial++ {
		s, err := BuildTrial(cfg, trial, maxRuntime)
		if err != nil {
			return nil, err
		}
		out, closeSink, err := sink(trial)
		if err != nil {
			return nil, err
		}

		logrus.Infof("trial %d: %d validators, %s fabric, seed key %d",
			trial, cfg.NumNodes, cfg.NetworkType,
			int64(NewSimulationKey(cfg.StartingSeed, cfg.SeedMultiplier, trial)))
		result, err := RunTrial(s, out)
		if closeSink != nil {
			if cerr := closeSink(); cerr != nil && err == nil {
				err = cerr
			}
		}
		if err != nil {
			return nil, err
		}

		result.Trial = trial
		summary.Results = append(summary.Results, *result)
		finalTimes = append(finalTimes, result.FinalTime)
		if !result.ConsensusReached {
			summary.AllReached = false
		}
	}

	summary.MeanFinalTime = stat.Mean(finalTimes, nil)
	if len(finalTimes) > 1 {
		summary.StddevFinalTime = stat.StdDev(finalTimes, nil)
	}
	return summary, nil
}
