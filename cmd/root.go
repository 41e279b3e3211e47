package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sim "github.com/consensus-sim/consensus-sim/sim"
)

var (
	// CLI flags mirroring the run configuration
	configPath           string  // Optional JSON/YAML run configuration file
	logLevel             string  // Log verbosity level
	numRuns              int     // Number of independent trials
	numConsensus         int     // Consensus instances each validator must decide
	startingSeed         int64   // RNG seed for trial 0
	seedMultiplier       int64   // Trial k uses startingSeed + k*seedMultiplier
	numNodes             int     // Validator count
	nodeProcessingRate   float64 // Exponential service rate for validators (-1 = instantaneous)
	switchProcessingRate float64 // Exponential service rate for switches (-1 = instantaneous)
	baseTimeLimit        float64 // Round-0 timeout; doubles per round
	networkType          string  // Clique, Mesh, Torus, Butterfly, FoldedClos
	networkParameters    []int   // Per-topology parameters
	consensusProtocol    string  // IBFT or HotStuff
	outputPrefix         string  // Trace sink: "console" or a file prefix
	maxRuntime           time.Duration
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "consensus-sim",
	Short: "Discrete-event simulator for BFT consensus over switched fabrics",
}

// runCmd executes the simulation using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the consensus simulation",
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		cfg, err := resolveConfig()
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		logrus.Infof("Starting %d trial(s): %d validators, %s fabric, protocol %s",
			cfg.NumRuns, cfg.NumNodes, cfg.NetworkType, cfg.ConsensusProtocol)

		startTime := time.Now()
		summary, err := sim.Run(cfg, maxRuntime, trialSink)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		fmt.Println(summary)
		logrus.Infof("Simulation complete in %v.", time.Since(startTime))
	},
}

// resolveConfig loads the configuration file when given, otherwise
// assembles the configuration from the CLI flags.
func resolveConfig() (*sim.RunConfig, error) {
	if configPath != "" {
		return sim.LoadRunConfig(configPath)
	}
	cfg := &sim.RunConfig{
		NumRuns:              numRuns,
		NumConsensus:         numConsensus,
		StartingSeed:         startingSeed,
		SeedMultiplier:       seedMultiplier,
		NumNodes:             numNodes,
		NodeProcessingRate:   nodeProcessingRate,
		SwitchProcessingRate: switchProcessingRate,
		BaseTimeLimit:        baseTimeLimit,
		NetworkType:          sim.NetworkType(networkType),
		NetworkParameters:    networkParameters,
		ConsensusProtocol:    sim.Protocol(consensusProtocol),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// trialSink opens the trace sink for one trial: stdout, or one file per
// trial when an output prefix is set.
func trialSink(trial int) (io.Writer, func() error, error) {
	if outputPrefix == "" || outputPrefix == "console" {
		return os.Stdout, nil, nil
	}
	f, err := os.Create(fmt.Sprintf("%s%d.txt", outputPrefix, trial))
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "Run configuration file (JSON or YAML); overrides the other flags")
	runCmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")

	runCmd.Flags().IntVar(&numRuns, "num-runs", 1, "Number of independent trials")
	runCmd.Flags().IntVar(&numConsensus, "num-consensus", 10, "Consensus instances each validator must decide")
	runCmd.Flags().Int64Var(&startingSeed, "starting-seed", 0, "RNG seed for trial 0")
	runCmd.Flags().Int64Var(&seedMultiplier, "seed-multiplier", 100, "Trial k uses starting-seed + k*seed-multiplier")
	runCmd.Flags().IntVar(&numNodes, "num-nodes", 4, "Validator count")
	runCmd.Flags().Float64Var(&nodeProcessingRate, "node-processing-rate", 5.0, "Validator exponential service rate (-1 = instantaneous)")
	runCmd.Flags().Float64Var(&switchProcessingRate, "switch-processing-rate", -1, "Switch exponential service rate (-1 = instantaneous)")
	runCmd.Flags().Float64Var(&baseTimeLimit, "base-time-limit", 10, "Round-0 timeout; doubles per round")
	runCmd.Flags().StringVar(&networkType, "network-type", "Clique", "Fabric family: Clique, Mesh, Torus, Butterfly, FoldedClos")
	runCmd.Flags().IntSliceVar(&networkParameters, "network-parameters", nil, "Per-topology parameters (see docs)")
	runCmd.Flags().StringVar(&consensusProtocol, "protocol", "IBFT", "Consensus protocol: IBFT or HotStuff")
	runCmd.Flags().StringVar(&outputPrefix, "output", "console", "Trace sink: console, or a file prefix for per-trial output<k>.txt files")
	runCmd.Flags().DurationVar(&maxRuntime, "max-runtime", 5*time.Minute, "Wall-clock budget per trial")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
