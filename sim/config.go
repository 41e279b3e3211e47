package sim

import (
	"os"

	"gopkg.in/yaml.v3"
)

// NetworkType selects the fabric family.
type NetworkType string

const (
	NetworkClique     NetworkType = "Clique"
	NetworkMesh       NetworkType = "Mesh"
	NetworkTorus      NetworkType = "Torus"
	NetworkButterfly  NetworkType = "Butterfly"
	NetworkFoldedClos NetworkType = "FoldedClos"
)

// Protocol selects the consensus state machine.
type Protocol string

const (
	ProtocolIBFT     Protocol = "IBFT"
	ProtocolHotStuff Protocol = "HotStuff"
)

// RunConfig is the run configuration consumed by the CLI and passed to
// the core. On disk it is a JSON or YAML object; yaml.v3 parses both
// since YAML 1.2 is a JSON superset.
type RunConfig struct {
	NumRuns              int         `yaml:"numRuns"`
	NumConsensus         int         `yaml:"numConsensus"`
	StartingSeed         int64       `yaml:"startingSeed"`
	SeedMultiplier       int64       `yaml:"seedMultiplier"`
	NumNodes             int         `yaml:"numNodes"`
	NodeProcessingRate   float64     `yaml:"nodeProcessingRate"`
	SwitchProcessingRate float64     `yaml:"switchProcessingRate"`
	BaseTimeLimit        float64     `yaml:"baseTimeLimit"`
	NetworkType          NetworkType `yaml:"networkType"`
	NetworkParameters    []int       `yaml:"networkParameters"`
	ConsensusProtocol    Protocol    `yaml:"consensusProtocol"`
}

// LoadRunConfig reads and validates a run configuration file.
func LoadRunConfig(path string) (*RunConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, newConfigErrorf("reading %s: %v", path, err)
	}
	var cfg RunConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, newConfigErrorf("parsing %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field ranges and fills the protocol default. Topology
// parameter semantics are checked later by the topology constructors.
func (c *RunConfig) Validate() error {
	if c.NumRuns < 1 {
		return newConfigErrorf("numRuns must be >= 1, got %d", c.NumRuns)
	}
	if c.NumConsensus < 1 {
		return newConfigErrorf("numConsensus must be >= 1, got %d", c.NumConsensus)
	}
	if c.NumNodes < 4 {
		return newConfigErrorf("numNodes must be >= 4, got %d", c.NumNodes)
	}
	if err := validateRate("nodeProcessingRate", c.NodeProcessingRate); err != nil {
		return err
	}
	if err := validateRate("switchProcessingRate", c.SwitchProcessingRate); err != nil {
		return err
	}
	if c.BaseTimeLimit <= 0 {
		return newConfigErrorf("baseTimeLimit must be > 0, got %v", c.BaseTimeLimit)
	}
	switch c.NetworkType {
	case NetworkClique, NetworkMesh, NetworkTorus, NetworkButterfly, NetworkFoldedClos:
	default:
		return newConfigErrorf("unknown networkType %q", c.NetworkType)
	}
	if c.ConsensusProtocol == "" {
		c.ConsensusProtocol = ProtocolIBFT
	}
	switch c.ConsensusProtocol {
	case ProtocolIBFT, ProtocolHotStuff:
	default:
		return newConfigErrorf("unknown consensusProtocol %q", c.ConsensusProtocol)
	}
	return nil
}

func validateRate(field string, rate float64) error {
	if rate > 0 || rate == RateInstant {
		return nil
	}
	return newConfigErrorf("%s must be > 0 or -1 (instantaneous), got %v", field, rate)
}
