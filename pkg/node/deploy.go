package node

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gopartyparrot/solana-flux-aggregator/pkg/chain"
)

// Deployment describes the on-chain accounts of a program deployment. The
// file is produced by the deployment tooling and consumed read-only here.
type Deployment struct {
	ProgramID   string                      `json:"programId"`
	Aggregators map[string]DeployAggregator `json:"aggregators"`
}

// DeployAggregator is one aggregator (pair) of a deployment.
type DeployAggregator struct {
	Address string                  `json:"address"`
	Oracles map[string]DeployOracle `json:"oracles"`
}

// DeployOracle is one oracle account of an aggregator.
type DeployOracle struct {
	Address string `json:"address"`
	Owner   string `json:"owner"`
}

// LoadDeployment reads a deployment file.
func LoadDeployment(path string) (*Deployment, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read deploy file: %w", err)
	}

	var d Deployment
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse deploy file: %w", err)
	}

	return &d, nil
}

// Assignment is one (aggregator, oracle) pair this node is responsible for.
type Assignment struct {
	PairSymbol string
	Aggregator chain.Address
	OracleName string
	Oracle     chain.Address
}

// AssignmentsFor returns the aggregators that carry an oracle owned by the
// given identity, one assignment per pair.
func (d *Deployment) AssignmentsFor(owner string) ([]Assignment, error) {
	var assignments []Assignment

	for pair, agg := range d.Aggregators {
		for name, oracle := range agg.Oracles {
			if oracle.Owner != owner {
				continue
			}

			aggAddr, err := chain.AddressFromHex(agg.Address)
			if err != nil {
				return nil, fmt.Errorf("aggregator %s: %w", pair, err)
			}
			oracleAddr, err := chain.AddressFromHex(oracle.Address)
			if err != nil {
				return nil, fmt.Errorf("oracle %s of %s: %w", name, pair, err)
			}

			assignments = append(assignments, Assignment{
				PairSymbol: pair,
				Aggregator: aggAddr,
				OracleName: name,
				Oracle:     oracleAddr,
			})
			break // one oracle per aggregator per owner
		}
	}

	if len(assignments) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoAggregators, owner)
	}

	return assignments, nil
}
