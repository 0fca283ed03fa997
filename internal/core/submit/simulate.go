package submit

import (
	"context"
	"errors"
	"fmt"

	"github.com/vietddude/txgate/internal/core/classify"
	"github.com/vietddude/txgate/internal/core/domain"
	"github.com/vietddude/txgate/internal/core/txn"
	"github.com/vietddude/txgate/internal/infra/chain"
)

// DryRunner is the part of the ledger used for dry runs and fee quotes.
type DryRunner interface {
	SimulateTransaction(ctx context.Context, wire []byte, commitment domain.Commitment) (*chain.SimulationResult, error)
	FeeForMessage(ctx context.Context, message []byte, commitment domain.Commitment) (uint64, error)
}

// Simulation is the result of a dry run. Error uses the submission taxonomy and is always NotSubmitted.
type Simulation struct {
	Success       bool
	Error         *domain.ClassifiedError
	Logs          []string
	UnitsConsumed uint64
}

// Estimate is the expected cost of a transaction.
type Estimate struct {
	ComputeUnits uint64
	Fee          uint64
	// Simulation is the dry run the compute units were measured on.
	Simulation *Simulation
}

// Simulator runs transactions without committing them.
type Simulator struct {
	ledger DryRunner
	enc    WireEncoder
}

// NewSimulator creates a simulator.
func NewSimulator(ledger DryRunner, enc WireEncoder) *Simulator {
	return &Simulator{ledger: ledger, enc: enc}
}

// Simulate dry-runs a compiled transaction. Signatures are not required.
func (s *Simulator) Simulate(ctx context.Context, tx *domain.Transaction, commitment domain.Commitment) (*Simulation, error) {
	if err := s.check(tx, txn.OpSimulate); err != nil {
		return nil, err
	}
	if commitment == "" {
		commitment = domain.DefaultCommitment
	}

	wire, err := s.enc.EncodeTransaction(tx)
	if err != nil {
		return nil, domain.InvalidArgument(string(txn.OpSimulate), "transaction", "encode transaction: %v", err)
	}

	res, err := s.ledger.SimulateTransaction(ctx, wire, commitment)
	if err != nil {
		return nil, fmt.Errorf("simulate transaction: %w", err)
	}

	ce := classify.ClassifySimulation(res.Err, res.Logs, res.UnitsConsumed)
	return &Simulation{
		Success:       ce == nil,
		Error:         ce,
		Logs:          res.Logs,
		UnitsConsumed: res.UnitsConsumed,
	}, nil
}

// Estimate measures compute units by simulation and quotes the fee for the message.
func (s *Simulator) Estimate(ctx context.Context, tx *domain.Transaction, commitment domain.Commitment) (*Estimate, error) {
	if err := s.check(tx, txn.OpEstimate); err != nil {
		return nil, err
	}

	sim, err := s.Simulate(ctx, tx, commitment)
	if err != nil {
		return nil, err
	}

	fee, err := s.ledger.FeeForMessage(ctx, tx.Message, commitment)
	if errors.Is(err, chain.ErrReferenceExpired) {
		return nil, domain.InvalidState(string(txn.OpEstimate),
			"expiry reference %s is no longer valid; recompile the transaction", tx.ExpiryReference)
	}
	if err != nil {
		return nil, fmt.Errorf("fee for message: %w", err)
	}

	return &Estimate{
		ComputeUnits: sim.UnitsConsumed,
		Fee:          fee,
		Simulation:   sim,
	}, nil
}

func (s *Simulator) check(tx *domain.Transaction, op txn.Operation) error {
	return txn.CheckCompiled(tx, op, s.enc)
}
