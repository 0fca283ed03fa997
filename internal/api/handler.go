package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vietddude/txgate/internal/core/classify"
	"github.com/vietddude/txgate/internal/core/domain"
	"github.com/vietddude/txgate/internal/core/keys"
	"github.com/vietddude/txgate/internal/core/monitor"
	"github.com/vietddude/txgate/internal/core/submit"
	"github.com/vietddude/txgate/internal/core/txn"
	"github.com/vietddude/txgate/internal/infra/chain"
)

// TransactionReader looks up landed transactions.
type TransactionReader interface {
	SignatureStatuses(ctx context.Context, sigs []domain.Signature) ([]*chain.SignatureStatus, error)
	GetTransaction(ctx context.Context, sig domain.Signature, commitment domain.Commitment) (*chain.TransactionRecord, error)
}

// WireDecoder parses signed wire bytes.
type WireDecoder interface {
	DecodeTransaction(wire []byte) (*domain.Transaction, error)
}

// Deps are the collaborators of the transaction service.
type Deps struct {
	Compiler   *txn.Compiler
	Signer     *txn.Signer
	Submitter  *submit.Submitter
	Simulator  *submit.Simulator
	Monitor    *monitor.Monitor
	Reader     TransactionReader
	Decoder    WireDecoder
	Commitment domain.Commitment
}

// Service implements TransactionServiceServer on top of the transaction core.
type Service struct {
	deps Deps
	log  *slog.Logger
}

var _ TransactionServiceServer = (*Service)(nil)

// NewService creates the transaction service.
func NewService(deps Deps) *Service {
	if deps.Commitment == "" {
		deps.Commitment = domain.DefaultCommitment
	}
	return &Service{
		deps: deps,
		log:  slog.Default().With("component", "api"),
	}
}

func (s *Service) CompileTransaction(ctx context.Context, req *CompileRequest) (*CompileResponse, error) {
	const op = "compile"
	if req.Transaction == nil {
		return nil, toStatus(domain.InvalidArgument(op, "transaction", "is required"))
	}
	feePayer, err := domain.ParseAccount(req.FeePayer)
	if err != nil {
		return nil, toStatus(domain.InvalidArgument(op, "fee_payer", "%v", err))
	}

	tx, err := s.deps.Compiler.Compile(ctx, txn.CompileRequest{
		Draft:           req.Transaction,
		FeePayer:        feePayer,
		ExpiryReference: req.ExpiryReference,
		ExpirySlot:      req.ExpirySlot,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &CompileResponse{Transaction: tx}, nil
}

func (s *Service) SignTransaction(ctx context.Context, req *SignRequest) (*SignResponse, error) {
	const op = "sign"
	creds := make([]txn.Credential, 0, len(req.Credentials))
	for i, secret := range req.Credentials {
		cred, err := keys.Parse(secret)
		if err != nil {
			// The secret itself is never echoed back.
			return nil, toStatus(domain.InvalidArgument(op, fmt.Sprintf("credentials[%d]", i), "not a valid ed25519 secret"))
		}
		creds = append(creds, cred)
	}

	res, err := s.deps.Signer.Sign(req.Transaction, creds)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SignResponse{
		Transaction:       res.Transaction,
		SignaturesApplied: res.Applied,
		SignaturesIgnored: res.Ignored,
		SignaturesTotal:   res.Total,
	}, nil
}

func (s *Service) SubmitTransaction(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	commitment, err := s.commitment("submit", req.CommitmentLevel)
	if err != nil {
		return nil, toStatus(err)
	}

	res, err := s.deps.Submitter.Submit(ctx, req.Transaction, commitment)
	if err != nil {
		return nil, toStatus(err)
	}

	out := &SubmitResponse{
		SubmissionResult: res.Outcome.Result,
		ClassifiedError:  res.Outcome.Error,
		Transaction:      res.Transaction,
		AttemptID:        res.Outcome.AttemptID,
	}
	if res.Outcome.LedgerSignature != nil {
		out.LedgerSignature = res.Outcome.LedgerSignature.String()
	}
	return out, nil
}

func (s *Service) MonitorTransaction(req *MonitorRequest, stream MonitorStream) error {
	const op = "monitor"
	ctx := stream.Context()

	sig, err := domain.ParseSignature(req.Signature)
	if err != nil {
		return toStatus(domain.InvalidArgument(op, "signature", "%v", err))
	}
	commitment, err := s.commitment(op, req.CommitmentLevel)
	if err != nil {
		return toStatus(err)
	}
	if req.TimeoutSeconds < 0 {
		return toStatus(domain.InvalidArgument(op, "timeout_seconds", "must not be negative"))
	}

	sub, err := s.deps.Monitor.Subscribe(ctx, monitor.Request{
		Signature:   sig,
		Commitment:  commitment,
		IncludeLogs: req.IncludeLogs,
		Timeout:     secondsToDuration(req.TimeoutSeconds),
		ExpirySlot:  req.ExpirySlot,
	})
	if err != nil {
		return toStatus(err)
	}

	for update := range sub.Updates() {
		if err := stream.Send(&update); err != nil {
			// The transport is gone; the stream context ends with it and the subscription tears down.
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return status.FromContextError(err).Err()
	}
	return nil
}

// secondsToDuration saturates instead of overflowing; the monitor clamps the result to its max timeout.
func secondsToDuration(secs int64) time.Duration {
	if secs > int64(math.MaxInt64/time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(secs) * time.Second
}

func (s *Service) GetTransaction(ctx context.Context, req *GetTransactionRequest) (*GetTransactionResponse, error) {
	const op = "get_transaction"
	sig, err := domain.ParseSignature(req.Signature)
	if err != nil {
		return nil, toStatus(domain.InvalidArgument(op, "signature", "%v", err))
	}
	commitment, err := s.commitment(op, req.CommitmentLevel)
	if err != nil {
		return nil, toStatus(err)
	}

	rec, err := s.deps.Reader.GetTransaction(ctx, sig, commitment)
	if err != nil {
		return nil, toStatus(err)
	}
	tx, err := s.deps.Decoder.DecodeTransaction(rec.Wire)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "decode ledger transaction: %v", err)
	}

	out := &GetTransactionResponse{
		Transaction: tx,
		Slot:        rec.Slot,
		Status:      domain.StatusConfirmed,
		BlockTime:   rec.BlockTime,
		FeeLamports: rec.Fee,
		Logs:        rec.Logs,
	}
	if len(rec.Err) > 0 {
		out.Status = domain.StatusFailed
		out.ErrorCode, out.ErrorMsg = classify.ExecutionFailure(rec.Err)
		return out, nil
	}

	statuses, err := s.deps.Reader.SignatureStatuses(ctx, []domain.Signature{sig})
	if err != nil {
		s.log.Warn("Failed to fetch signature status", "signature", req.Signature, "error", err)
		return out, nil
	}
	if len(statuses) > 0 && statuses[0] != nil {
		out.Status = statuses[0].Commitment().Status()
	}
	return out, nil
}

func (s *Service) SimulateTransaction(ctx context.Context, req *SimulateRequest) (*SimulateResponse, error) {
	commitment, err := s.commitment("simulate", req.CommitmentLevel)
	if err != nil {
		return nil, toStatus(err)
	}

	sim, err := s.deps.Simulator.Simulate(ctx, req.Transaction, commitment)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SimulateResponse{
		Success:         sim.Success,
		ClassifiedError: sim.Error,
		Logs:            sim.Logs,
		UnitsConsumed:   sim.UnitsConsumed,
	}, nil
}

func (s *Service) EstimateTransaction(ctx context.Context, req *EstimateRequest) (*EstimateResponse, error) {
	commitment, err := s.commitment("estimate", req.CommitmentLevel)
	if err != nil {
		return nil, toStatus(err)
	}

	est, err := s.deps.Simulator.Estimate(ctx, req.Transaction, commitment)
	if err != nil {
		return nil, toStatus(err)
	}
	return &EstimateResponse{
		ComputeUnits:    est.ComputeUnits,
		FeeLamports:     est.Fee,
		ClassifiedError: est.Simulation.Error,
	}, nil
}

func (s *Service) commitment(op, level string) (domain.Commitment, error) {
	if level == "" {
		return s.deps.Commitment, nil
	}
	c, err := domain.ParseCommitment(level)
	if err != nil {
		return "", domain.InvalidArgument(op, "commitment_level", "%v", err)
	}
	return c, nil
}

// errorReason is the machine readable reason attached to transport errors.
func errorReason(err error) (codes.Code, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return codes.InvalidArgument, "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrInvalidState):
		return codes.FailedPrecondition, "INVALID_STATE"
	case errors.Is(err, domain.ErrNotFound):
		return codes.NotFound, "NOT_FOUND"
	case errors.Is(err, chain.ErrReferenceExpired):
		return codes.FailedPrecondition, "EXPIRED_REFERENCE"
	}
	return codes.Unavailable, "LEDGER_UNAVAILABLE"
}
