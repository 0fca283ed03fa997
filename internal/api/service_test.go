package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/vietddude/txgate/internal/core/domain"
	"github.com/vietddude/txgate/internal/core/keys"
	"github.com/vietddude/txgate/internal/core/monitor"
	"github.com/vietddude/txgate/internal/core/submit"
	"github.com/vietddude/txgate/internal/core/txn"
	"github.com/vietddude/txgate/internal/infra/chain"
	"github.com/vietddude/txgate/internal/infra/chain/solana"
)

// =============================================================================
// Fake ledger
// =============================================================================

type fakeLedger struct {
	mu        sync.Mutex
	sends     int
	landed    map[domain.Signature][]byte
	status    *chain.SignatureStatus
	simulated *chain.SimulationResult
	fee       uint64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		landed:    make(map[domain.Signature][]byte),
		status:    &chain.SignatureStatus{Slot: 500, ConfirmationStatus: domain.CommitmentFinalized},
		simulated: &chain.SimulationResult{Logs: []string{"Program log: ok"}, UnitsConsumed: 150},
		fee:       5000,
	}
}

var testBlockhash = base58.Encode(bytes.Repeat([]byte{7}, 32))

func (l *fakeLedger) LatestReference(context.Context, domain.Commitment) (domain.Reference, error) {
	return domain.Reference{Blockhash: testBlockhash, LastValidBlockHeight: 1150}, nil
}

func (l *fakeLedger) BlockHeight(context.Context, domain.Commitment) (uint64, error) {
	return 1000, nil
}

func (l *fakeLedger) SendTransaction(ctx context.Context, wire []byte, c domain.Commitment) (domain.Signature, error) {
	tx, err := solana.DecodeTransaction(wire)
	if err != nil {
		return domain.Signature{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sends++
	l.landed[tx.Signatures[0]] = wire
	return tx.Signatures[0], nil
}

func (l *fakeLedger) SignatureStatuses(ctx context.Context, sigs []domain.Signature) ([]*chain.SignatureStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*chain.SignatureStatus, len(sigs))
	for i, sig := range sigs {
		if _, ok := l.landed[sig]; ok {
			out[i] = l.status
		}
	}
	return out, nil
}

func (l *fakeLedger) GetTransaction(ctx context.Context, sig domain.Signature, c domain.Commitment) (*chain.TransactionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	wire, ok := l.landed[sig]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &chain.TransactionRecord{Slot: 500, Wire: wire, Fee: l.fee, Logs: []string{"Program log: landed"}}, nil
}

func (l *fakeLedger) SimulateTransaction(context.Context, []byte, domain.Commitment) (*chain.SimulationResult, error) {
	return l.simulated, nil
}

func (l *fakeLedger) FeeForMessage(context.Context, []byte, domain.Commitment) (uint64, error) {
	return l.fee, nil
}

// =============================================================================
// Harness
// =============================================================================

func startService(t *testing.T, ledger *fakeLedger) (*Client, *grpc.ClientConn) {
	t.Helper()
	codec := solana.Codec{}
	monCfg := monitor.DefaultConfig()
	monCfg.PollInterval = 5 * time.Millisecond

	svc := NewService(Deps{
		Compiler:  txn.NewCompiler(ledger, codec, domain.CommitmentConfirmed),
		Signer:    txn.NewSigner(codec),
		Submitter: submit.NewSubmitter(ledger, codec),
		Simulator: submit.NewSimulator(ledger, codec),
		Monitor:   monitor.New(ledger, monCfg),
		Reader:    ledger,
		Decoder:   codec,
	})

	lis := bufconn.Listen(1 << 20)
	srv := NewServer(svc, 0)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		defer close(served)
		_ = srv.Serve(ctx, lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		cancel()
		<-served
	})
	return NewClient(conn), conn
}

func transferDraft(payer domain.Account) *domain.Transaction {
	var dest, program domain.Account
	dest[0], program[0] = 0xA, 0xB
	return domain.NewDraft(domain.Instruction{
		ProgramID: program,
		Accounts: []domain.AccountRef{
			{Account: payer, Signer: true, Writable: true},
			{Account: dest, Writable: true},
		},
		Data: []byte{2, 0, 0, 0, 64, 0, 0, 0, 0, 0, 0, 0},
	})
}

// signedTransfer runs compile and sign through the service.
func signedTransfer(t *testing.T, ctx context.Context, client *Client) (*domain.Transaction, *keys.Credential) {
	t.Helper()
	payer, err := keys.Generate()
	require.NoError(t, err)

	compiled, err := client.CompileTransaction(ctx, &CompileRequest{
		Transaction: transferDraft(payer.PublicKey()),
		FeePayer:    payer.PublicKey().String(),
	})
	require.NoError(t, err)

	signed, err := client.SignTransaction(ctx, &SignRequest{
		Transaction: compiled.Transaction,
		Credentials: []string{payer.Secret()},
	})
	require.NoError(t, err)
	return signed.Transaction, payer
}

func details(t *testing.T, err error) (*errdetails.ErrorInfo, *errdetails.BadRequest) {
	t.Helper()
	var info *errdetails.ErrorInfo
	var bad *errdetails.BadRequest
	for _, d := range status.Convert(err).Details() {
		switch v := d.(type) {
		case *errdetails.ErrorInfo:
			info = v
		case *errdetails.BadRequest:
			bad = v
		}
	}
	return info, bad
}

// =============================================================================
// Tests
// =============================================================================

func TestService_Lifecycle(t *testing.T) {
	ledger := newFakeLedger()
	client, _ := startService(t, ledger)
	ctx := context.Background()

	payer, err := keys.Generate()
	require.NoError(t, err)

	compiled, err := client.CompileTransaction(ctx, &CompileRequest{
		Transaction: transferDraft(payer.PublicKey()),
		FeePayer:    payer.PublicKey().String(),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompiled, compiled.Transaction.State)
	assert.Equal(t, testBlockhash, compiled.Transaction.ExpiryReference)
	assert.Equal(t, uint64(1150), compiled.Transaction.ExpirySlot)

	stranger, err := keys.Generate()
	require.NoError(t, err)
	signed, err := client.SignTransaction(ctx, &SignRequest{
		Transaction: compiled.Transaction,
		Credentials: []string{payer.Secret(), stranger.Secret()},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateFullySigned, signed.Transaction.State)
	assert.Equal(t, 1, signed.SignaturesApplied)
	assert.Equal(t, 1, signed.SignaturesIgnored)
	assert.Equal(t, 1, signed.SignaturesTotal)

	submitted, err := client.SubmitTransaction(ctx, &SubmitRequest{Transaction: signed.Transaction})
	require.NoError(t, err)
	assert.Equal(t, domain.ResultSubmitted, submitted.SubmissionResult)
	assert.Nil(t, submitted.ClassifiedError)
	assert.NotEmpty(t, submitted.AttemptID)
	assert.Equal(t, domain.StateSubmitted, submitted.Transaction.State)
	assert.Equal(t, signed.Transaction.Signatures[0].String(), submitted.LedgerSignature)
	assert.Equal(t, 1, ledger.sends)

	stream, err := client.MonitorTransaction(ctx, &MonitorRequest{
		Signature:       submitted.LedgerSignature,
		CommitmentLevel: "finalized",
		TimeoutSeconds:  5,
	})
	require.NoError(t, err)
	update, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinalized, update.Status)
	assert.Equal(t, uint64(500), update.Slot)
	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)

	got, err := client.GetTransaction(ctx, &GetTransactionRequest{Signature: submitted.LedgerSignature})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinalized, got.Status)
	assert.Equal(t, domain.StateFullySigned, got.Transaction.State)
	assert.Equal(t, signed.Transaction.Signatures, got.Transaction.Signatures)
	assert.Equal(t, uint64(5000), got.FeeLamports)
}

func TestService_SimulateAndEstimate(t *testing.T) {
	client, _ := startService(t, newFakeLedger())
	ctx := context.Background()
	tx, _ := signedTransfer(t, ctx, client)

	sim, err := client.SimulateTransaction(ctx, &SimulateRequest{Transaction: tx})
	require.NoError(t, err)
	assert.True(t, sim.Success)
	assert.Equal(t, uint64(150), sim.UnitsConsumed)
	assert.Equal(t, []string{"Program log: ok"}, sim.Logs)

	est, err := client.EstimateTransaction(ctx, &EstimateRequest{Transaction: tx})
	require.NoError(t, err)
	assert.Equal(t, uint64(150), est.ComputeUnits)
	assert.Equal(t, uint64(5000), est.FeeLamports)
}

func TestService_SimulationFailureIsClassified(t *testing.T) {
	ledger := newFakeLedger()
	ledger.simulated = &chain.SimulationResult{Err: json.RawMessage(`"InsufficientFundsForFee"`)}
	client, _ := startService(t, ledger)
	ctx := context.Background()
	tx, _ := signedTransfer(t, ctx, client)

	sim, err := client.SimulateTransaction(ctx, &SimulateRequest{Transaction: tx})
	require.NoError(t, err)
	assert.False(t, sim.Success)
	require.NotNil(t, sim.ClassifiedError)
	assert.Equal(t, domain.CodeInsufficientFunds, sim.ClassifiedError.Code)
	assert.Equal(t, domain.CertaintyNotSubmitted, sim.ClassifiedError.Certainty)
}

func TestService_InvalidArgumentDetails(t *testing.T) {
	client, _ := startService(t, newFakeLedger())

	_, err := client.CompileTransaction(context.Background(), &CompileRequest{
		Transaction: transferDraft(domain.Account{1}),
		FeePayer:    "not-base58-0OIl",
	})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	info, bad := details(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "INVALID_ARGUMENT", info.Reason)
	assert.Equal(t, errorDomain, info.Domain)
	require.NotNil(t, bad)
	require.Len(t, bad.FieldViolations, 1)
	assert.Equal(t, "fee_payer", bad.FieldViolations[0].Field)
}

func TestService_BadCredentialIsNotEchoed(t *testing.T) {
	client, _ := startService(t, newFakeLedger())
	ctx := context.Background()
	payer, err := keys.Generate()
	require.NoError(t, err)

	compiled, err := client.CompileTransaction(ctx, &CompileRequest{
		Transaction: transferDraft(payer.PublicKey()),
		FeePayer:    payer.PublicKey().String(),
	})
	require.NoError(t, err)

	_, err = client.SignTransaction(ctx, &SignRequest{
		Transaction: compiled.Transaction,
		Credentials: []string{"secretvalue"},
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.NotContains(t, err.Error(), "secretvalue")
}

func TestService_InvalidStateIsFailedPrecondition(t *testing.T) {
	ledger := newFakeLedger()
	client, _ := startService(t, ledger)

	_, err := client.SubmitTransaction(context.Background(), &SubmitRequest{
		Transaction: transferDraft(domain.Account{1}),
	})
	require.Error(t, err)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	info, _ := details(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "INVALID_STATE", info.Reason)
	assert.Zero(t, ledger.sends)
}

func TestService_UnknownCommitmentLevel(t *testing.T) {
	client, _ := startService(t, newFakeLedger())
	ctx := context.Background()
	tx, _ := signedTransfer(t, ctx, client)

	_, err := client.SubmitTransaction(ctx, &SubmitRequest{Transaction: tx, CommitmentLevel: "eventually"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestService_MonitorRejectsNegativeTimeout(t *testing.T) {
	client, _ := startService(t, newFakeLedger())
	var sig domain.Signature
	sig[0] = 1

	stream, err := client.MonitorTransaction(context.Background(), &MonitorRequest{
		Signature:      sig.String(),
		TimeoutSeconds: -1,
	})
	require.NoError(t, err)
	_, err = stream.Recv()
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestService_MonitorTimesOut(t *testing.T) {
	client, _ := startService(t, newFakeLedger())
	var sig domain.Signature
	sig[0] = 2

	stream, err := client.MonitorTransaction(context.Background(), &MonitorRequest{
		Signature:      sig.String(),
		TimeoutSeconds: 1,
	})
	require.NoError(t, err)

	update, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTimedOut, update.Status)
	assert.Equal(t, domain.CodeTimeout, update.ErrorCode)

	_, err = stream.Recv()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestService_GetTransactionNotFound(t *testing.T) {
	client, _ := startService(t, newFakeLedger())
	var sig domain.Signature
	sig[0] = 3

	_, err := client.GetTransaction(context.Background(), &GetTransactionRequest{Signature: sig.String()})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestService_Health(t *testing.T) {
	_, conn := startService(t, newFakeLedger())

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestToStatus_PassesThroughStatusErrors(t *testing.T) {
	orig := status.Error(codes.Aborted, "aborted")
	assert.Equal(t, orig, toStatus(orig))
	assert.Equal(t, codes.Canceled, status.Code(toStatus(context.Canceled)))
	assert.Equal(t, codes.Unavailable, status.Code(toStatus(errors.New("dial tcp: connection refused"))))
	assert.NoError(t, toStatus(nil))
}

func TestSecondsToDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, secondsToDuration(5))
	assert.Equal(t, time.Duration(0), secondsToDuration(0))
	assert.Equal(t, time.Duration(math.MaxInt64), secondsToDuration(9223372037))
	assert.Equal(t, time.Duration(math.MaxInt64), secondsToDuration(18446744074))
	assert.Equal(t, time.Duration(math.MaxInt64), secondsToDuration(math.MaxInt64))
}

func TestService_MonitorOversizedTimeoutIsClamped(t *testing.T) {
	client, _ := startService(t, newFakeLedger())

	for i, secs := range []int64{9223372037, 18446744074} {
		var sig domain.Signature
		sig[0] = byte(10 + i)

		ctx, cancel := context.WithCancel(context.Background())
		stream, err := client.MonitorTransaction(ctx, &MonitorRequest{
			Signature:      sig.String(),
			TimeoutSeconds: secs,
		})
		require.NoError(t, err)

		got := make(chan error, 1)
		go func() {
			update, err := stream.Recv()
			if err == nil {
				err = errors.New("unexpected update " + string(update.Status))
			}
			got <- err
		}()

		select {
		case err := <-got:
			t.Fatalf("timeout_seconds=%d: stream ended early: %v", secs, err)
		case <-time.After(300 * time.Millisecond):
		}

		cancel()
		err = <-got
		assert.Equal(t, codes.Canceled, status.Code(err))
	}
}

func TestService_EditedInstructionsAreRejected(t *testing.T) {
	ledger := newFakeLedger()
	client, _ := startService(t, ledger)
	ctx := context.Background()

	payer, err := keys.Generate()
	require.NoError(t, err)
	compiled, err := client.CompileTransaction(ctx, &CompileRequest{
		Transaction: transferDraft(payer.PublicKey()),
		FeePayer:    payer.PublicKey().String(),
	})
	require.NoError(t, err)

	edited := compiled.Transaction.Clone()
	edited.Instructions[0].Data = []byte{9, 9, 9, 9}
	_, err = client.SignTransaction(ctx, &SignRequest{
		Transaction: edited,
		Credentials: []string{payer.Secret()},
	})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	_, bad := details(t, err)
	require.NotNil(t, bad)
	assert.Equal(t, "message", bad.FieldViolations[0].Field)

	signed, err := client.SignTransaction(ctx, &SignRequest{
		Transaction: compiled.Transaction,
		Credentials: []string{payer.Secret()},
	})
	require.NoError(t, err)

	edited = signed.Transaction.Clone()
	edited.Instructions[0].Data = []byte{9, 9, 9, 9}
	_, err = client.SubmitTransaction(ctx, &SubmitRequest{Transaction: edited})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	_, err = client.SimulateTransaction(ctx, &SimulateRequest{Transaction: edited})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Zero(t, ledger.sends)

	submitted, err := client.SubmitTransaction(ctx, &SubmitRequest{Transaction: signed.Transaction})
	require.NoError(t, err)
	assert.Equal(t, domain.ResultSubmitted, submitted.SubmissionResult)
	assert.Equal(t, 1, ledger.sends)
}
