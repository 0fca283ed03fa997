package txn

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/vietddude/txgate/internal/core/domain"
	"github.com/vietddude/txgate/internal/core/keys"
)

// =============================================================================
// Mocks
// =============================================================================

type mockRefs struct {
	ref        domain.Reference
	height     uint64
	err        error
	refCalls   int
	heightCall int
}

func (m *mockRefs) LatestReference(ctx context.Context, c domain.Commitment) (domain.Reference, error) {
	m.refCalls++
	return m.ref, m.err
}

func (m *mockRefs) BlockHeight(ctx context.Context, c domain.Commitment) (uint64, error) {
	m.heightCall++
	return m.height, m.err
}

// mockEncoder writes the fields that matter for signing in a stable order.
type mockEncoder struct{}

func (mockEncoder) EncodeMessage(tx *domain.Transaction) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(tx.Header.RequiredSignatures)
	for _, k := range tx.AccountKeys {
		buf.Write(k[:])
	}
	buf.WriteString(tx.ExpiryReference)
	for _, ix := range tx.Instructions {
		buf.Write(ix.Data)
	}
	return buf.Bytes(), nil
}

var testSigner = NewSigner(mockEncoder{})

type failingCredential struct{ pub domain.Account }

func (f failingCredential) PublicKey() domain.Account { return f.pub }
func (f failingCredential) Sign([]byte) (domain.Signature, error) {
	return domain.Signature{}, errors.New("hsm offline")
}

// =============================================================================
// Helpers
// =============================================================================

func acct(b byte) domain.Account {
	var a domain.Account
	a[0] = b
	a[31] = b
	return a
}

func newCreds(t *testing.T, n int) []*keys.Credential {
	t.Helper()
	out := make([]*keys.Credential, n)
	for i := range out {
		c, err := keys.Generate()
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		out[i] = c
	}
	return out
}

func compileDraft(t *testing.T, draft *domain.Transaction, feePayer domain.Account) *domain.Transaction {
	t.Helper()
	c := NewCompiler(&mockRefs{ref: domain.Reference{Blockhash: "ref-1", LastValidBlockHeight: 500}}, mockEncoder{}, "")
	tx, err := c.Compile(context.Background(), CompileRequest{Draft: draft, FeePayer: feePayer})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return tx
}

func twoSignerDraft(a, b domain.Account) *domain.Transaction {
	return domain.NewDraft(
		domain.Instruction{
			ProgramID: acct(200),
			Accounts: []domain.AccountRef{
				{Account: a, Signer: true, Writable: true},
				{Account: b, Signer: true},
				{Account: acct(9), Writable: true},
			},
			Data: []byte{1, 2, 3},
		},
	)
}

// =============================================================================
// Compiler
// =============================================================================

func TestCompileAccounts_Ordering(t *testing.T) {
	payer, sigRO, sigW, w1, ro1, prog := acct(1), acct(2), acct(3), acct(4), acct(5), acct(6)
	instructions := []domain.Instruction{
		{
			ProgramID: prog,
			Accounts: []domain.AccountRef{
				{Account: ro1},
				{Account: sigRO, Signer: true},
				{Account: w1, Writable: true},
			},
		},
		{
			ProgramID: prog,
			Accounts: []domain.AccountRef{
				{Account: payer, Signer: true, Writable: true},
				{Account: sigW, Signer: true, Writable: true},
				// ro1 becomes writable through this second reference
				{Account: ro1, Writable: true},
			},
		},
	}

	keys, header := CompileAccounts(payer, instructions)

	want := []domain.Account{payer, sigW, sigRO, ro1, w1, prog}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(keys))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key %d: expected %s, got %s", i, want[i], keys[i])
		}
	}
	if header.RequiredSignatures != 3 || header.ReadonlySignedAccounts != 1 || header.ReadonlyUnsignedAccounts != 1 {
		t.Errorf("unexpected header %+v", header)
	}
}

func TestCompile_Idempotent(t *testing.T) {
	draft := twoSignerDraft(acct(1), acct(2))

	first := compileDraft(t, draft, acct(1))
	second := compileDraft(t, draft, acct(1))

	if !bytes.Equal(first.Message, second.Message) {
		t.Errorf("compiling the same draft twice produced different messages")
	}
	for i := range first.AccountKeys {
		if first.AccountKeys[i] != second.AccountKeys[i] {
			t.Errorf("account %d differs between compilations", i)
		}
	}
	if draft.State != domain.StateDraft || draft.Message != nil {
		t.Errorf("draft was mutated by Compile")
	}
	if first.State != domain.StateCompiled {
		t.Errorf("expected compiled state, got %s", first.State)
	}
	if len(first.Signatures) != 2 || first.SignaturesPresent() != 0 {
		t.Errorf("expected two empty signer slots, got %v", first.Signatures)
	}
}

func TestCompile_FeePayerFirstEvenWhenReferencedLater(t *testing.T) {
	payer := acct(7)
	draft := domain.NewDraft(domain.Instruction{
		ProgramID: acct(200),
		Accounts: []domain.AccountRef{
			{Account: acct(1), Signer: true, Writable: true},
			{Account: payer},
		},
	})

	tx := compileDraft(t, draft, payer)
	if tx.AccountKeys[0] != payer {
		t.Errorf("fee payer not first: %s", tx.AccountKeys[0])
	}
	if slot, _ := tx.SlotOf(payer); slot != 0 {
		t.Errorf("fee payer slot %d, want 0", slot)
	}
}

func TestCompile_Failures(t *testing.T) {
	compiler := NewCompiler(&mockRefs{ref: domain.Reference{Blockhash: "ref", LastValidBlockHeight: 1}}, mockEncoder{}, "")
	ctx := context.Background()

	_, err := compiler.Compile(ctx, CompileRequest{Draft: domain.NewDraft(), FeePayer: acct(1)})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("empty instructions: expected InvalidArgument, got %v", err)
	}

	_, err = compiler.Compile(ctx, CompileRequest{Draft: twoSignerDraft(acct(1), acct(2)), FeePayer: acct(99)})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("foreign fee payer: expected InvalidArgument, got %v", err)
	}

	compiled := compileDraft(t, twoSignerDraft(acct(1), acct(2)), acct(1))
	before := compiled.Clone()
	_, err = compiler.Compile(ctx, CompileRequest{Draft: compiled, FeePayer: acct(1)})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("recompile: expected InvalidState, got %v", err)
	}
	if !bytes.Equal(before.Message, compiled.Message) || compiled.State != domain.StateCompiled {
		t.Errorf("failed recompile mutated the transaction")
	}
}

func TestCompile_ReferenceHandling(t *testing.T) {
	ctx := context.Background()

	refs := &mockRefs{ref: domain.Reference{Blockhash: "fresh", LastValidBlockHeight: 42}, height: 1000}
	compiler := NewCompiler(refs, mockEncoder{}, domain.CommitmentFinalized)

	tx, err := compiler.Compile(ctx, CompileRequest{Draft: twoSignerDraft(acct(1), acct(2)), FeePayer: acct(1)})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if tx.ExpiryReference != "fresh" || tx.ExpirySlot != 42 || refs.refCalls != 1 {
		t.Errorf("expected fetched reference, got %q/%d after %d calls", tx.ExpiryReference, tx.ExpirySlot, refs.refCalls)
	}

	tx, err = compiler.Compile(ctx, CompileRequest{
		Draft:           twoSignerDraft(acct(1), acct(2)),
		FeePayer:        acct(1),
		ExpiryReference: "mine",
	})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if tx.ExpiryReference != "mine" {
		t.Errorf("supplied reference replaced with %q", tx.ExpiryReference)
	}
	if tx.ExpirySlot != 1000+domain.MaxProcessingAge {
		t.Errorf("expected derived expiry slot, got %d", tx.ExpirySlot)
	}
	if refs.refCalls != 1 {
		t.Errorf("reference fetched although one was supplied")
	}

	tx, err = compiler.Compile(ctx, CompileRequest{
		Draft:           twoSignerDraft(acct(1), acct(2)),
		FeePayer:        acct(1),
		ExpiryReference: "mine",
		ExpirySlot:      77,
	})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if tx.ExpirySlot != 77 || refs.heightCall != 1 {
		t.Errorf("supplied expiry slot not used as-is")
	}

	refs.err = errors.New("node down")
	_, err = compiler.Compile(ctx, CompileRequest{Draft: twoSignerDraft(acct(1), acct(2)), FeePayer: acct(1)})
	if err == nil || errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected unavailable-style error, got %v", err)
	}
}

// =============================================================================
// Signer
// =============================================================================

func TestSign_PartialThenFull(t *testing.T) {
	creds := newCreds(t, 2)
	a, b := creds[0], creds[1]
	tx := compileDraft(t, twoSignerDraft(a.PublicKey(), b.PublicKey()), a.PublicKey())

	res, err := testSigner.Sign(tx, []Credential{b})
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if res.Transaction.State != domain.StatePartiallySigned {
		t.Errorf("expected partially signed, got %s", res.Transaction.State)
	}
	if res.Applied != 1 || res.Ignored != 0 || res.Total != 2 || res.Present != 1 {
		t.Errorf("unexpected counts %+v", res)
	}
	if tx.State != domain.StateCompiled || tx.SignaturesPresent() != 0 {
		t.Errorf("input transaction was mutated")
	}

	res, err = testSigner.Sign(res.Transaction, []Credential{a})
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if res.Transaction.State != domain.StateFullySigned {
		t.Errorf("expected fully signed, got %s", res.Transaction.State)
	}
	for i, signer := range res.Transaction.RequiredSigners() {
		if !keys.Verify(signer, res.Transaction.Message, res.Transaction.Signatures[i]) {
			t.Errorf("slot %d does not hold a valid signature for %s", i, signer)
		}
	}
}

func TestSign_IdempotentPerCredential(t *testing.T) {
	creds := newCreds(t, 3)
	a, b, stranger := creds[0], creds[1], creds[2]
	tx := compileDraft(t, twoSignerDraft(a.PublicKey(), b.PublicKey()), a.PublicKey())

	res, err := testSigner.Sign(tx, []Credential{b, stranger, b})
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if res.Applied != 2 || res.Ignored != 1 || res.Present != 1 {
		t.Errorf("unexpected counts %+v", res)
	}
	slot, _ := res.Transaction.SlotOf(b.PublicKey())
	firstSig := res.Transaction.Signatures[slot]

	res, err = testSigner.Sign(res.Transaction, []Credential{b})
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if res.Present != 1 || res.Transaction.Signatures[slot] != firstSig {
		t.Errorf("re-signing did not overwrite the same slot")
	}
}

func TestSign_AnyOrderReachesFullySigned(t *testing.T) {
	creds := newCreds(t, 2)
	a, b := creds[0], creds[1]
	orders := [][][]Credential{
		{{a, b}},
		{{b, a}},
		{{a}, {b}},
		{{b}, {b}, {a}},
	}
	for i, calls := range orders {
		tx := compileDraft(t, twoSignerDraft(a.PublicKey(), b.PublicKey()), a.PublicKey())
		for j, call := range calls {
			res, err := testSigner.Sign(tx, call)
			if err != nil {
				t.Fatalf("order %d call %d: %v", i, j, err)
			}
			tx = res.Transaction
			if (tx.State == domain.StateFullySigned) != tx.IsFullySigned() {
				t.Errorf("order %d call %d: state %s disagrees with slots", i, j, tx.State)
			}
		}
		if tx.State != domain.StateFullySigned {
			t.Errorf("order %d: expected fully signed, got %s", i, tx.State)
		}
	}
}

func TestSign_InvalidState(t *testing.T) {
	creds := newCreds(t, 1)
	draft := twoSignerDraft(creds[0].PublicKey(), acct(2))

	_, err := testSigner.Sign(draft, []Credential{creds[0]})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("sign draft: expected InvalidState, got %v", err)
	}
	if draft.State != domain.StateDraft || len(draft.Signatures) != 0 {
		t.Errorf("draft mutated by failed sign")
	}
}

func TestSign_CredentialFailureLeavesInputUntouched(t *testing.T) {
	creds := newCreds(t, 1)
	tx := compileDraft(t, twoSignerDraft(creds[0].PublicKey(), acct(2)), creds[0].PublicKey())

	_, err := testSigner.Sign(tx, []Credential{creds[0], failingCredential{pub: acct(2)}})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
	if tx.SignaturesPresent() != 0 || tx.State != domain.StateCompiled {
		t.Errorf("input transaction mutated")
	}
}

// =============================================================================
// State machine
// =============================================================================

func TestOperationAllowed(t *testing.T) {
	tests := []struct {
		state domain.State
		op    Operation
		ok    bool
	}{
		{domain.StateDraft, OpCompile, true},
		{domain.StateDraft, OpSign, false},
		{domain.StateCompiled, OpCompile, false},
		{domain.StateCompiled, OpSimulate, true},
		{domain.StatePartiallySigned, OpSubmit, false},
		{domain.StateFullySigned, OpSubmit, true},
		{domain.StateFullySigned, OpSign, false},
		{domain.StateSubmitted, OpSubmit, false},
	}
	for _, tt := range tests {
		err := OperationAllowed(tt.state, tt.op)
		if (err == nil) != tt.ok {
			t.Errorf("%s/%s: expected ok=%v, got %v", tt.state, tt.op, tt.ok, err)
		}
		if err != nil && !errors.Is(err, domain.ErrInvalidState) {
			t.Errorf("%s/%s: expected InvalidState, got %v", tt.state, tt.op, err)
		}
	}
}

func TestTransition_OneDirectional(t *testing.T) {
	tx := &domain.Transaction{State: domain.StateFullySigned}
	if err := Transition(tx, domain.StateCompiled); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("expected InvalidState, got %v", err)
	}
	if tx.State != domain.StateFullySigned {
		t.Errorf("failed transition changed state")
	}
	if err := Transition(tx, domain.StateSubmitted); err != nil {
		t.Errorf("expected legal transition, got %v", err)
	}
}

func TestValidateConsistency(t *testing.T) {
	creds := newCreds(t, 2)
	a, b := creds[0], creds[1]
	compiled := compileDraft(t, twoSignerDraft(a.PublicKey(), b.PublicKey()), a.PublicKey())
	if err := ValidateConsistency(compiled); err != nil {
		t.Fatalf("compiled transaction rejected: %v", err)
	}

	lying := compiled.Clone()
	lying.State = domain.StateFullySigned
	if err := ValidateConsistency(lying); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("fully signed claim without signatures: expected InvalidArgument, got %v", err)
	}

	res, _ := testSigner.Sign(compiled, []Credential{a})
	partial := res.Transaction
	if err := ValidateConsistency(partial); err != nil {
		t.Errorf("partially signed transaction rejected: %v", err)
	}

	draftWithBytes := twoSignerDraft(a.PublicKey(), b.PublicKey())
	draftWithBytes.Message = []byte{1}
	if err := ValidateConsistency(draftWithBytes); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("draft with message: expected InvalidArgument, got %v", err)
	}
}

func TestSign_RejectsEditedCompiledTransaction(t *testing.T) {
	creds := newCreds(t, 2)
	a, b := creds[0], creds[1]

	edits := map[string]func(tx *domain.Transaction){
		"instruction data": func(tx *domain.Transaction) { tx.Instructions[0].Data = []byte{9, 9, 9, 9} },
		"extra instruction": func(tx *domain.Transaction) {
			tx.Instructions = append(tx.Instructions, domain.Instruction{ProgramID: acct(200), Data: []byte{1}})
		},
		"expiry reference": func(tx *domain.Transaction) { tx.ExpiryReference = "other" },
	}
	for name, edit := range edits {
		t.Run(name, func(t *testing.T) {
			tx := compileDraft(t, twoSignerDraft(a.PublicKey(), b.PublicKey()), a.PublicKey())
			edit(tx)

			_, err := testSigner.Sign(tx, []Credential{a})
			if !errors.Is(err, domain.ErrInvalidArgument) {
				t.Fatalf("expected InvalidArgument, got %v", err)
			}
			if tx.SignaturesPresent() != 0 || tx.State != domain.StateCompiled {
				t.Errorf("input transaction mutated")
			}
		})
	}
}

func TestCheckCompiled(t *testing.T) {
	creds := newCreds(t, 2)
	a, b := creds[0], creds[1]
	tx := compileDraft(t, twoSignerDraft(a.PublicKey(), b.PublicKey()), a.PublicKey())

	if err := CheckCompiled(tx, OpSimulate, mockEncoder{}); err != nil {
		t.Fatalf("compiled transaction rejected: %v", err)
	}
	if err := CheckCompiled(tx, OpSubmit, mockEncoder{}); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("submit of compiled: expected InvalidState, got %v", err)
	}

	tx.Instructions[0].Data = append(tx.Instructions[0].Data, 0xFF)
	err := CheckCompiled(tx, OpSimulate, mockEncoder{})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("edited instructions: expected InvalidArgument, got %v", err)
	}
	var derr *domain.Error
	if !errors.As(err, &derr) || derr.Field != "message" {
		t.Errorf("expected message field violation, got %v", err)
	}
}
