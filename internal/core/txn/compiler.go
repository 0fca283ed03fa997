package txn

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"github.com/vietddude/txgate/internal/core/domain"
)

// maxAccounts is the largest account list a message can index with one byte.
const maxAccounts = 256

// ReferenceSource supplies expiry references from the ledger.
type ReferenceSource interface {
	LatestReference(ctx context.Context, commitment domain.Commitment) (domain.Reference, error)
	BlockHeight(ctx context.Context, commitment domain.Commitment) (uint64, error)
}

// Encoder produces the wire bytes that signers sign over.
type Encoder interface {
	EncodeMessage(tx *domain.Transaction) ([]byte, error)
}

// CompileRequest carries the inputs of a compile call.
type CompileRequest struct {
	Draft    *domain.Transaction
	FeePayer domain.Account

	// Optional. When empty a fresh reference is fetched.
	ExpiryReference string
	// Optional. Last valid block height for a caller supplied reference.
	ExpirySlot uint64
}

// Compiler turns draft transactions into compiled, signable ones.
type Compiler struct {
	refs       ReferenceSource
	enc        Encoder
	commitment domain.Commitment
	log        *slog.Logger
}

// NewCompiler creates a compiler that fetches references at the given commitment.
func NewCompiler(refs ReferenceSource, enc Encoder, commitment domain.Commitment) *Compiler {
	if commitment == "" {
		commitment = domain.DefaultCommitment
	}
	return &Compiler{
		refs:       refs,
		enc:        enc,
		commitment: commitment,
		log:        slog.Default().With("component", "compiler"),
	}
}

// Compile validates the draft, orders its accounts, attaches an expiry reference and encodes the message.
// The draft itself is never modified.
func (c *Compiler) Compile(ctx context.Context, req CompileRequest) (*domain.Transaction, error) {
	const op = "compile"
	draft := req.Draft
	if draft == nil {
		return nil, domain.InvalidArgument(op, "transaction", "is required")
	}
	if err := OperationAllowed(draft.State, OpCompile); err != nil {
		return nil, err
	}
	if len(draft.Instructions) == 0 {
		return nil, domain.InvalidArgument(op, "instructions", "at least one instruction is required")
	}
	if !participates(draft.Instructions, req.FeePayer) {
		return nil, domain.InvalidArgument(op, "fee_payer",
			"fee payer %s is not referenced by any instruction", req.FeePayer)
	}

	keys, header := CompileAccounts(req.FeePayer, draft.Instructions)
	if len(keys) > maxAccounts {
		return nil, domain.InvalidArgument(op, "instructions",
			"transaction references %d accounts, limit is %d", len(keys), maxAccounts)
	}

	ref, err := c.reference(ctx, req)
	if err != nil {
		return nil, err
	}

	out := draft.Clone()
	feePayer := req.FeePayer
	out.FeePayer = &feePayer
	out.AccountKeys = keys
	out.Header = header
	out.ExpiryReference = ref.Blockhash
	out.ExpirySlot = ref.LastValidBlockHeight
	out.Signatures = make([]domain.Signature, header.RequiredSignatures)

	msg, err := c.enc.EncodeMessage(out)
	if err != nil {
		return nil, domain.InvalidArgument(op, "transaction", "encode message: %v", err)
	}
	out.Message = msg

	if err := Transition(out, domain.StateCompiled); err != nil {
		return nil, err
	}

	c.log.Debug("Compiled transaction",
		"fee_payer", feePayer.String(),
		"accounts", len(keys),
		"signers", header.RequiredSignatures,
		"expiry_slot", out.ExpirySlot,
	)
	return out, nil
}

func (c *Compiler) reference(ctx context.Context, req CompileRequest) (domain.Reference, error) {
	if req.ExpiryReference == "" {
		ref, err := c.refs.LatestReference(ctx, c.commitment)
		if err != nil {
			return domain.Reference{}, fmt.Errorf("fetch expiry reference: %w", err)
		}
		return ref, nil
	}

	ref := domain.Reference{
		Blockhash:            req.ExpiryReference,
		LastValidBlockHeight: req.ExpirySlot,
	}
	if ref.LastValidBlockHeight == 0 {
		// A supplied reference is at most as new as the current height, so this bound is safe.
		height, err := c.refs.BlockHeight(ctx, c.commitment)
		if err != nil {
			return domain.Reference{}, fmt.Errorf("fetch block height: %w", err)
		}
		ref.LastValidBlockHeight = height + domain.MaxProcessingAge
	}
	return ref, nil
}

func participates(instructions []domain.Instruction, account domain.Account) bool {
	for _, ix := range instructions {
		for _, ref := range ix.Accounts {
			if ref.Account == account {
				return true
			}
		}
	}
	return false
}

type accountMeta struct {
	account  domain.Account
	signer   bool
	writable bool
}

// CompileAccounts merges every account reference and returns them in wire order:
// fee payer, writable signers, read-only signers, writable non-signers, read-only non-signers.
// Within a group accounts keep the order they first appear in.
func CompileAccounts(feePayer domain.Account, instructions []domain.Instruction) ([]domain.Account, domain.MessageHeader) {
	index := make(map[domain.Account]*accountMeta)
	var metas []*accountMeta
	add := func(account domain.Account, signer, writable bool) {
		if m, ok := index[account]; ok {
			m.signer = m.signer || signer
			m.writable = m.writable || writable
			return
		}
		m := &accountMeta{account: account, signer: signer, writable: writable}
		index[account] = m
		metas = append(metas, m)
	}

	add(feePayer, true, true)
	for _, ix := range instructions {
		for _, ref := range ix.Accounts {
			add(ref.Account, ref.Signer, ref.Writable)
		}
		add(ix.ProgramID, false, false)
	}

	rest := metas[1:]
	groups := [][]*accountMeta{
		metas[:1],
		lo.Filter(rest, func(m *accountMeta, _ int) bool { return m.signer && m.writable }),
		lo.Filter(rest, func(m *accountMeta, _ int) bool { return m.signer && !m.writable }),
		lo.Filter(rest, func(m *accountMeta, _ int) bool { return !m.signer && m.writable }),
		lo.Filter(rest, func(m *accountMeta, _ int) bool { return !m.signer && !m.writable }),
	}
	ordered := lo.Flatten(groups)

	var header domain.MessageHeader
	for _, m := range ordered {
		switch {
		case m.signer && !m.writable:
			header.RequiredSignatures++
			header.ReadonlySignedAccounts++
		case m.signer:
			header.RequiredSignatures++
		case !m.writable:
			header.ReadonlyUnsignedAccounts++
		}
	}

	return lo.Map(ordered, func(m *accountMeta, _ int) domain.Account { return m.account }), header
}
