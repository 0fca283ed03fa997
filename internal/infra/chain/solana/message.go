package solana

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/vietddude/txgate/internal/core/domain"
)

const blockhashSize = 32

var errShortBuffer = errors.New("unexpected end of data")

// Codec encodes compiled transactions in the ledger's legacy wire format.
type Codec struct{}

// EncodeMessage serialises the compiled message: header, account keys, blockhash, instructions.
func (Codec) EncodeMessage(tx *domain.Transaction) ([]byte, error) {
	return EncodeMessage(tx)
}

// EncodeTransaction serialises the signatures followed by the message.
func (Codec) EncodeTransaction(tx *domain.Transaction) ([]byte, error) {
	return EncodeTransaction(tx)
}

// DecodeTransaction parses signed wire bytes.
func (Codec) DecodeTransaction(wire []byte) (*domain.Transaction, error) {
	return DecodeTransaction(wire)
}

// EncodeMessage serialises the compiled message of tx.
func EncodeMessage(tx *domain.Transaction) ([]byte, error) {
	hash, err := base58.Decode(tx.ExpiryReference)
	if err != nil {
		return nil, fmt.Errorf("decode expiry reference: %w", err)
	}
	if len(hash) != blockhashSize {
		return nil, fmt.Errorf("expiry reference must be %d bytes, got %d", blockhashSize, len(hash))
	}

	index := make(map[domain.Account]int, len(tx.AccountKeys))
	for i, key := range tx.AccountKeys {
		index[key] = i
	}

	var buf bytes.Buffer
	buf.WriteByte(tx.Header.RequiredSignatures)
	buf.WriteByte(tx.Header.ReadonlySignedAccounts)
	buf.WriteByte(tx.Header.ReadonlyUnsignedAccounts)

	writeShortVec(&buf, len(tx.AccountKeys))
	for _, key := range tx.AccountKeys {
		buf.Write(key[:])
	}
	buf.Write(hash)

	writeShortVec(&buf, len(tx.Instructions))
	for i, ix := range tx.Instructions {
		program, ok := index[ix.ProgramID]
		if !ok {
			return nil, fmt.Errorf("instruction %d: program %s missing from account keys", i, ix.ProgramID)
		}
		buf.WriteByte(byte(program))

		writeShortVec(&buf, len(ix.Accounts))
		for _, ref := range ix.Accounts {
			idx, ok := index[ref.Account]
			if !ok {
				return nil, fmt.Errorf("instruction %d: account %s missing from account keys", i, ref.Account)
			}
			buf.WriteByte(byte(idx))
		}

		writeShortVec(&buf, len(ix.Data))
		buf.Write(ix.Data)
	}
	return buf.Bytes(), nil
}

// EncodeTransaction serialises a signed transaction. Empty slots are written as zero signatures.
func EncodeTransaction(tx *domain.Transaction) ([]byte, error) {
	msg := tx.Message
	if len(msg) == 0 {
		var err error
		if msg, err = EncodeMessage(tx); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	writeShortVec(&buf, len(tx.Signatures))
	for _, sig := range tx.Signatures {
		buf.Write(sig[:])
	}
	buf.Write(msg)
	return buf.Bytes(), nil
}

// DecodeTransaction parses signed wire bytes back into a transaction.
// Expiry height is not part of the wire format and is left zero.
func DecodeTransaction(wire []byte) (*domain.Transaction, error) {
	r := &reader{data: wire}

	n, err := r.shortVec()
	if err != nil {
		return nil, fmt.Errorf("signature count: %w", err)
	}
	sigs := make([]domain.Signature, n)
	for i := range sigs {
		b, err := r.take(domain.SignatureSize)
		if err != nil {
			return nil, fmt.Errorf("signature %d: %w", i, err)
		}
		copy(sigs[i][:], b)
	}

	message := wire[r.pos:]
	tx, err := decodeMessage(r)
	if err != nil {
		return nil, err
	}
	if int(tx.Header.RequiredSignatures) != len(sigs) {
		return nil, fmt.Errorf("header requires %d signatures, wire carries %d", tx.Header.RequiredSignatures, len(sigs))
	}
	tx.Signatures = sigs
	tx.Message = append([]byte(nil), message...)

	switch {
	case tx.IsFullySigned():
		tx.State = domain.StateFullySigned
	case tx.SignaturesPresent() > 0:
		tx.State = domain.StatePartiallySigned
	default:
		tx.State = domain.StateCompiled
	}
	return tx, nil
}

func decodeMessage(r *reader) (*domain.Transaction, error) {
	hdr, err := r.take(3)
	if err != nil {
		return nil, fmt.Errorf("message header: %w", err)
	}
	header := domain.MessageHeader{
		RequiredSignatures:       hdr[0],
		ReadonlySignedAccounts:   hdr[1],
		ReadonlyUnsignedAccounts: hdr[2],
	}

	n, err := r.shortVec()
	if err != nil {
		return nil, fmt.Errorf("account count: %w", err)
	}
	if n == 0 || n < int(header.RequiredSignatures) {
		return nil, fmt.Errorf("message has %d accounts for %d signers", n, header.RequiredSignatures)
	}
	keys := make([]domain.Account, n)
	for i := range keys {
		b, err := r.take(domain.PublicKeySize)
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", i, err)
		}
		copy(keys[i][:], b)
	}

	hash, err := r.take(blockhashSize)
	if err != nil {
		return nil, fmt.Errorf("blockhash: %w", err)
	}

	count, err := r.shortVec()
	if err != nil {
		return nil, fmt.Errorf("instruction count: %w", err)
	}
	instructions := make([]domain.Instruction, 0, count)
	for i := 0; i < count; i++ {
		ix, err := decodeInstruction(r, keys, header)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		instructions = append(instructions, ix)
	}
	if r.pos != len(r.data) {
		return nil, fmt.Errorf("%d trailing bytes after message", len(r.data)-r.pos)
	}

	feePayer := keys[0]
	return &domain.Transaction{
		Instructions:    instructions,
		FeePayer:        &feePayer,
		ExpiryReference: base58.Encode(hash),
		AccountKeys:     keys,
		Header:          header,
	}, nil
}

func decodeInstruction(r *reader, keys []domain.Account, header domain.MessageHeader) (domain.Instruction, error) {
	program, err := r.readByte()
	if err != nil {
		return domain.Instruction{}, err
	}
	if int(program) >= len(keys) {
		return domain.Instruction{}, fmt.Errorf("program index %d out of range", program)
	}

	n, err := r.shortVec()
	if err != nil {
		return domain.Instruction{}, err
	}
	refs := make([]domain.AccountRef, n)
	for i := range refs {
		idx, err := r.readByte()
		if err != nil {
			return domain.Instruction{}, err
		}
		if int(idx) >= len(keys) {
			return domain.Instruction{}, fmt.Errorf("account index %d out of range", idx)
		}
		refs[i] = domain.AccountRef{
			Account:  keys[idx],
			Signer:   int(idx) < int(header.RequiredSignatures),
			Writable: isWritable(int(idx), len(keys), header),
		}
	}

	size, err := r.shortVec()
	if err != nil {
		return domain.Instruction{}, err
	}
	data, err := r.take(size)
	if err != nil {
		return domain.Instruction{}, err
	}

	return domain.Instruction{
		ProgramID: keys[program],
		Accounts:  refs,
		Data:      append([]byte(nil), data...),
	}, nil
}

func isWritable(idx, total int, h domain.MessageHeader) bool {
	signers := int(h.RequiredSignatures)
	if idx < signers {
		return idx < signers-int(h.ReadonlySignedAccounts)
	}
	return idx < total-int(h.ReadonlyUnsignedAccounts)
}

// writeShortVec writes n as the compact-u16 length prefix.
func writeShortVec(buf *bytes.Buffer, n int) {
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			buf.WriteByte(b)
			return
		}
		buf.WriteByte(b | 0x80)
	}
}

type reader struct {
	data []byte
	pos  int
}

func (r *reader) readByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, errShortBuffer
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, errShortBuffer
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) shortVec() (int, error) {
	n := 0
	for i := 0; i < 3; i++ {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		n |= int(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return n, nil
		}
	}
	return 0, errors.New("compact length exceeds three bytes")
}
