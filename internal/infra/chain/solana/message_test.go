package solana

import (
	"bytes"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/txgate/internal/core/domain"
	"github.com/vietddude/txgate/internal/core/txn"
)

func account(b byte) domain.Account {
	var a domain.Account
	a[0] = b
	a[31] = b
	return a
}

func compiledTransfer(t *testing.T) *domain.Transaction {
	t.Helper()
	payer, dest, program := account(1), account(2), account(3)

	tx := domain.NewDraft(domain.Instruction{
		ProgramID: program,
		Accounts: []domain.AccountRef{
			{Account: payer, Signer: true, Writable: true},
			{Account: dest, Writable: true},
		},
		Data: []byte{2, 0, 0, 0, 64, 66, 15, 0, 0, 0, 0, 0},
	})
	keys, header := txn.CompileAccounts(payer, tx.Instructions)
	tx.FeePayer = &payer
	tx.AccountKeys = keys
	tx.Header = header
	tx.ExpiryReference = base58.Encode(bytes.Repeat([]byte{7}, 32))
	tx.Signatures = make([]domain.Signature, header.RequiredSignatures)
	return tx
}

func TestEncodeMessage_Layout(t *testing.T) {
	tx := compiledTransfer(t)

	msg, err := EncodeMessage(tx)
	require.NoError(t, err)

	// header
	assert.Equal(t, []byte{1, 0, 1}, msg[:3])
	// three account keys
	assert.Equal(t, byte(3), msg[3])
	keysEnd := 4 + 3*32
	payer := account(1)
	assert.Equal(t, payer[:], msg[4:36])
	// blockhash
	assert.Equal(t, bytes.Repeat([]byte{7}, 32), msg[keysEnd:keysEnd+32])
	// one instruction: program index, two account indices, 12 data bytes
	assert.Equal(t, byte(1), msg[keysEnd+32])
	ix := msg[keysEnd+33:]
	assert.Equal(t, []byte{2, 2, 0, 1, 12}, ix[:5])
	assert.Len(t, ix, 5+12)
}

func TestEncodeMessage_BadReference(t *testing.T) {
	tx := compiledTransfer(t)
	tx.ExpiryReference = "not-base58-0OIl"
	_, err := EncodeMessage(tx)
	assert.Error(t, err)

	tx.ExpiryReference = base58.Encode([]byte{1, 2, 3})
	_, err = EncodeMessage(tx)
	assert.Error(t, err)
}

func TestTransaction_RoundTrip(t *testing.T) {
	tx := compiledTransfer(t)
	msg, err := EncodeMessage(tx)
	require.NoError(t, err)
	tx.Message = msg
	tx.Signatures[0][0] = 9

	wire, err := EncodeTransaction(tx)
	require.NoError(t, err)

	decoded, err := DecodeTransaction(wire)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFullySigned, decoded.State)
	assert.Equal(t, tx.AccountKeys, decoded.AccountKeys)
	assert.Equal(t, tx.Header, decoded.Header)
	assert.Equal(t, tx.ExpiryReference, decoded.ExpiryReference)
	assert.Equal(t, tx.Signatures, decoded.Signatures)
	assert.Equal(t, msg, decoded.Message)
	assert.Equal(t, *tx.FeePayer, *decoded.FeePayer)
	require.Len(t, decoded.Instructions, 1)
	assert.Equal(t, tx.Instructions[0], decoded.Instructions[0])
}

func TestDecodeTransaction_Truncated(t *testing.T) {
	tx := compiledTransfer(t)
	wire, err := EncodeTransaction(tx)
	require.NoError(t, err)

	for _, n := range []int{0, 1, 40, len(wire) - 1} {
		_, err := DecodeTransaction(wire[:n])
		assert.Error(t, err, "length %d", n)
	}
}

func TestShortVec(t *testing.T) {
	cases := map[int][]byte{
		0:      {0x00},
		0x7f:   {0x7f},
		0x80:   {0x80, 0x01},
		0x3fff: {0xff, 0x7f},
		0x4000: {0x80, 0x80, 0x01},
	}
	for n, want := range cases {
		var buf bytes.Buffer
		writeShortVec(&buf, n)
		assert.Equal(t, want, buf.Bytes(), "encode %d", n)

		r := &reader{data: want}
		got, err := r.shortVec()
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}
}

func TestDeriveWebsocketURL(t *testing.T) {
	cases := []struct{ in, want string }{
		{"http://localhost:8899", "ws://localhost:8900"},
		{"https://api.mainnet-beta.solana.com", "wss://api.mainnet-beta.solana.com"},
		{"https://rpc.example.com:443/key", "wss://rpc.example.com:444/key"},
	}
	for _, c := range cases {
		got, err := DeriveWebsocketURL(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}

	_, err := DeriveWebsocketURL("ftp://example.com")
	assert.Error(t, err)
}
