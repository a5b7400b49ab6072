package history

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartvault-go/internal/gateway"
	"smartvault-go/internal/smartaccount"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "history.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndRecent(t *testing.T) {
	j := openTestJournal(t)
	multisig := solana.NewWallet().PublicKey()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	var sig solana.Signature
	copy(sig[:], []byte("a signature of sixty four bytes, padded out to the full length!!"))

	j.Submitted(smartaccount.Submission{
		Kind:      smartaccount.SubmissionCreateMultisig,
		Multisig:  multisig,
		Signature: sig,
		At:        at,
	})
	j.Submitted(smartaccount.Submission{
		Kind:             smartaccount.SubmissionVaultTransaction,
		Multisig:         multisig,
		TransactionIndex: 1,
		Err:              fmt.Errorf("%w: node unreachable", gateway.ErrTransport),
		At:               at.Add(time.Minute),
	})

	entries, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	failed := entries[0]
	assert.Equal(t, smartaccount.SubmissionVaultTransaction, failed.Kind)
	assert.Equal(t, uint64(1), failed.TransactionIndex)
	assert.True(t, failed.Failed())
	assert.Contains(t, failed.Error, "node unreachable")
	assert.Equal(t, smartaccount.KindTransport, failed.ErrorKind)
	assert.Empty(t, failed.Signature)

	created := entries[1]
	assert.Equal(t, smartaccount.SubmissionCreateMultisig, created.Kind)
	assert.Equal(t, multisig.String(), created.Multisig)
	assert.Equal(t, sig.String(), created.Signature)
	assert.False(t, created.Failed())
	assert.True(t, at.Equal(created.CreatedAt), "created_at %s", created.CreatedAt)
}

func TestRecentLimit(t *testing.T) {
	j := openTestJournal(t)
	multisig := solana.NewWallet().PublicKey()
	for i := uint64(1); i <= 5; i++ {
		_, err := j.Record(smartaccount.Submission{
			Kind:             smartaccount.SubmissionVaultTransaction,
			Multisig:         multisig,
			VaultIndex:       2,
			TransactionIndex: i,
		})
		require.NoError(t, err)
	}

	entries, err := j.Recent(3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(5), entries[0].TransactionIndex)
	assert.Equal(t, uint64(3), entries[2].TransactionIndex)
	assert.Equal(t, uint8(2), entries[0].VaultIndex)
}

func TestForMultisig(t *testing.T) {
	j := openTestJournal(t)
	mine := solana.NewWallet().PublicKey()
	other := solana.NewWallet().PublicKey()

	for _, ms := range []solana.PublicKey{mine, other, mine} {
		_, err := j.Record(smartaccount.Submission{Kind: smartaccount.SubmissionVaultTransaction, Multisig: ms})
		require.NoError(t, err)
	}

	entries, err := j.ForMultisig(mine)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Less(t, entries[0].ID, entries[1].ID)
}

func TestJournalPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	j, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	_, err = j.Record(smartaccount.Submission{
		Kind:     smartaccount.SubmissionCreateMultisig,
		Multisig: solana.NewWallet().PublicKey(),
	})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = Open(path, zerolog.Nop())
	require.NoError(t, err)
	defer j.Close()
	entries, err := j.Recent(10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
