package smartaccount

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"smartvault-go/internal/signer"
	"smartvault-go/internal/squads"
	"smartvault-go/internal/squads/squadstest"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) GetAccount(ctx context.Context, address solana.PublicKey) (*squads.Account, error) {
	args := m.Called(ctx, address)
	acc, _ := args.Get(0).(*squads.Account)
	return acc, args.Error(1)
}

func (m *mockGateway) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	args := m.Called(ctx)
	return args.Get(0).(solana.Hash), args.Error(1)
}

func (m *mockGateway) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	args := m.Called(ctx, tx)
	return args.Get(0).(solana.Signature), args.Error(1)
}

func TestGetOrCreateReadyMakesNoWrites(t *testing.T) {
	id, err := signer.NewIdentity()
	require.NoError(t, err)
	gw := &mockGateway{}
	orch := New(gw, Config{}, zerolog.New(nil).Level(zerolog.Disabled))
	addr := orch.Addresses(id).Multisig
	creator := id.Creator.PublicKey()

	gw.On("GetAccount", mock.Anything, addr).Return(&squads.Account{
		Address: addr,
		Owner:   squads.DefaultProgramID,
		Data: squadstest.MultisigAccountData(squads.MultisigState{
			CreateKey:        id.CreateKey.PublicKey(),
			Threshold:        1,
			TransactionIndex: 2,
			RentCollector:    &creator,
			Members:          []squads.Member{{Key: creator, Permissions: squads.PermissionFull}},
		}),
	}, nil)

	for i := 0; i < 2; i++ {
		ms, err := orch.GetOrCreate(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), ms.TransactionIndex)
	}

	gw.AssertNumberOfCalls(t, "GetAccount", 2)
	gw.AssertNotCalled(t, "GetLatestBlockhash", mock.Anything)
	gw.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)
}

func TestCreateSignsWithCreatorAndCreateKey(t *testing.T) {
	id, err := signer.NewIdentity()
	require.NoError(t, err)
	gw := &mockGateway{}
	orch := New(gw, Config{}, zerolog.New(nil).Level(zerolog.Disabled))

	program := squads.New(squads.DefaultProgramID)
	configAddr, _ := program.ProgramConfigPDA()
	treasury := squadstest.NewKey()
	gw.On("GetAccount", mock.Anything, configAddr).Return(&squads.Account{
		Address: configAddr,
		Owner:   squads.DefaultProgramID,
		Data:    squadstest.ProgramConfigAccountData(squads.ProgramConfigState{Treasury: treasury}),
	}, nil)
	gw.On("GetLatestBlockhash", mock.Anything).Return(solana.HashFromBytes(squadstest.NewKey().Bytes()), nil)

	var sent *solana.Transaction
	gw.On("SendTransaction", mock.Anything, mock.AnythingOfType("*solana.Transaction")).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*solana.Transaction) }).
		Return(solana.Signature{1}, nil)

	sig, err := orch.Create(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, solana.Signature{1}, sig)

	require.NotNil(t, sent)
	require.NoError(t, sent.VerifySignatures())
	assert.Len(t, sent.Signatures, 2)
	assert.Equal(t, id.Creator.PublicKey(), sent.Message.AccountKeys[0])
	assert.Contains(t, sent.Message.AccountKeys, treasury)
	assert.Contains(t, sent.Message.AccountKeys, orch.Addresses(id).Multisig)
	gw.AssertExpectations(t)
}
