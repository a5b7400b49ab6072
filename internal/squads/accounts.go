package squads

import (
	"context"
	"errors"
	"fmt"

	ag_binary "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/hogyzen12/squads-go/generated/squads_multisig_program"
)

// Account is the raw ledger view of one address.
type Account struct {
	Address  solana.PublicKey
	Owner    solana.PublicKey
	Lamports uint64
	Data     []byte
}

// AccountSource fetches raw accounts. It must return an error matching
// ErrAccountNotFound when the address holds no account.
type AccountSource interface {
	GetAccount(ctx context.Context, address solana.PublicKey) (*Account, error)
}

// Member is one multisig member and its permission mask.
type Member struct {
	Key         solana.PublicKey
	Permissions uint8
}

// Has reports whether the member holds every bit of perm.
func (m Member) Has(perm uint8) bool {
	return m.Permissions&perm == perm
}

// MultisigState is the decoded Multisig account.
type MultisigState struct {
	Address               solana.PublicKey
	CreateKey             solana.PublicKey
	ConfigAuthority       solana.PublicKey
	Threshold             uint16
	TimeLock              uint32
	TransactionIndex      uint64
	StaleTransactionIndex uint64
	RentCollector         *solana.PublicKey
	Bump                  uint8
	Members               []Member
}

// Permits reports whether key is a member holding every bit of perm.
func (m *MultisigState) Permits(key solana.PublicKey, perm uint8) bool {
	for _, member := range m.Members {
		if member.Key.Equals(key) {
			return member.Has(perm)
		}
	}
	return false
}

// ProgramConfigState is the decoded global ProgramConfig account.
type ProgramConfigState struct {
	Address             solana.PublicKey
	Authority           solana.PublicKey
	MultisigCreationFee uint64
	Treasury            solana.PublicKey
}

// Reader fetches and decodes Squads accounts owned by one program.
type Reader struct {
	program Program
	source  AccountSource
}

// NewReader returns a Reader over source.
func NewReader(program Program, source AccountSource) *Reader {
	return &Reader{program: program, source: source}
}

// Multisig reads the multisig at address. A missing account yields an error
// matching ErrAccountNotFound; anything present that is not a Squads Multisig
// yields ErrAccountDecode.
func (r *Reader) Multisig(ctx context.Context, address solana.PublicKey) (*MultisigState, error) {
	acc, err := r.fetch(ctx, address)
	if err != nil {
		return nil, err
	}
	return DecodeMultisig(address, acc.Data)
}

// ProgramConfig reads the global program config. Unlike a multisig, its
// absence means the ledger is misconfigured, so the error says so.
func (r *Reader) ProgramConfig(ctx context.Context, address solana.PublicKey) (*ProgramConfigState, error) {
	acc, err := r.fetch(ctx, address)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, fmt.Errorf("program config %s missing on ledger: %w", address, err)
		}
		return nil, err
	}
	return DecodeProgramConfig(address, acc.Data)
}

func (r *Reader) fetch(ctx context.Context, address solana.PublicKey) (*Account, error) {
	acc, err := r.source.GetAccount(ctx, address)
	if err != nil {
		return nil, err
	}
	if !acc.Owner.Equals(r.program.ID()) {
		return nil, fmt.Errorf("%w: %s is owned by %s, not %s", ErrAccountDecode, address, acc.Owner, r.program.ID())
	}
	return acc, nil
}

// DecodeMultisig decodes Multisig account bytes. The generated decoder
// rejects any other account discriminator.
func DecodeMultisig(address solana.PublicKey, data []byte) (*MultisigState, error) {
	var ms squads_multisig_program.Multisig
	if err := ms.UnmarshalWithDecoder(ag_binary.NewBorshDecoder(data)); err != nil {
		return nil, fmt.Errorf("%w: multisig %s: %v", ErrAccountDecode, address, err)
	}

	members := make([]Member, len(ms.Members))
	for i, m := range ms.Members {
		members[i] = Member{Key: m.Key, Permissions: m.Permissions.Mask}
	}

	state := &MultisigState{
		Address:               address,
		CreateKey:             ms.CreateKey,
		ConfigAuthority:       ms.ConfigAuthority,
		Threshold:             ms.Threshold,
		TimeLock:              ms.TimeLock,
		TransactionIndex:      ms.TransactionIndex,
		StaleTransactionIndex: ms.StaleTransactionIndex,
		Bump:                  ms.Bump,
		Members:               members,
	}
	if ms.RentCollector != nil {
		rc := *ms.RentCollector
		state.RentCollector = &rc
	}
	return state, nil
}

// DecodeProgramConfig decodes ProgramConfig account bytes, discriminator included.
func DecodeProgramConfig(address solana.PublicKey, data []byte) (*ProgramConfigState, error) {
	var pc squads_multisig_program.ProgramConfig
	if err := pc.UnmarshalWithDecoder(ag_binary.NewBorshDecoder(data)); err != nil {
		return nil, fmt.Errorf("%w: program config %s: %v", ErrAccountDecode, address, err)
	}

	return &ProgramConfigState{
		Address:             address,
		Authority:           pc.Authority,
		MultisigCreationFee: pc.MultisigCreationFee,
		Treasury:            pc.Treasury,
	}, nil
}
