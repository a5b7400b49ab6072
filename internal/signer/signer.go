// Package signer keeps the device identity: the creator keypair that pays
// and signs for the smart account, and the create key that seeds its
// address. Both live in one secret record in the OS keyring.
package signer

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/99designs/keyring"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
)

var (
	// ErrSigning covers an unusable identity record and signing failures.
	ErrSigning = errors.New("signing error")

	// ErrNoIdentity is returned by Load when nothing has been stored yet.
	ErrNoIdentity = errors.New("no identity stored")
)

const (
	keypairLen = ed25519.PrivateKeySize
	recordLen  = 2 * (8 + keypairLen)
)

// Identity is the pair of keys the smart account is derived from.
type Identity struct {
	// Creator is the sole member of the multisig and pays every fee.
	Creator solana.PrivateKey
	// CreateKey seeds the multisig address. Losing it orphans the account.
	CreateKey solana.PrivateKey
}

// PrivateKey resolves key to one of the identity's keys, for use as a
// transaction signing callback.
func (id *Identity) PrivateKey(key solana.PublicKey) *solana.PrivateKey {
	switch {
	case key.Equals(id.Creator.PublicKey()):
		return &id.Creator
	case key.Equals(id.CreateKey.PublicKey()):
		return &id.CreateKey
	}
	return nil
}

// NewIdentity generates a fresh creator and create key.
func NewIdentity() (*Identity, error) {
	creator, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: generate creator: %w", ErrSigning, err)
	}
	createKey, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: generate create key: %w", ErrSigning, err)
	}
	return &Identity{Creator: creator, CreateKey: createKey}, nil
}

// MarshalBinary encodes the identity as two length-prefixed keypairs.
func (id *Identity) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	for _, key := range []solana.PrivateKey{id.Creator, id.CreateKey} {
		if err := validKeypair(key); err != nil {
			return nil, err
		}
		if err := enc.WriteUint64(keypairLen, binary.LittleEndian); err != nil {
			return nil, err
		}
		if err := enc.WriteBytes(key, false); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a record written by MarshalBinary.
func (id *Identity) UnmarshalBinary(data []byte) error {
	if len(data) != recordLen {
		return fmt.Errorf("%w: identity record is %d bytes, want %d", ErrSigning, len(data), recordLen)
	}
	dec := bin.NewBorshDecoder(data)
	keys := make([]solana.PrivateKey, 2)
	for i := range keys {
		n, err := dec.ReadUint64(binary.LittleEndian)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSigning, err)
		}
		if n != keypairLen {
			return fmt.Errorf("%w: keypair %d has length %d", ErrSigning, i, n)
		}
		raw, err := dec.ReadNBytes(keypairLen)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSigning, err)
		}
		keys[i] = solana.PrivateKey(append([]byte(nil), raw...))
		if err := validKeypair(keys[i]); err != nil {
			return err
		}
	}
	id.Creator, id.CreateKey = keys[0], keys[1]
	return nil
}

// validKeypair checks that the public half matches the seed.
func validKeypair(key solana.PrivateKey) error {
	if len(key) != keypairLen {
		return fmt.Errorf("%w: keypair is %d bytes", ErrSigning, len(key))
	}
	derived := ed25519.NewKeyFromSeed(key[:ed25519.SeedSize])
	if !bytes.Equal(derived, key) {
		return fmt.Errorf("%w: keypair public half does not match its seed", ErrSigning)
	}
	return nil
}

// Store reads and writes the identity record under a fixed keyring key.
type Store struct {
	mu     sync.Mutex
	ring   keyring.Keyring
	key    string
	logger zerolog.Logger
}

func NewStore(ring keyring.Keyring, key string, logger zerolog.Logger) *Store {
	return &Store{
		ring:   ring,
		key:    key,
		logger: logger.With().Str("component", "identity_store").Logger(),
	}
}

// Load returns the stored identity, ErrNoIdentity when the record is
// absent, or ErrSigning when it cannot be decoded.
func (s *Store) Load() (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (*Identity, error) {
	item, err := s.ring.Get(s.key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNoIdentity, s.key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read keyring: %w", ErrSigning, err)
	}

	var id Identity
	if err := id.UnmarshalBinary(item.Data); err != nil {
		return nil, fmt.Errorf("identity record %s: %w", s.key, err)
	}
	return &id, nil
}

// LoadOrCreate returns the stored identity, generating and persisting a
// new one only when no record exists. A corrupt record is reported and
// left untouched.
func (s *Store) LoadOrCreate() (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.load()
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrNoIdentity) {
		return nil, err
	}

	id, err = NewIdentity()
	if err != nil {
		return nil, err
	}
	data, err := id.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if err := s.ring.Set(keyring.Item{
		Key:         s.key,
		Data:        data,
		Label:       "smart account identity",
		Description: "creator and create key of the device multisig",
	}); err != nil {
		return nil, fmt.Errorf("%w: write keyring: %w", ErrSigning, err)
	}

	s.logger.Info().
		Str("creator", id.Creator.PublicKey().String()).
		Str("create_key", id.CreateKey.PublicKey().String()).
		Msg("generated new identity")
	return id, nil
}

// RingConfig selects and unlocks a keyring backend.
type RingConfig struct {
	Service  string
	Backend  string // empty: every backend available on this OS
	Dir      string
	Password string
}

// OpenRing opens the keyring described by cfg.
func OpenRing(cfg RingConfig) (keyring.Keyring, error) {
	kc := keyring.Config{
		ServiceName:              cfg.Service,
		FileDir:                  cfg.Dir,
		KeychainTrustApplication: true,
	}
	if cfg.Backend != "" {
		kc.AllowedBackends = []keyring.BackendType{keyring.BackendType(cfg.Backend)}
	}
	if cfg.Password != "" {
		kc.FilePasswordFunc = keyring.FixedStringPrompt(cfg.Password)
	} else {
		kc.FilePasswordFunc = keyring.TerminalPrompt
	}

	ring, err := keyring.Open(kc)
	if err != nil {
		return nil, fmt.Errorf("%w: open keyring %q: %w", ErrSigning, cfg.Service, err)
	}
	return ring, nil
}
