package squads

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	ag_binary "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// CompiledInstruction is an instruction whose program and accounts are
// indexes into the message account keys.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	AccountIndexes []uint8
	Data           []byte
}

// TransactionMessage is the compact message a vault transaction stores and
// later executes. Once compiled it is never re-encoded: Bytes always returns
// the same encoding, which both the create and the execute step rely on.
type TransactionMessage struct {
	NumSigners            uint8
	NumWritableSigners    uint8
	NumWritableNonSigners uint8
	AccountKeys           []solana.PublicKey
	Instructions          []CompiledInstruction

	raw []byte
}

// Bytes returns a copy of the encoded message.
func (m *TransactionMessage) Bytes() []byte {
	return append([]byte(nil), m.raw...)
}

// IsWritable reports whether the account key at index is writable.
func (m *TransactionMessage) IsWritable(index int) bool {
	if index < int(m.NumWritableSigners) {
		return true
	}
	return index >= int(m.NumSigners) && index < int(m.NumSigners)+int(m.NumWritableNonSigners)
}

// IsSigner reports whether the account key at index signs the inner transaction.
func (m *TransactionMessage) IsSigner(index int) bool {
	return index < int(m.NumSigners)
}

type keyMeta struct {
	signer   bool
	writable bool
}

// Compile builds a TransactionMessage executed by vault. The vault is the only
// signer a vault transaction can have without ephemeral signers, so any other
// signer is rejected.
func Compile(vault solana.PublicKey, instructions []solana.Instruction) (*TransactionMessage, error) {
	if len(instructions) == 0 {
		return nil, fmt.Errorf("%w: no instructions", ErrCompile)
	}

	metas := make(map[solana.PublicKey]*keyMeta)
	note := func(key solana.PublicKey, signer, writable bool) {
		m, ok := metas[key]
		if !ok {
			m = &keyMeta{}
			metas[key] = m
		}
		m.signer = m.signer || signer
		m.writable = m.writable || writable
	}

	datas := make([][]byte, len(instructions))
	for i, ix := range instructions {
		data, err := ix.Data()
		if err != nil {
			return nil, fmt.Errorf("%w: instruction %d data: %v", ErrCompile, i, err)
		}
		if len(data) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: instruction %d data is %d bytes", ErrCompile, i, len(data))
		}
		datas[i] = data
		note(ix.ProgramID(), false, false)
		for _, acc := range ix.Accounts() {
			note(acc.PublicKey, acc.IsSigner, acc.IsWritable)
		}
	}
	delete(metas, vault)

	var writableNonSigners, readonlyNonSigners []solana.PublicKey
	for key, m := range metas {
		switch {
		case m.signer:
			return nil, fmt.Errorf("%w: %s must sign but only the vault can", ErrCompile, key)
		case m.writable:
			writableNonSigners = append(writableNonSigners, key)
		default:
			readonlyNonSigners = append(readonlyNonSigners, key)
		}
	}
	sortKeys(writableNonSigners)
	sortKeys(readonlyNonSigners)

	keys := make([]solana.PublicKey, 0, 1+len(metas))
	keys = append(keys, vault)
	keys = append(keys, writableNonSigners...)
	keys = append(keys, readonlyNonSigners...)
	if len(keys) > math.MaxUint8 {
		return nil, fmt.Errorf("%w: %d account keys exceed %d", ErrCompile, len(keys), math.MaxUint8)
	}
	if len(instructions) > math.MaxUint8 {
		return nil, fmt.Errorf("%w: %d instructions exceed %d", ErrCompile, len(instructions), math.MaxUint8)
	}

	index := make(map[solana.PublicKey]uint8, len(keys))
	for i, key := range keys {
		index[key] = uint8(i)
	}

	compiled := make([]CompiledInstruction, len(instructions))
	for i, ix := range instructions {
		accounts := ix.Accounts()
		if len(accounts) > math.MaxUint8 {
			return nil, fmt.Errorf("%w: instruction %d has %d accounts", ErrCompile, i, len(accounts))
		}
		indexes := make([]uint8, len(accounts))
		for j, acc := range accounts {
			indexes[j] = index[acc.PublicKey]
		}
		compiled[i] = CompiledInstruction{
			ProgramIDIndex: index[ix.ProgramID()],
			AccountIndexes: indexes,
			Data:           datas[i],
		}
	}

	msg := &TransactionMessage{
		NumSigners:            1,
		NumWritableSigners:    1,
		NumWritableNonSigners: uint8(len(writableNonSigners)),
		AccountKeys:           keys,
		Instructions:          compiled,
	}
	raw, err := msg.encode()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompile, err)
	}
	msg.raw = raw
	return msg, nil
}

func sortKeys(keys []solana.PublicKey) {
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i][:], keys[j][:]) < 0
	})
}

func (m *TransactionMessage) encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := ag_binary.NewBorshEncoder(buf)

	for _, b := range []uint8{m.NumSigners, m.NumWritableSigners, m.NumWritableNonSigners, uint8(len(m.AccountKeys))} {
		if err := enc.WriteUint8(b); err != nil {
			return nil, err
		}
	}
	for _, key := range m.AccountKeys {
		if err := enc.WriteBytes(key[:], false); err != nil {
			return nil, err
		}
	}

	if err := enc.WriteUint8(uint8(len(m.Instructions))); err != nil {
		return nil, err
	}
	for _, ix := range m.Instructions {
		if err := enc.WriteUint8(ix.ProgramIDIndex); err != nil {
			return nil, err
		}
		if err := enc.WriteUint8(uint8(len(ix.AccountIndexes))); err != nil {
			return nil, err
		}
		if err := enc.WriteBytes(ix.AccountIndexes, false); err != nil {
			return nil, err
		}
		if err := enc.WriteUint16(uint16(len(ix.Data)), binary.LittleEndian); err != nil {
			return nil, err
		}
		if err := enc.WriteBytes(ix.Data, false); err != nil {
			return nil, err
		}
	}

	// address table lookups
	if err := enc.WriteUint8(0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeTransactionMessage parses an encoded message. Address table lookups
// are not supported and are rejected.
func DecodeTransactionMessage(raw []byte) (*TransactionMessage, error) {
	msg := &TransactionMessage{raw: append([]byte(nil), raw...)}
	dec := ag_binary.NewBorshDecoder(msg.raw)

	var err error
	if msg.NumSigners, err = dec.ReadUint8(); err != nil {
		return nil, err
	}
	if msg.NumWritableSigners, err = dec.ReadUint8(); err != nil {
		return nil, err
	}
	if msg.NumWritableNonSigners, err = dec.ReadUint8(); err != nil {
		return nil, err
	}

	numKeys, err := dec.ReadUint8()
	if err != nil {
		return nil, err
	}
	msg.AccountKeys = make([]solana.PublicKey, numKeys)
	for i := range msg.AccountKeys {
		b, err := dec.ReadNBytes(solana.PublicKeyLength)
		if err != nil {
			return nil, err
		}
		msg.AccountKeys[i] = solana.PublicKeyFromBytes(b)
	}

	numIxs, err := dec.ReadUint8()
	if err != nil {
		return nil, err
	}
	msg.Instructions = make([]CompiledInstruction, numIxs)
	for i := range msg.Instructions {
		ix := &msg.Instructions[i]
		if ix.ProgramIDIndex, err = dec.ReadUint8(); err != nil {
			return nil, err
		}
		n, err := dec.ReadUint8()
		if err != nil {
			return nil, err
		}
		if ix.AccountIndexes, err = dec.ReadNBytes(int(n)); err != nil {
			return nil, err
		}
		dataLen, err := dec.ReadUint16(binary.LittleEndian)
		if err != nil {
			return nil, err
		}
		if ix.Data, err = dec.ReadNBytes(int(dataLen)); err != nil {
			return nil, err
		}
	}

	lookups, err := dec.ReadUint8()
	if err != nil {
		return nil, err
	}
	if lookups != 0 {
		return nil, fmt.Errorf("address table lookups are not supported (%d present)", lookups)
	}
	if dec.HasRemaining() {
		return nil, fmt.Errorf("%d trailing bytes after message", dec.Remaining())
	}
	return msg, nil
}
