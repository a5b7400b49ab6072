package squadstest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/hogyzen12/squads-go/generated/squads_multisig_program"

	"smartvault-go/internal/squads"
)

// ErrRejected wraps every reason the ledger refuses a transaction.
var ErrRejected = errors.New("transaction rejected")

type proposalStatus int

const (
	proposalDraft proposalStatus = iota
	proposalActive
	proposalApproved
	proposalExecuted
)

type vaultTransaction struct {
	multisig   solana.PublicKey
	index      uint64
	vaultIndex uint8
	message    []byte
}

type proposal struct {
	multisig  solana.PublicKey
	index     uint64
	status    proposalStatus
	approvals map[solana.PublicKey]bool
}

// Executed records one vault transaction executed by the ledger.
type Executed struct {
	Multisig         solana.PublicKey
	TransactionIndex uint64
	Message          []byte
}

type state struct {
	multisigs    map[solana.PublicKey]squads.MultisigState
	transactions map[solana.PublicKey]vaultTransaction
	proposals    map[solana.PublicKey]proposal
	executed     []Executed
	hidden       map[solana.PublicKey]int
}

func (s *state) clone() *state {
	out := &state{
		multisigs:    make(map[solana.PublicKey]squads.MultisigState, len(s.multisigs)),
		transactions: make(map[solana.PublicKey]vaultTransaction, len(s.transactions)),
		proposals:    make(map[solana.PublicKey]proposal, len(s.proposals)),
		executed:     append([]Executed(nil), s.executed...),
		hidden:       make(map[solana.PublicKey]int, len(s.hidden)),
	}
	for k, v := range s.multisigs {
		v.Members = append([]squads.Member(nil), v.Members...)
		out.multisigs[k] = v
	}
	for k, v := range s.transactions {
		out.transactions[k] = v
	}
	for k, v := range s.proposals {
		approvals := make(map[solana.PublicKey]bool, len(v.approvals))
		for a := range v.approvals {
			approvals[a] = true
		}
		v.approvals = approvals
		out.proposals[k] = v
	}
	for k, v := range s.hidden {
		out.hidden[k] = v
	}
	return out
}

// Ledger is an in-memory ledger implementing the gateway calls the
// orchestrator uses. Transactions are applied atomically: one failing
// instruction discards the effects of the others.
type Ledger struct {
	mu        sync.Mutex
	program   squads.Program
	treasury  solana.PublicKey
	blockhash solana.Hash
	raw       map[solana.PublicKey]squads.Account
	st        *state
	sent      []*solana.Transaction
	reads     int

	// HideCreatedReads is how many reads a newly created multisig stays
	// invisible for, imitating a lagging RPC node.
	HideCreatedReads int

	GetAccountErr error
	BlockhashErr  error
	SendErr       error
}

// NewLedger returns a ledger with the program config account in place.
func NewLedger(program squads.Program) *Ledger {
	l := &Ledger{
		program:   program,
		treasury:  NewKey(),
		blockhash: solana.HashFromBytes(NewKey().Bytes()),
		raw:       make(map[solana.PublicKey]squads.Account),
		st: &state{
			multisigs:    make(map[solana.PublicKey]squads.MultisigState),
			transactions: make(map[solana.PublicKey]vaultTransaction),
			proposals:    make(map[solana.PublicKey]proposal),
			hidden:       make(map[solana.PublicKey]int),
		},
	}
	configAddr, _ := program.ProgramConfigPDA()
	l.raw[configAddr] = squads.Account{
		Address: configAddr,
		Owner:   program.ID(),
		Data: ProgramConfigAccountData(squads.ProgramConfigState{
			Authority: NewKey(),
			Treasury:  l.treasury,
		}),
	}
	return l
}

// Treasury returns the treasury recorded in the program config.
func (l *Ledger) Treasury() solana.PublicKey {
	return l.treasury
}

// Blockhash returns the hash the ledger currently accepts.
func (l *Ledger) Blockhash() solana.Hash {
	return l.blockhash
}

// SetAccount stores an arbitrary raw account.
func (l *Ledger) SetAccount(acc squads.Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.raw[acc.Address] = acc
}

// DeleteAccount removes a raw account.
func (l *Ledger) DeleteAccount(address solana.PublicKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.raw, address)
}

// PutMultisig stores a multisig account at ms.Address.
func (l *Ledger) PutMultisig(ms squads.MultisigState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.st.multisigs[ms.Address] = ms
}

// Multisig returns the current state of a multisig.
func (l *Ledger) Multisig(address solana.PublicKey) (squads.MultisigState, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ms, ok := l.st.multisigs[address]
	return ms, ok
}

// HasVaultTransaction reports whether the transaction or proposal account at
// address is still open.
func (l *Ledger) HasVaultTransaction(address solana.PublicKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, tx := l.st.transactions[address]
	_, p := l.st.proposals[address]
	return tx || p
}

// Sent returns every accepted transaction in order.
func (l *Ledger) Sent() []*solana.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*solana.Transaction(nil), l.sent...)
}

// Executed returns every executed vault transaction in order.
func (l *Ledger) Executed() []Executed {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Executed(nil), l.st.executed...)
}

// Reads returns how many account reads were served.
func (l *Ledger) Reads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reads
}

// GetAccount implements the gateway account read.
func (l *Ledger) GetAccount(_ context.Context, address solana.PublicKey) (*squads.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reads++

	if l.GetAccountErr != nil {
		return nil, l.GetAccountErr
	}
	if acc, ok := l.raw[address]; ok {
		acc.Data = append([]byte(nil), acc.Data...)
		return &acc, nil
	}
	if ms, ok := l.st.multisigs[address]; ok {
		if n := l.st.hidden[address]; n > 0 {
			l.st.hidden[address] = n - 1
			return nil, fmt.Errorf("%w: %s", squads.ErrAccountNotFound, address)
		}
		return &squads.Account{
			Address:  address,
			Owner:    l.program.ID(),
			Lamports: 1,
			Data:     MultisigAccountData(ms),
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", squads.ErrAccountNotFound, address)
}

// GetLatestBlockhash implements the gateway blockhash fetch.
func (l *Ledger) GetLatestBlockhash(_ context.Context) (solana.Hash, error) {
	if l.BlockhashErr != nil {
		return solana.Hash{}, l.BlockhashErr
	}
	return l.blockhash, nil
}

// SendTransaction verifies signatures and applies every Squads instruction
// in tx. Instructions for other programs are accepted without effect.
func (l *Ledger) SendTransaction(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.SendErr != nil {
		return solana.Signature{}, l.SendErr
	}
	if err := tx.VerifySignatures(); err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	if tx.Message.RecentBlockhash != l.blockhash {
		return solana.Signature{}, fmt.Errorf("%w: blockhash not found", ErrRejected)
	}

	next := l.st.clone()
	keys := tx.Message.AccountKeys
	for i, cix := range tx.Message.Instructions {
		if !keys[cix.ProgramIDIndex].Equals(l.program.ID()) {
			continue
		}
		metas, err := cix.ResolveInstructionAccounts(&tx.Message)
		if err != nil {
			return solana.Signature{}, fmt.Errorf("%w: instruction %d: %v", ErrRejected, i, err)
		}
		accounts := make([]solana.PublicKey, len(metas))
		for j, meta := range metas {
			accounts[j] = meta.PublicKey
		}
		ctx := &applyContext{ledger: l, st: next, msg: &tx.Message, metas: metas, accounts: accounts, data: cix.Data}
		if err := ctx.apply(); err != nil {
			return solana.Signature{}, fmt.Errorf("%w: instruction %d: %v", ErrRejected, i, err)
		}
	}

	l.st = next
	l.sent = append(l.sent, tx)
	return tx.Signatures[0], nil
}

type applyContext struct {
	ledger   *Ledger
	st       *state
	msg      *solana.Message
	metas    []*solana.AccountMeta
	accounts []solana.PublicKey
	data     []byte
}

func (c *applyContext) account(i int) (solana.PublicKey, error) {
	if i >= len(c.accounts) {
		return solana.PublicKey{}, fmt.Errorf("missing account %d", i)
	}
	return c.accounts[i], nil
}

func (c *applyContext) signed(key solana.PublicKey) error {
	if !c.msg.IsSigner(key) {
		return fmt.Errorf("%s did not sign", key)
	}
	return nil
}

func (c *applyContext) multisig() (squads.MultisigState, error) {
	addr, err := c.account(0)
	if err != nil {
		return squads.MultisigState{}, err
	}
	ms, ok := c.st.multisigs[addr]
	if !ok {
		return squads.MultisigState{}, fmt.Errorf("multisig %s does not exist", addr)
	}
	return ms, nil
}

func (c *applyContext) member(ms squads.MultisigState, key solana.PublicKey, perm uint8) error {
	if err := c.signed(key); err != nil {
		return err
	}
	for _, m := range ms.Members {
		if m.Key.Equals(key) && m.Has(perm) {
			return nil
		}
	}
	return fmt.Errorf("%s lacks permission %d", key, perm)
}

func (c *applyContext) apply() error {
	inst, err := squads_multisig_program.DecodeInstruction(c.metas, c.data)
	if err != nil {
		return err
	}

	switch ix := inst.Impl.(type) {
	case *squads_multisig_program.MultisigCreateV2:
		return c.multisigCreate(ix.Args)
	case *squads_multisig_program.VaultTransactionCreate:
		return c.vaultTransactionCreate(ix.Args)
	case *squads_multisig_program.ProposalCreate:
		return c.proposalCreate(ix.Args)
	case *squads_multisig_program.ProposalApprove:
		return c.proposalApprove()
	case *squads_multisig_program.VaultTransactionExecute:
		return c.vaultTransactionExecute()
	case *squads_multisig_program.VaultTransactionAccountsClose:
		return c.vaultTransactionAccountsClose()
	default:
		return fmt.Errorf("unsupported instruction %s", squads_multisig_program.InstructionIDToName(inst.TypeID))
	}
}

func (c *applyContext) multisigCreate(args *squads_multisig_program.MultisigCreateArgsV2) error {
	if len(c.accounts) < 6 {
		return fmt.Errorf("multisig_create_v2 needs 6 accounts, got %d", len(c.accounts))
	}
	treasury, multisig, createKey, creator := c.accounts[1], c.accounts[2], c.accounts[3], c.accounts[4]
	if err := c.signed(createKey); err != nil {
		return err
	}
	if err := c.signed(creator); err != nil {
		return err
	}
	if want, _ := c.ledger.program.MultisigPDA(createKey); !want.Equals(multisig) {
		return fmt.Errorf("multisig %s is not derived from create key %s", multisig, createKey)
	}
	if !treasury.Equals(c.ledger.treasury) {
		return fmt.Errorf("treasury %s does not match program config", treasury)
	}
	if _, exists := c.st.multisigs[multisig]; exists {
		return fmt.Errorf("multisig %s already in use", multisig)
	}

	if args == nil {
		return errors.New("multisig_create_v2 without args")
	}
	members := make([]squads.Member, len(args.Members))
	for i, m := range args.Members {
		members[i] = squads.Member{Key: m.Key, Permissions: m.Permissions.Mask}
	}
	if args.Threshold == 0 || int(args.Threshold) > len(members) {
		return fmt.Errorf("invalid threshold %d for %d members", args.Threshold, len(members))
	}

	ms := squads.MultisigState{
		Address:       multisig,
		CreateKey:     createKey,
		Threshold:     args.Threshold,
		TimeLock:      args.TimeLock,
		RentCollector: args.RentCollector,
		Members:       members,
	}
	if args.ConfigAuthority != nil {
		ms.ConfigAuthority = *args.ConfigAuthority
	}
	c.st.multisigs[multisig] = ms
	if c.ledger.HideCreatedReads > 0 {
		c.st.hidden[multisig] = c.ledger.HideCreatedReads
	}
	return nil
}

func (c *applyContext) vaultTransactionCreate(args *squads_multisig_program.VaultTransactionCreateArgs) error {
	ms, err := c.multisig()
	if err != nil {
		return err
	}
	transaction, err := c.account(1)
	if err != nil {
		return err
	}
	creator, err := c.account(2)
	if err != nil {
		return err
	}
	if err := c.member(ms, creator, squads.PermissionInitiate); err != nil {
		return err
	}

	if args == nil {
		return errors.New("vault_transaction_create without args")
	}
	vaultIndex, raw := args.VaultIndex, args.TransactionMessage
	msg, err := squads.DecodeTransactionMessage(raw)
	if err != nil {
		return fmt.Errorf("invalid transaction message: %w", err)
	}
	if vault, _ := c.ledger.program.VaultPDA(ms.Address, vaultIndex); len(msg.AccountKeys) == 0 || !msg.AccountKeys[0].Equals(vault) {
		return fmt.Errorf("message is not addressed to vault %d", vaultIndex)
	}

	index := ms.TransactionIndex + 1
	if want, _ := c.ledger.program.TransactionPDA(ms.Address, index); !want.Equals(transaction) {
		return fmt.Errorf("transaction account %s does not match index %d", transaction, index)
	}
	if _, exists := c.st.transactions[transaction]; exists {
		return fmt.Errorf("transaction %s already in use", transaction)
	}

	c.st.transactions[transaction] = vaultTransaction{
		multisig:   ms.Address,
		index:      index,
		vaultIndex: vaultIndex,
		message:    append([]byte(nil), raw...),
	}
	ms.TransactionIndex = index
	c.st.multisigs[ms.Address] = ms
	return nil
}

func (c *applyContext) proposalCreate(args *squads_multisig_program.ProposalCreateArgs) error {
	ms, err := c.multisig()
	if err != nil {
		return err
	}
	proposalAddr, err := c.account(1)
	if err != nil {
		return err
	}
	creator, err := c.account(2)
	if err != nil {
		return err
	}
	if err := c.member(ms, creator, squads.PermissionInitiate); err != nil {
		return err
	}

	if args == nil {
		return errors.New("proposal_create without args")
	}
	index, draft := args.TransactionIndex, args.Draft
	if index == 0 || index > ms.TransactionIndex {
		return fmt.Errorf("proposal index %d out of range", index)
	}
	if want, _ := c.ledger.program.ProposalPDA(ms.Address, index); !want.Equals(proposalAddr) {
		return fmt.Errorf("proposal account %s does not match index %d", proposalAddr, index)
	}
	if _, exists := c.st.proposals[proposalAddr]; exists {
		return fmt.Errorf("proposal %s already in use", proposalAddr)
	}

	status := proposalActive
	if draft {
		status = proposalDraft
	}
	c.st.proposals[proposalAddr] = proposal{
		multisig:  ms.Address,
		index:     index,
		status:    status,
		approvals: make(map[solana.PublicKey]bool),
	}
	return nil
}

func (c *applyContext) proposalApprove() error {
	ms, err := c.multisig()
	if err != nil {
		return err
	}
	member, err := c.account(1)
	if err != nil {
		return err
	}
	proposalAddr, err := c.account(2)
	if err != nil {
		return err
	}
	if err := c.member(ms, member, squads.PermissionVote); err != nil {
		return err
	}
	p, ok := c.st.proposals[proposalAddr]
	if !ok {
		return fmt.Errorf("proposal %s does not exist", proposalAddr)
	}
	if p.status != proposalActive {
		return fmt.Errorf("proposal %s is not active", proposalAddr)
	}
	p.approvals[member] = true
	if len(p.approvals) >= int(ms.Threshold) {
		p.status = proposalApproved
	}
	c.st.proposals[proposalAddr] = p
	return nil
}

func (c *applyContext) vaultTransactionExecute() error {
	ms, err := c.multisig()
	if err != nil {
		return err
	}
	if len(c.accounts) < 4 {
		return fmt.Errorf("vault_transaction_execute needs 4 accounts, got %d", len(c.accounts))
	}
	proposalAddr, transaction, member := c.accounts[1], c.accounts[2], c.accounts[3]
	if err := c.member(ms, member, squads.PermissionExecute); err != nil {
		return err
	}
	p, ok := c.st.proposals[proposalAddr]
	if !ok || p.status != proposalApproved {
		return fmt.Errorf("proposal %s is not approved", proposalAddr)
	}
	vt, ok := c.st.transactions[transaction]
	if !ok || vt.index != p.index {
		return fmt.Errorf("transaction %s does not belong to proposal %s", transaction, proposalAddr)
	}

	msg, err := squads.DecodeTransactionMessage(vt.message)
	if err != nil {
		return err
	}
	remaining := c.metas[4:]
	if len(remaining) != len(msg.AccountKeys) {
		return fmt.Errorf("expected %d message accounts, got %d", len(msg.AccountKeys), len(remaining))
	}
	for i, key := range msg.AccountKeys {
		if !remaining[i].PublicKey.Equals(key) {
			return fmt.Errorf("message account %d mismatch: %s != %s", i, remaining[i].PublicKey, key)
		}
		if msg.IsWritable(i) && !remaining[i].IsWritable {
			return fmt.Errorf("message account %d (%s) must be writable", i, key)
		}
	}

	p.status = proposalExecuted
	c.st.proposals[proposalAddr] = p
	c.st.executed = append(c.st.executed, Executed{
		Multisig:         ms.Address,
		TransactionIndex: vt.index,
		Message:          append([]byte(nil), vt.message...),
	})
	return nil
}

func (c *applyContext) vaultTransactionAccountsClose() error {
	ms, err := c.multisig()
	if err != nil {
		return err
	}
	if len(c.accounts) < 4 {
		return fmt.Errorf("vault_transaction_accounts_close needs 4 accounts, got %d", len(c.accounts))
	}
	proposalAddr, transaction, rentCollector := c.accounts[1], c.accounts[2], c.accounts[3]
	p, ok := c.st.proposals[proposalAddr]
	if !ok || p.status != proposalExecuted {
		return fmt.Errorf("proposal %s is not executed", proposalAddr)
	}
	if ms.RentCollector == nil || !ms.RentCollector.Equals(rentCollector) {
		return fmt.Errorf("rent collector %s does not match multisig", rentCollector)
	}
	delete(c.st.proposals, proposalAddr)
	delete(c.st.transactions, transaction)
	return nil
}
