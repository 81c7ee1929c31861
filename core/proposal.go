package core

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultExpiryHours is the proposal expiry window when none is given.
const DefaultExpiryHours = 72

// ProposalEngine manages the lifecycle of multi-signer proposals. Each
// proposal is guarded by its own mutex so operations on distinct
// proposals never serialize against each other.
type ProposalEngine struct {
	mu        sync.RWMutex
	proposals map[string]*proposalEntry

	executor Executor
	store    *Store
	logger   *logrus.Logger
}

type proposalEntry struct {
	mu sync.Mutex
	p  *Proposal
}

// NewProposalEngine creates an engine dispatching through executor.
// store may be nil for purely in-memory operation.
func NewProposalEngine(executor Executor, store *Store, logger *logrus.Logger) *ProposalEngine {
	return &ProposalEngine{
		proposals: make(map[string]*proposalEntry),
		executor:  executor,
		store:     store,
		logger:    logger,
	}
}

type CreateProposalParams struct {
	Type    ProposalType
	To      string
	Value   *big.Int
	Token   string
	ChainID uint64
	Data    []byte

	RequiredSignatures int
	TotalSigners       int

	// Creator, when set, restricts cancellation to this address
	Creator string

	// ExpiresInHours defaults to DefaultExpiryHours when zero. Negative
	// values are accepted and produce an already-expired proposal.
	ExpiresInHours int
}

// CreateProposal validates params and registers a fresh pending proposal.
func (e *ProposalEngine) CreateProposal(params CreateProposalParams) (*Proposal, error) {
	if params.TotalSigners < 2 {
		return nil, ErrInsufficientSigners
	}
	if params.RequiredSignatures < 2 || params.RequiredSignatures > params.TotalSigners {
		return nil, ErrInvalidThreshold
	}

	hours := params.ExpiresInHours
	if hours == 0 {
		hours = DefaultExpiryHours
	}

	now := time.Now()
	value := params.Value
	if value == nil {
		value = new(big.Int)
	}

	p := &Proposal{
		ID:                 newID("prop"),
		Type:               params.Type,
		To:                 params.To,
		Value:              new(big.Int).Set(value),
		Token:              params.Token,
		ChainID:            params.ChainID,
		Data:               append([]byte(nil), params.Data...),
		RequiredSignatures: params.RequiredSignatures,
		TotalSigners:       params.TotalSigners,
		Signatures:         []Signature{},
		Status:             Pending,
		Creator:            strings.ToLower(params.Creator),
		CreatedAt:          now,
		ExpiresAt:          now.Add(time.Duration(hours) * time.Hour),
	}

	entry := &proposalEntry{p: p}

	e.mu.Lock()
	e.proposals[p.ID] = entry
	e.mu.Unlock()

	e.persistProposal(p)

	e.logger.WithFields(logrus.Fields{
		"proposal": p.ID,
		"type":     p.Type,
		"required": p.RequiredSignatures,
	}).Info("proposal created")

	return cloneProposal(p), nil
}

// AddSignature appends signer's approval. Expiry is detected lazily here:
// a stale proposal is flipped to expired before the signature is refused.
func (e *ProposalEngine) AddSignature(id, signer string, signature []byte) (*Proposal, error) {
	entry, err := e.entry(id)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	p := entry.p
	switch p.Status {
	case Pending, Ready:
	case Expired:
		return nil, ErrProposalExpired
	default:
		// executed, cancelled and failed proposals are immutable
		return nil, ErrProposalFinalized
	}

	if p.IsExpired(time.Now()) {
		p.Status = Expired
		e.persistProposal(p)
		return nil, ErrProposalExpired
	}

	normalized := strings.ToLower(signer)
	for _, sig := range p.Signatures {
		if sig.Signer == normalized {
			return nil, ErrDuplicateSignature
		}
	}

	p.Signatures = append(p.Signatures, Signature{
		Signer:    normalized,
		Signature: append([]byte(nil), signature...),
		Timestamp: time.Now(),
	})

	// Level-triggered on count; the status never regresses.
	if p.Status == Pending && p.HasQuorum() {
		p.Status = Ready
	}

	e.persistProposal(p)

	e.logger.WithFields(logrus.Fields{
		"proposal":   p.ID,
		"signer":     normalized,
		"signatures": len(p.Signatures),
		"status":     p.Status,
	}).Info("signature added")

	return cloneProposal(p), nil
}

// Execute dispatches a quorate proposal through the injected executor,
// exactly once. The proposal's own lock is held across the executor call
// so a concurrent Execute observes the committed terminal status; other
// proposals are unaffected.
func (e *ProposalEngine) Execute(ctx context.Context, id string) (*Proposal, error) {
	entry, err := e.entry(id)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	p := entry.p
	if p.Status == Executed {
		return nil, ErrAlreadyExecuted
	}
	if !p.HasQuorum() {
		return nil, ErrInsufficientSignatures
	}
	if p.Status == Cancelled || p.Status == Failed || p.Status == Expired {
		return nil, ErrNotExecutable
	}

	txHash, execErr := e.executor.Execute(ctx, cloneProposal(p))
	if execErr != nil {
		p.Status = Failed
		e.persistProposal(p)
		e.logger.WithFields(logrus.Fields{
			"proposal": p.ID,
			"error":    execErr,
		}).Error("proposal execution failed")
		// The executor's error is surfaced verbatim; retrying is the
		// caller's decision via a fresh proposal.
		return nil, execErr
	}

	p.Status = Executed
	p.TxHash = txHash
	e.persistProposal(p)

	e.logger.WithFields(logrus.Fields{
		"proposal": p.ID,
		"txHash":   txHash,
	}).Info("proposal executed")

	return cloneProposal(p), nil
}

// Cancel marks a pending or ready proposal cancelled. When a creator
// was declared only that address may cancel. Cancelling twice is a
// no-op; other terminal states are never overwritten.
func (e *ProposalEngine) Cancel(id, requestor string) (*Proposal, error) {
	entry, err := e.entry(id)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	p := entry.p
	if p.Creator != "" && !strings.EqualFold(p.Creator, requestor) {
		return nil, ErrNotCreator
	}
	switch p.Status {
	case Pending, Ready:
	case Executed:
		return nil, ErrCannotCancelExecuted
	case Cancelled:
		return cloneProposal(p), nil
	default:
		return nil, ErrProposalFinalized
	}

	p.Status = Cancelled
	e.persistProposal(p)

	e.logger.WithField("proposal", p.ID).Info("proposal cancelled")

	return cloneProposal(p), nil
}

// Get returns a snapshot of the proposal.
func (e *ProposalEngine) Get(id string) (*Proposal, error) {
	entry, err := e.entry(id)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	return cloneProposal(entry.p), nil
}

// ExecuteSignerChange applies an add_signer/remove_signer proposal to
// wallet and returns the updated wallet. The proposal must have reached
// quorum.
func (e *ProposalEngine) ExecuteSignerChange(wallet *MultiSigWallet, id string) (*MultiSigWallet, error) {
	entry, err := e.entry(id)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	p := entry.p
	if p.Type != AddSigner && p.Type != RemoveSigner {
		return nil, ErrNotSignerChange
	}
	if !p.HasQuorum() {
		return nil, ErrInsufficientSignatures
	}

	updated := &MultiSigWallet{
		Address:   wallet.Address,
		Signers:   append([]string(nil), wallet.Signers...),
		Threshold: wallet.Threshold,
	}

	switch p.Type {
	case AddSigner:
		for _, s := range updated.Signers {
			if strings.EqualFold(s, p.To) {
				return nil, ErrSignerExists
			}
		}
		updated.Signers = append(updated.Signers, p.To)

	case RemoveSigner:
		if len(updated.Signers)-1 < updated.Threshold {
			return nil, ErrBelowThreshold
		}
		kept := updated.Signers[:0]
		for _, s := range updated.Signers {
			if !strings.EqualFold(s, p.To) {
				kept = append(kept, s)
			}
		}
		updated.Signers = kept
	}

	e.logger.WithFields(logrus.Fields{
		"proposal": p.ID,
		"type":     p.Type,
		"signers":  len(updated.Signers),
	}).Info("signer change applied")

	return updated, nil
}

// ExecuteThresholdChange applies a change_threshold proposal to wallet
// and returns the updated wallet. The new threshold rides in the
// proposal's Value. The proposal must have reached quorum.
func (e *ProposalEngine) ExecuteThresholdChange(wallet *MultiSigWallet, id string) (*MultiSigWallet, error) {
	entry, err := e.entry(id)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	p := entry.p
	if p.Type != ChangeThreshold {
		return nil, ErrNotThresholdChange
	}
	if !p.HasQuorum() {
		return nil, ErrInsufficientSignatures
	}

	threshold := int(p.Value.Int64())
	if threshold < 2 || threshold > len(wallet.Signers) {
		return nil, ErrInvalidThreshold
	}

	updated := &MultiSigWallet{
		Address:   wallet.Address,
		Signers:   append([]string(nil), wallet.Signers...),
		Threshold: threshold,
	}

	e.logger.WithFields(logrus.Fields{
		"proposal":  p.ID,
		"threshold": threshold,
	}).Info("threshold change applied")

	return updated, nil
}

// SweepExpired flips stale pending/ready proposals to expired and returns
// snapshots of the flipped ones. Purely advisory: expiry is also detected
// lazily on every operation.
func (e *ProposalEngine) SweepExpired(now time.Time) []*Proposal {
	e.mu.RLock()
	entries := make([]*proposalEntry, 0, len(e.proposals))
	for _, entry := range e.proposals {
		entries = append(entries, entry)
	}
	e.mu.RUnlock()

	var swept []*Proposal
	for _, entry := range entries {
		entry.mu.Lock()
		p := entry.p
		if (p.Status == Pending || p.Status == Ready) && p.IsExpired(now) {
			p.Status = Expired
			e.persistProposal(p)
			swept = append(swept, cloneProposal(p))
		}
		entry.mu.Unlock()
	}

	return swept
}

// restore seeds the arena from persisted snapshots.
func (e *ProposalEngine) restore(proposals []*Proposal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, p := range proposals {
		e.proposals[p.ID] = &proposalEntry{p: cloneProposal(p)}
	}
}

func (e *ProposalEngine) entry(id string) (*proposalEntry, error) {
	e.mu.RLock()
	entry, ok := e.proposals[id]
	e.mu.RUnlock()
	if !ok {
		return nil, ErrProposalNotFound
	}
	return entry, nil
}

func (e *ProposalEngine) persistProposal(p *Proposal) {
	if e.store == nil {
		return
	}
	if err := e.store.PutProposal(p); err != nil {
		e.logger.WithFields(logrus.Fields{
			"proposal": p.ID,
			"error":    err,
		}).Error("persist proposal failed")
	}
}

func cloneProposal(p *Proposal) *Proposal {
	c := *p
	c.Value = new(big.Int).Set(p.Value)
	c.Data = append([]byte(nil), p.Data...)
	c.Signatures = make([]Signature, len(p.Signatures))
	for i, sig := range p.Signatures {
		c.Signatures[i] = Signature{
			Signer:    sig.Signer,
			Signature: append([]byte(nil), sig.Signature...),
			Timestamp: sig.Timestamp,
		}
	}
	return &c
}
