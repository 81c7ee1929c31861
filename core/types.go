package core

import (
	"math/big"
	"time"
)

type ProposalStatus string

const (
	// Pending means the proposal is collecting signatures
	Pending ProposalStatus = "pending"

	// Ready means the proposal reached its signature threshold
	Ready ProposalStatus = "ready"

	// Executed means the executor carried out the proposal, terminal
	Executed ProposalStatus = "executed"

	// Cancelled means the creator withdrew the proposal, terminal
	Cancelled ProposalStatus = "cancelled"

	// Failed means the executor rejected the proposal, terminal
	Failed ProposalStatus = "failed"

	// Expired means the proposal outlived its expiry window, terminal
	Expired ProposalStatus = "expired"
)

type ProposalType string

const (
	// Transfer moves value to a recipient address
	Transfer ProposalType = "transfer"

	// ContractCall invokes a contract with calldata
	ContractCall ProposalType = "contract_call"

	// AddSigner adds a new signer to the wallet
	AddSigner ProposalType = "add_signer"

	// RemoveSigner removes a signer from the wallet
	RemoveSigner ProposalType = "remove_signer"

	// ChangeThreshold changes the wallet signature threshold
	ChangeThreshold ProposalType = "change_threshold"
)

// Signature is one signer's approval of a proposal. Signers are stored
// lowercased so duplicate detection is case-insensitive.
type Signature struct {
	Signer    string    `json:"signer"`
	Signature []byte    `json:"signature"`
	Timestamp time.Time `json:"timestamp"`
}

type Proposal struct {
	ID      string       `json:"id"`
	Type    ProposalType `json:"type"`
	To      string       `json:"to"`
	Value   *big.Int     `json:"value"`
	Token   string       `json:"token"`
	ChainID uint64       `json:"chainId"`

	// Data is calldata for contract_call proposals
	Data []byte `json:"data,omitempty"`

	RequiredSignatures int            `json:"requiredSignatures"`
	TotalSigners       int            `json:"totalSigners"`
	Signatures         []Signature    `json:"signatures"`
	Status             ProposalStatus `json:"status"`

	// Creator, when set, is the only address allowed to cancel
	Creator string `json:"creator,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`

	// TxHash is set only on successful execution
	TxHash string `json:"txHash,omitempty"`
}

// IsExpired reports whether the proposal is past its expiry window.
func (p *Proposal) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// HasQuorum reports whether the proposal collected enough signatures.
func (p *Proposal) HasQuorum() bool {
	return len(p.Signatures) >= p.RequiredSignatures
}

type MultiSigWallet struct {
	Address   string   `json:"address"`
	Signers   []string `json:"signers"`
	Threshold int      `json:"threshold"`
}

type SessionKey struct {
	SessionID string `json:"sessionId"`
	Owner     string `json:"owner"`

	// Key is the delegate address authorized to spend
	Key string `json:"sessionKey"`

	MaxBudget   *big.Int `json:"maxBudget"`
	UsedBudget  *big.Int `json:"usedBudget"`
	MaxSingleTx *big.Int `json:"maxSingleTx"`

	// Empty allow-lists permit every token/target
	AllowedTokens  []string `json:"allowedTokens,omitempty"`
	AllowedTargets []string `json:"allowedTargets,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`

	Active bool `json:"isActive"`
	Frozen bool `json:"isFrozen"`

	UsageRecords []UsageRecord `json:"usageRecords"`
}

// RemainingBudget returns maxBudget - usedBudget.
func (s *SessionKey) RemainingBudget() *big.Int {
	return new(big.Int).Sub(s.MaxBudget, s.UsedBudget)
}

// UsageRecord is one successful spend. Records are append-only.
type UsageRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Amount    *big.Int  `json:"amount"`
	Token     string    `json:"token"`
	Target    string    `json:"target"`
	TxHash    string    `json:"txHash"`
}

// SpendResult is returned by a successful ValidateAndRecord call.
type SpendResult struct {
	SessionID       string
	RemainingBudget *big.Int
	TxHash          string
}
