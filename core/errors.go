package core

import "errors"

// Proposal engine errors. Every validation failure is a plain returned
// value; callers match with errors.Is.
var (
	ErrInvalidThreshold       = errors.New("required signatures exceeds total signers")
	ErrInsufficientSigners    = errors.New("multi-sig requires at least 2 signers")
	ErrProposalNotFound       = errors.New("proposal not found")
	ErrProposalExpired        = errors.New("proposal expired")
	ErrDuplicateSignature     = errors.New("signer already signed this proposal")
	ErrInsufficientSignatures = errors.New("not enough signatures to execute")
	ErrAlreadyExecuted        = errors.New("proposal already executed")
	ErrNotExecutable          = errors.New("proposal is not executable from its current status")
	ErrProposalFinalized      = errors.New("proposal is in a terminal state")
	ErrNotCreator             = errors.New("only the proposal creator can cancel")
	ErrCannotCancelExecuted   = errors.New("cannot cancel an executed proposal")
	ErrBelowThreshold         = errors.New("removing signer would drop wallet below threshold")
	ErrSignerExists           = errors.New("signer already present in wallet")
	ErrNotSignerChange        = errors.New("proposal is not a signer change")
	ErrNotThresholdChange     = errors.New("proposal is not a threshold change")
)

// Session key engine errors.
var (
	ErrSessionNotFound       = errors.New("session not found")
	ErrSessionRevoked        = errors.New("session has been revoked")
	ErrSessionExpired        = errors.New("session expired")
	ErrSessionFrozen         = errors.New("session is frozen")
	ErrAmountExceedsSingleTx = errors.New("amount exceeds per-transaction limit")
	ErrBudgetExceeded        = errors.New("spend would exceed session budget")
	ErrTokenNotAllowed       = errors.New("token not in session allow-list")
	ErrTargetNotAllowed      = errors.New("target not in session allow-list")
)
