package core

import (
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// SessionKeyEngine manages delegated signing keys with bounded spending
// authority. Budget deduction is a single atomic read-modify-write under
// the session's own mutex, so concurrent spends against one session can
// never jointly overshoot its budget.
type SessionKeyEngine struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry

	store  *Store
	logger *logrus.Logger
}

type sessionEntry struct {
	mu sync.Mutex
	s  *SessionKey
}

// NewSessionKeyEngine creates an engine. store may be nil for purely
// in-memory operation.
func NewSessionKeyEngine(store *Store, logger *logrus.Logger) *SessionKeyEngine {
	return &SessionKeyEngine{
		sessions: make(map[string]*sessionEntry),
		store:    store,
		logger:   logger,
	}
}

type SessionKeyConfig struct {
	Owner string
	Key   string

	MaxBudget   *big.Int
	MaxSingleTx *big.Int
	Duration    time.Duration

	// Empty allow-lists permit every token/target
	AllowedTokens  []string
	AllowedTargets []string
}

// CreateSessionKey registers a fresh active session with a zero used
// budget.
func (e *SessionKeyEngine) CreateSessionKey(cfg SessionKeyConfig) (*SessionKey, error) {
	if cfg.MaxBudget == nil || cfg.MaxBudget.Sign() <= 0 {
		return nil, errors.New("max budget must be positive")
	}
	if cfg.MaxSingleTx == nil || cfg.MaxSingleTx.Sign() <= 0 {
		return nil, errors.New("max single tx must be positive")
	}
	if cfg.Duration <= 0 {
		return nil, errors.New("duration must be positive")
	}

	now := time.Now()
	s := &SessionKey{
		SessionID:      newID("sess"),
		Owner:          strings.ToLower(cfg.Owner),
		Key:            strings.ToLower(cfg.Key),
		MaxBudget:      new(big.Int).Set(cfg.MaxBudget),
		UsedBudget:     new(big.Int),
		MaxSingleTx:    new(big.Int).Set(cfg.MaxSingleTx),
		AllowedTokens:  append([]string(nil), cfg.AllowedTokens...),
		AllowedTargets: append([]string(nil), cfg.AllowedTargets...),
		CreatedAt:      now,
		ExpiresAt:      now.Add(cfg.Duration),
		Active:         true,
		UsageRecords:   []UsageRecord{},
	}

	entry := &sessionEntry{s: s}

	e.mu.Lock()
	e.sessions[s.SessionID] = entry
	e.mu.Unlock()

	e.persistSession(s)

	e.logger.WithFields(logrus.Fields{
		"session": s.SessionID,
		"owner":   s.Owner,
		"budget":  s.MaxBudget,
	}).Info("session key created")

	return cloneSession(s), nil
}

// ValidateAndRecord checks a spend against every session constraint and,
// when all pass, deducts the amount and appends a usage record. Terminal
// conditions are checked first: revoked, then expired, then frozen.
func (e *SessionKeyEngine) ValidateAndRecord(sessionID string, amount *big.Int, token, target string, signature []byte) (*SpendResult, error) {
	entry, err := e.entry(sessionID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	s := entry.s
	switch {
	case !s.Active:
		return nil, ErrSessionRevoked
	case time.Now().After(s.ExpiresAt):
		return nil, ErrSessionExpired
	case s.Frozen:
		return nil, ErrSessionFrozen
	}

	if amount == nil || amount.Sign() <= 0 {
		return nil, errors.New("amount must be positive")
	}
	if new(big.Int).Add(s.UsedBudget, amount).Cmp(s.MaxBudget) > 0 {
		return nil, ErrBudgetExceeded
	}
	if amount.Cmp(s.MaxSingleTx) > 0 {
		return nil, ErrAmountExceedsSingleTx
	}
	if !listAllows(s.AllowedTokens, token) {
		return nil, ErrTokenNotAllowed
	}
	if !listAllows(s.AllowedTargets, target) {
		return nil, ErrTargetNotAllowed
	}

	txHash := randomTxHash()
	s.UsedBudget.Add(s.UsedBudget, amount)
	s.UsageRecords = append(s.UsageRecords, UsageRecord{
		Timestamp: time.Now(),
		Amount:    new(big.Int).Set(amount),
		Token:     token,
		Target:    strings.ToLower(target),
		TxHash:    txHash,
	})

	e.persistSession(s)

	remaining := s.RemainingBudget()
	e.logger.WithFields(logrus.Fields{
		"session":   s.SessionID,
		"amount":    amount,
		"remaining": remaining,
	}).Info("session spend recorded")

	return &SpendResult{
		SessionID:       s.SessionID,
		RemainingBudget: remaining,
		TxHash:          txHash,
	}, nil
}

// Freeze suspends spending without revoking the session.
func (e *SessionKeyEngine) Freeze(sessionID string) error {
	return e.setFrozen(sessionID, true)
}

// Unfreeze lifts a freeze. Revoked sessions stay revoked.
func (e *SessionKeyEngine) Unfreeze(sessionID string) error {
	return e.setFrozen(sessionID, false)
}

func (e *SessionKeyEngine) setFrozen(sessionID string, frozen bool) error {
	entry, err := e.entry(sessionID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	s := entry.s
	if !s.Active {
		return ErrSessionRevoked
	}

	s.Frozen = frozen
	e.persistSession(s)

	e.logger.WithFields(logrus.Fields{
		"session": s.SessionID,
		"frozen":  frozen,
	}).Info("session freeze state changed")

	return nil
}

// Revoke terminates the session. Irreversible; repeated revocation is a
// no-op.
func (e *SessionKeyEngine) Revoke(sessionID string) error {
	entry, err := e.entry(sessionID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	s := entry.s
	if !s.Active {
		return nil
	}

	s.Active = false
	e.persistSession(s)

	e.logger.WithField("session", s.SessionID).Info("session key revoked")

	return nil
}

// TopUpBudget raises the session's budget cap. No upper bound is
// enforced here; restricting top-ups is the owner layer's policy.
func (e *SessionKeyEngine) TopUpBudget(sessionID string, additional *big.Int) (*SessionKey, error) {
	if additional == nil || additional.Sign() <= 0 {
		return nil, errors.New("top-up amount must be positive")
	}

	entry, err := e.entry(sessionID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	s := entry.s
	if !s.Active {
		return nil, ErrSessionRevoked
	}

	s.MaxBudget.Add(s.MaxBudget, additional)
	e.persistSession(s)

	e.logger.WithFields(logrus.Fields{
		"session": s.SessionID,
		"budget":  s.MaxBudget,
	}).Info("session budget topped up")

	return cloneSession(s), nil
}

// Get returns a snapshot of the session.
func (e *SessionKeyEngine) Get(sessionID string) (*SessionKey, error) {
	entry, err := e.entry(sessionID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	return cloneSession(entry.s), nil
}

// restore seeds the arena from persisted snapshots.
func (e *SessionKeyEngine) restore(sessions []*SessionKey) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, s := range sessions {
		e.sessions[s.SessionID] = &sessionEntry{s: cloneSession(s)}
	}
}

func (e *SessionKeyEngine) entry(sessionID string) (*sessionEntry, error) {
	e.mu.RLock()
	entry, ok := e.sessions[sessionID]
	e.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return entry, nil
}

func (e *SessionKeyEngine) persistSession(s *SessionKey) {
	if e.store == nil {
		return
	}
	if err := e.store.PutSession(s); err != nil {
		e.logger.WithFields(logrus.Fields{
			"session": s.SessionID,
			"error":   err,
		}).Error("persist session failed")
	}
}

// listAllows treats an empty allow-list as permitting everything.
func listAllows(list []string, value string) bool {
	if len(list) == 0 {
		return true
	}
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}

func cloneSession(s *SessionKey) *SessionKey {
	c := *s
	c.MaxBudget = new(big.Int).Set(s.MaxBudget)
	c.UsedBudget = new(big.Int).Set(s.UsedBudget)
	c.MaxSingleTx = new(big.Int).Set(s.MaxSingleTx)
	c.AllowedTokens = append([]string(nil), s.AllowedTokens...)
	c.AllowedTargets = append([]string(nil), s.AllowedTargets...)
	c.UsageRecords = make([]UsageRecord, len(s.UsageRecords))
	for i, r := range s.UsageRecords {
		c.UsageRecords[i] = UsageRecord{
			Timestamp: r.Timestamp,
			Amount:    new(big.Int).Set(r.Amount),
			Token:     r.Token,
			Target:    r.Target,
			TxHash:    r.TxHash,
		}
	}
	return &c
}
