package core

import (
	"context"
	"path/filepath"
	"time"

	"github.com/axiomesh/axiom-kit/log"
	"github.com/protocol-bank/custodian/repo"
	"github.com/protocol-bank/custodian/webhook"
	"github.com/sirupsen/logrus"
)

// Custodian wires the authorization engines to persistence, logging and
// outbound notifications, and runs the advisory expiry sweeper.
type Custodian struct {
	Ctx    context.Context
	Logger *logrus.Logger
	Config *repo.Config
	Store  *Store

	Proposals *ProposalEngine
	Sessions  *SessionKeyEngine

	notifier *webhook.Notifier
	stopCh   chan struct{}
}

// NewCustodian opens the store under the repo root, restores persisted
// proposals and sessions, and builds both engines around executor.
func NewCustodian(ctx context.Context, config *repo.Config, executor Executor) (*Custodian, error) {
	logger := log.New()
	logger.SetLevel(log.ParseLevel(config.Log.Level))

	store, err := NewStore(filepath.Join(config.RepoRoot, "leveldb"))
	if err != nil {
		return nil, err
	}

	proposals := NewProposalEngine(executor, store, logger)
	persisted, err := store.Proposals()
	if err != nil {
		return nil, err
	}
	proposals.restore(persisted)

	sessions := NewSessionKeyEngine(store, logger)
	persistedSessions, err := store.Sessions()
	if err != nil {
		return nil, err
	}
	sessions.restore(persistedSessions)

	var notifier *webhook.Notifier
	if config.Webhook.URL != "" {
		notifier = webhook.NewNotifier(config.Webhook.URL, config.Webhook.Secret)
	}

	return &Custodian{
		Ctx:       ctx,
		Logger:    logger,
		Config:    config,
		Store:     store,
		Proposals: proposals,
		Sessions:  sessions,
		notifier:  notifier,
		stopCh:    make(chan struct{}),
	}, nil
}

// Start launches the expiry sweeper.
func (c *Custodian) Start() error {
	go c.sweepLoop()

	c.Logger.WithFields(logrus.Fields{
		"sweepInterval": c.Config.Proposal.SweepInterval,
	}).Info("custodian started")

	return nil
}

// Stop terminates the sweeper.
func (c *Custodian) Stop() error {
	close(c.stopCh)
	return nil
}

func (c *Custodian) sweepLoop() {
	interval := c.Config.Proposal.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Ctx.Done():
			c.Logger.Info("context done, stopping sweeper")
			return
		case <-c.stopCh:
			return
		case now := <-ticker.C:
			expired := c.Proposals.SweepExpired(now)
			if len(expired) == 0 {
				continue
			}

			c.Logger.WithField("count", len(expired)).Info("expired proposals swept")

			for _, p := range expired {
				c.notify(webhook.EventProposalExpired, map[string]interface{}{
					"proposalId": p.ID,
					"type":       string(p.Type),
					"expiresAt":  p.ExpiresAt,
				})
			}
		}
	}
}

func (c *Custodian) notify(eventType webhook.EventType, data map[string]interface{}) {
	if c.notifier == nil {
		return
	}

	if err := c.notifier.Notify(c.Ctx, eventType, data); err != nil {
		c.Logger.WithFields(logrus.Fields{
			"event": eventType,
			"error": err,
		}).Warn("webhook delivery failed")
	}
}
