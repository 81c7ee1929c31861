package core

import (
	"encoding/json"
	"sync"

	"github.com/axiomesh/axiom-kit/storage"
	"github.com/axiomesh/axiom-kit/storage/leveldb"
	"github.com/pkg/errors"
)

const (
	proposalKeyPrefix = "proposal:"
	sessionKeyPrefix  = "session:"

	proposalIndexKey = "index:proposals"
	sessionIndexKey  = "index:sessions"
)

// Store persists proposal and session snapshots so a restarted daemon
// resumes pending state. Snapshots are whole-entity JSON blobs keyed by
// id; an index key tracks membership.
type Store struct {
	mu sync.Mutex
	db storage.Storage
}

// NewStore opens a leveldb-backed store at path.
func NewStore(path string) (*Store, error) {
	db, err := leveldb.New(path)
	if err != nil {
		return nil, errors.Wrap(err, "open leveldb")
	}

	return &Store{db: db}, nil
}

// PutProposal writes the proposal snapshot and registers its id.
func (s *Store) PutProposal(p *Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "marshal proposal")
	}

	s.db.Put([]byte(proposalKeyPrefix+p.ID), data)
	return s.addToIndex(proposalIndexKey, p.ID)
}

// GetProposal returns the stored proposal, or nil when absent.
func (s *Store) GetProposal(id string) (*Proposal, error) {
	data := s.db.Get([]byte(proposalKeyPrefix + id))
	if data == nil {
		return nil, nil
	}

	p := &Proposal{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, errors.Wrap(err, "unmarshal proposal")
	}
	return p, nil
}

// Proposals returns every stored proposal.
func (s *Store) Proposals() ([]*Proposal, error) {
	ids, err := s.index(proposalIndexKey)
	if err != nil {
		return nil, err
	}

	proposals := make([]*Proposal, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetProposal(id)
		if err != nil {
			return nil, err
		}
		if p != nil {
			proposals = append(proposals, p)
		}
	}
	return proposals, nil
}

// PutSession writes the session snapshot and registers its id.
func (s *Store) PutSession(sk *SessionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(sk)
	if err != nil {
		return errors.Wrap(err, "marshal session")
	}

	s.db.Put([]byte(sessionKeyPrefix+sk.SessionID), data)
	return s.addToIndex(sessionIndexKey, sk.SessionID)
}

// GetSession returns the stored session, or nil when absent.
func (s *Store) GetSession(id string) (*SessionKey, error) {
	data := s.db.Get([]byte(sessionKeyPrefix + id))
	if data == nil {
		return nil, nil
	}

	sk := &SessionKey{}
	if err := json.Unmarshal(data, sk); err != nil {
		return nil, errors.Wrap(err, "unmarshal session")
	}
	return sk, nil
}

// Sessions returns every stored session.
func (s *Store) Sessions() ([]*SessionKey, error) {
	ids, err := s.index(sessionIndexKey)
	if err != nil {
		return nil, err
	}

	sessions := make([]*SessionKey, 0, len(ids))
	for _, id := range ids {
		sk, err := s.GetSession(id)
		if err != nil {
			return nil, err
		}
		if sk != nil {
			sessions = append(sessions, sk)
		}
	}
	return sessions, nil
}

func (s *Store) addToIndex(key, id string) error {
	ids, err := s.index(key)
	if err != nil {
		return err
	}

	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	ids = append(ids, id)

	data, err := json.Marshal(ids)
	if err != nil {
		return errors.Wrap(err, "marshal index")
	}

	s.db.Put([]byte(key), data)
	return nil
}

func (s *Store) index(key string) ([]string, error) {
	data := s.db.Get([]byte(key))
	if data == nil {
		return nil, nil
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, errors.Wrap(err, "unmarshal index")
	}
	return ids, nil
}
