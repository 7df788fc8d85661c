package position

import (
	"errors"
)

var (
	ErrPositionAlreadyExists = errors.New("position already exists")
	ErrPositionNotFound      = errors.New("position not found")
)

// Store owns the mapping from (account, position id) to the position. One
// writer mutates it at a time; the settlement engine serializes access.
type Store struct {
	byAccount map[string]map[string]*MarginPosition
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{byAccount: make(map[string]map[string]*MarginPosition)}
}

// Create inserts a position, rejecting an occupied id.
func (s *Store) Create(p *MarginPosition) error {
	positions, ok := s.byAccount[p.AccountID]
	if !ok {
		positions = make(map[string]*MarginPosition)
		s.byAccount[p.AccountID] = positions
	}
	if _, exists := positions[p.ID]; exists {
		return ErrPositionAlreadyExists
	}
	positions[p.ID] = p
	return nil
}

// Get looks up a position.
func (s *Store) Get(accountID, positionID string) (*MarginPosition, error) {
	p, ok := s.byAccount[accountID][positionID]
	if !ok {
		return nil, ErrPositionNotFound
	}
	return p, nil
}

// Delete removes a position. Deleting a fully unwound position is how a
// position closes.
func (s *Store) Delete(accountID, positionID string) error {
	positions := s.byAccount[accountID]
	if _, ok := positions[positionID]; !ok {
		return ErrPositionNotFound
	}
	delete(positions, positionID)
	if len(positions) == 0 {
		delete(s.byAccount, accountID)
	}
	return nil
}

// All returns every position across all accounts.
func (s *Store) All() []*MarginPosition {
	var out []*MarginPosition
	for _, positions := range s.byAccount {
		for _, p := range positions {
			out = append(out, p)
		}
	}
	return out
}

// List returns the positions held by an account.
func (s *Store) List(accountID string) []*MarginPosition {
	positions := s.byAccount[accountID]
	out := make([]*MarginPosition, 0, len(positions))
	for _, p := range positions {
		out = append(out, p)
	}
	return out
}
