package rules

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// RuleStore manages rule persistence and retrieval.
type RuleStore interface {
	// Add stores a new rule and sets its timestamps.
	Add(rule *Rule) error

	// Get retrieves a rule by ID, active or not.
	Get(id string) (*Rule, error)

	// List returns rules newest first, optionally only the active ones.
	List(activeOnly bool) ([]*Rule, error)

	// SetActive flips a rule's Active flag and bumps UpdatedAt.
	SetActive(id string, active bool) error

	// Delete removes a rule. Combined rules built from it are unaffected.
	Delete(id string) error
}

// InMemoryRuleStore implements RuleStore using an in-memory map.
// Safe for concurrent use.
type InMemoryRuleStore struct {
	rules map[string]*storedRule
	seq   uint64
	mu    sync.RWMutex
}

// storedRule orders rules created within the same clock tick.
type storedRule struct {
	rule *Rule
	seq  uint64
}

// NewInMemoryRuleStore creates a new in-memory rule store
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{
		rules: make(map[string]*storedRule),
	}
}

// Add adds a new rule to the store. The store keeps its own copy.
func (s *InMemoryRuleStore) Add(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[rule.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRule, rule.ID)
	}

	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	stored := *rule
	s.seq++
	s.rules[rule.ID] = &storedRule{rule: &stored, seq: s.seq}
	return nil
}

// Get retrieves a rule by ID
func (s *InMemoryRuleStore) Get(id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sr, exists := s.rules[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	return sr.rule, nil
}

// List returns rules sorted by creation time, newest first.
func (s *InMemoryRuleStore) List(activeOnly bool) ([]*Rule, error) {
	s.mu.RLock()
	entries := make([]storedRule, 0, len(s.rules))
	for _, sr := range s.rules {
		if activeOnly && !sr.rule.Active {
			continue
		}
		entries = append(entries, *sr)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.rule.CreatedAt.Equal(b.rule.CreatedAt) {
			return a.rule.CreatedAt.After(b.rule.CreatedAt)
		}
		return a.seq > b.seq
	})

	list := make([]*Rule, len(entries))
	for i, sr := range entries {
		list[i] = sr.rule
	}
	return list, nil
}

// SetActive replaces the stored rule with a copy carrying the new flag, so
// rules already handed out never change underneath their holders.
func (s *InMemoryRuleStore) SetActive(id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sr, exists := s.rules[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}

	updated := *sr.rule
	updated.Active = active
	updated.UpdatedAt = time.Now().UTC()
	sr.rule = &updated
	return nil
}

// Delete removes a rule from the store
func (s *InMemoryRuleStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[id]; !exists {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}

	delete(s.rules, id)
	return nil
}
