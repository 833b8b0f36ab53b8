// Package alert sends proactive daily messages (weather, crop tips) to
// farmers who opted in by SMS. Subscriptions persist across restarts;
// deliveries go through the outbox like any other outbound message.
package alert

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Subscription kinds.
const (
	KindWeather = "WEATHER"
	KindTip     = "TIP"
)

// Subscription is one phone's standing request for a daily alert.
type Subscription struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone"`
	Kind      string    `json:"kind"`  // KindWeather | KindTip
	Topic     string    `json:"topic"` // region or crop
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists subscriptions to a JSON file (atomic write).
type Store struct {
	mu   sync.Mutex
	path string
	subs map[string]*Subscription
}

func NewStore(path string) *Store {
	return &Store{path: path, subs: make(map[string]*Subscription)}
}

// Load reads subscriptions from disk.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read subscriptions: %w", err)
	}
	var subs map[string]*Subscription
	if err := json.Unmarshal(raw, &subs); err != nil {
		return fmt.Errorf("parse subscriptions: %w", err)
	}
	if subs == nil { // file holding literal "null"
		subs = make(map[string]*Subscription)
	}
	s.subs = subs
	return nil
}

func (s *Store) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(s.subs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal subscriptions: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("write subscriptions: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Add records a subscription, replacing any existing one of the same kind
// for the phone (one weather region, one tip crop per subscriber).
func (s *Store) Add(phone, kind, topic string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sub := range s.subs {
		if sub.Phone == phone && sub.Kind == kind {
			delete(s.subs, id)
		}
	}
	sub := &Subscription{
		ID:        uuid.NewString(),
		Phone:     phone,
		Kind:      kind,
		Topic:     topic,
		CreatedAt: time.Now(),
	}
	s.subs[sub.ID] = sub
	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	return sub, nil
}

// RemoveByPhone drops every subscription for a phone and returns how many
// were removed.
func (s *Store) RemoveByPhone(phone string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sub := range s.subs {
		if sub.Phone == phone {
			delete(s.subs, id)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, s.saveLocked()
}

// List returns a snapshot of all subscriptions.
func (s *Store) List() []Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, *sub)
	}
	return out
}
