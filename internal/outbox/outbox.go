// Package outbox is the durable queue for outbound SMS (replies and
// proactive alerts). Messages survive restarts via a JSON spool file and
// are delivered at-least-once with bounded exponential backoff.
package outbox

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the delivery lifecycle state of a message.
type Status string

const (
	StatusPending         Status = "pending"
	StatusSent            Status = "sent"
	StatusFailedPermanent Status = "failed-permanent"
)

// Message is one outbound SMS. Attempts only ever grows; a message reaches
// failed-permanent solely by exceeding the retry ceiling and is then kept
// for audit, never silently dropped.
type Message struct {
	ID            string    `json:"id"`
	To            string    `json:"to"`
	Body          string    `json:"body"`
	Status        Status    `json:"status"`
	Attempts      int       `json:"attempts"`
	NextAttemptAt time.Time `json:"nextAttemptAt"`
	LastError     string    `json:"lastError,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Store holds outbox messages, persisted to a JSON spool file with an
// atomic write. In-flight claims are tracked in memory only, so a crash
// mid-attempt leaves the message pending and it is retried on restart.
type Store struct {
	mu       sync.Mutex
	path     string
	messages map[string]*Message
	inflight map[string]bool

	now func() time.Time // test hook
}

func NewStore(path string) *Store {
	return &Store{
		path:     path,
		messages: make(map[string]*Message),
		inflight: make(map[string]bool),
		now:      time.Now,
	}
}

// Load reads the spool file from disk.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read outbox spool: %w", err)
	}
	var messages map[string]*Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return fmt.Errorf("parse outbox spool: %w", err)
	}
	if messages == nil { // spool file holding literal "null"
		messages = make(map[string]*Message)
	}
	s.messages = messages
	return nil
}

// Save persists the spool to disk (atomic write).
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(s.messages, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal outbox spool: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("write outbox spool: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Enqueue adds a pending message due immediately and persists the spool.
func (s *Store) Enqueue(to, body string) *Message {
	now := s.now()
	m := &Message{
		ID:            uuid.NewString(),
		To:            to,
		Body:          body,
		Status:        StatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.mu.Lock()
	s.messages[m.ID] = m
	err := s.saveLocked()
	s.mu.Unlock()

	if err != nil {
		// Delivery still proceeds from memory; durability degrades until
		// the next successful save.
		slog.Warn("outbox spool save failed", "id", m.ID, "error", err)
	}
	return m
}

// ClaimDue returns up to limit pending messages whose next attempt is due,
// marking each in-flight so concurrent dispatch ticks never double-send
// the same message.
func (s *Store) ClaimDue(limit int) []*Message {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*Message
	for _, m := range s.messages {
		if len(due) >= limit {
			break
		}
		if m.Status != StatusPending || s.inflight[m.ID] || m.NextAttemptAt.After(now) {
			continue
		}
		s.inflight[m.ID] = true
		due = append(due, m)
	}
	return due
}

// MarkSent records a successful delivery and releases the claim.
func (s *Store) MarkSent(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inflight, id)
	m, ok := s.messages[id]
	if !ok {
		return
	}
	m.Status = StatusSent
	m.Attempts++
	m.UpdatedAt = s.now()
	if err := s.saveLocked(); err != nil {
		slog.Warn("outbox spool save failed", "id", id, "error", err)
	}
}

// MarkFailed records a failed attempt, schedules the retry with
// exponential backoff, and moves the message to failed-permanent once the
// ceiling is reached.
func (s *Store) MarkFailed(id, cause string, maxAttempts int, backoffBase, backoffCap time.Duration) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inflight, id)
	m, ok := s.messages[id]
	if !ok {
		return
	}
	m.Attempts++
	m.LastError = cause
	m.UpdatedAt = now
	if m.Attempts >= maxAttempts {
		m.Status = StatusFailedPermanent
	} else {
		backoff := backoffBase << (m.Attempts - 1)
		if backoff > backoffCap {
			backoff = backoffCap
		}
		m.NextAttemptAt = now.Add(backoff)
	}
	if err := s.saveLocked(); err != nil {
		slog.Warn("outbox spool save failed", "id", id, "error", err)
	}
}

// Get returns a copy of a message by id.
func (s *Store) Get(id string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return Message{}, false
	}
	return *m, true
}

// List returns a snapshot of all messages.
func (s *Store) List() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, *m)
	}
	return out
}
