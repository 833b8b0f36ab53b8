// Package session holds per-caller USSD state between callbacks. Sessions
// are transient: they reference menu nodes by id only, live in memory, and
// are destroyed on terminal screens, cancel, or TTL expiry.
package session

import "time"

// Frame records one step of forward navigation so back edges can restore
// the collected-input list to what it was when the node was entered.
type Frame struct {
	NodeID string `json:"nodeId"`
	Inputs int    `json:"inputs"` // len(Session.Inputs) at entry
}

// Session is one caller's in-progress traversal of the menu tree.
type Session struct {
	ID         string    `json:"id"`    // carrier session id
	Phone      string    `json:"phone"` // caller MSISDN
	NodeID     string    `json:"nodeId"`
	Inputs     []string  `json:"inputs"`  // captured free-text inputs, in order
	History    []Frame   `json:"history"` // forward path from root
	Handled    int       `json:"handled"` // cumulative input segments consumed (replay detection)
	CreatedAt  time.Time `json:"createdAt"`
	LastActive time.Time `json:"lastActive"`
}

// Clone returns a deep copy with detached slices, so the copy and the
// original can be read and mutated independently.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Inputs = append([]string(nil), s.Inputs...)
	cp.History = append([]Frame(nil), s.History...)
	return &cp
}

// Deadline returns the instant the session expires.
func (s *Session) Deadline(ttl time.Duration) time.Time {
	return s.LastActive.Add(ttl)
}

// Expired reports whether the session is past its TTL at now.
func (s *Session) Expired(ttl time.Duration, now time.Time) bool {
	return now.After(s.Deadline(ttl))
}

// Enter moves the session forward to nodeID, pushing a history frame.
func (s *Session) Enter(nodeID string) {
	s.History = append(s.History, Frame{NodeID: s.NodeID, Inputs: len(s.Inputs)})
	s.NodeID = nodeID
}

// GoBack moves the session to nodeID along a back edge, truncating inputs
// collected since that node was last on the forward path.
func (s *Session) GoBack(nodeID string) {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].NodeID == nodeID {
			s.Inputs = s.Inputs[:s.History[i].Inputs]
			s.History = s.History[:i]
			break
		}
	}
	s.NodeID = nodeID
}
