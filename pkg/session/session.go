// Package session stores short-term conversation memory: sticky entity slots
// and the last classified intent per conversation id. Stores serialize
// read-modify-write per conversation id; different conversations never
// contend.
package session

import (
	"context"
	"time"
)

// Identifier is a remembered shipment identifier together with the kind it
// was extracted as, so a later turn can rebuild a correctly-typed filter.
type Identifier struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// Snapshot preserves the slots cleared by a topic shift for one turn, so a
// follow-up asking to keep the previous context can restore them.
type Snapshot struct {
	Identifiers []Identifier `json:"identifiers"`
	Question    string       `json:"question"`
	Intent      string       `json:"intent"`
}

// Slots is the per-conversation short-term state. Lifecycle: created on the
// first turn, updated after each turn, reset on a detected topic shift, and
// expired by the store's TTL.
type Slots struct {
	Identity        string       `json:"identity,omitempty"`
	LastIntent      string       `json:"last_intent"`
	LastSubIntent   string       `json:"last_sub_intent"`
	LastIdentifiers []Identifier `json:"last_identifiers"`
	LastQuestion    string       `json:"last_question"`
	Turns           int          `json:"turns"`
	Pending         *Snapshot    `json:"pending,omitempty"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// IdentifierValues returns just the identifier values, in stored order.
func (s Slots) IdentifierValues() []string {
	if len(s.LastIdentifiers) == 0 {
		return nil
	}
	values := make([]string, len(s.LastIdentifiers))
	for i, id := range s.LastIdentifiers {
		values[i] = id.Value
	}
	return values
}

// Reset clears the sticky slots after a topic shift, parking the previous
// values under Pending for one turn.
func (s Slots) Reset() Slots {
	pending := &Snapshot{
		Identifiers: s.LastIdentifiers,
		Question:    s.LastQuestion,
		Intent:      s.LastIntent,
	}
	return Slots{
		Identity:  s.Identity,
		Turns:     s.Turns,
		Pending:   pending,
		UpdatedAt: s.UpdatedAt,
	}
}

// Store is the session store capability. Update applies fn atomically with
// respect to other updates of the same conversation id; implementations use
// per-key locking or compare-and-swap, never a single global lock.
type Store interface {
	Get(ctx context.Context, conversationID string) (Slots, bool, error)
	Update(ctx context.Context, conversationID string, fn func(Slots) Slots) error
	Delete(ctx context.Context, conversationID string) error
}
