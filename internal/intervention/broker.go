package intervention

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"goalseek/pkg/interfaces"
	"goalseek/pkg/types"
)

// Recorder persists the audit trail of raised interventions.
// Best-effort: recording never blocks or fails a resolution.
type Recorder interface {
	CreateIntervention(ctx context.Context, record *types.InterventionRecord) error
	UpdateIntervention(ctx context.Context, record *types.InterventionRecord) error
}

// pending is one unresolved decision point
type pending struct {
	owner         interfaces.Connection // lookup only; the socket may be gone by resolution time
	ownerUserID   string                // snapshot at creation so HTTP resolution survives a disconnect
	correlationID string
	goalID        string
	payload       *types.CalcRequest
	result        *types.CalcResult
	expiresAt     time.Time
}

// Resolved is the data a successful resolution hands back to the caller
// for delivery. The broker itself never sends network messages.
type Resolved struct {
	Owner         interfaces.Connection
	OwnerUserID   string
	CorrelationID string
	GoalID        string
	Result        *types.CalcResult
}

// Broker owns the set of pending interventions and their exactly-once
// resolution protocol across the socket and HTTP channels.
// ARCHITECTURAL DISCOVERY: A single mutex around the check-then-remove in
// Resolve is what makes concurrent resolutions yield exactly one winner.
// Expiry is lazy: entries are evicted on first access after their deadline,
// never by a background sweep, so an entry nobody revisits lives until then.
type Broker struct {
	mu       sync.Mutex
	pendings map[string]*pending
	ttl      time.Duration
	recorder Recorder // optional
}

// NewBroker creates a broker whose interventions expire after ttl
func NewBroker(ttl time.Duration, recorder Recorder) *Broker {
	return &Broker{
		pendings: make(map[string]*pending),
		ttl:      ttl,
		recorder: recorder,
	}
}

// Create registers a new pending intervention and returns its id.
// FUNCTIONAL DISCOVERY: UUIDv4 generation guarantees no two concurrently
// pending interventions share an id without any coordination
func (b *Broker) Create(owner interfaces.Connection, correlationID, goalID string, payload *types.CalcRequest, result *types.CalcResult, verdict types.InterventionVerdict) string {
	id := uuid.New().String()

	entry := &pending{
		owner:         owner,
		ownerUserID:   owner.Identity().UserID,
		correlationID: correlationID,
		goalID:        goalID,
		payload:       payload,
		result:        result,
		expiresAt:     time.Now().Add(b.ttl),
	}

	b.mu.Lock()
	b.pendings[id] = entry
	b.mu.Unlock()

	b.record(&types.InterventionRecord{
		ID:        id,
		GoalID:    goalID,
		Type:      verdict.Type,
		Reason:    verdict.Reason,
		Status:    "pending",
		CreatedAt: time.Now(),
	}, false)

	return id
}

// Resolve consumes a pending intervention. Checks run in order: existence,
// expiry (lazy eviction), ownership; all passing, the entry is removed
// atomically so a concurrent second attempt fails at the existence check.
func (b *Broker) Resolve(id string, requester types.Identity, choice, reason string) (*Resolved, error) {
	b.mu.Lock()

	entry, exists := b.pendings[id]
	if !exists {
		b.mu.Unlock()
		return nil, ErrNotFound
	}

	if time.Now().After(entry.expiresAt) {
		delete(b.pendings, id)
		b.mu.Unlock()
		log.Printf("Intervention %s expired before resolution", id)
		b.record(&types.InterventionRecord{ID: id, Status: "expired"}, true)
		return nil, ErrExpired
	}

	if entry.ownerUserID != requester.UserID {
		b.mu.Unlock()
		return nil, ErrNotOwner
	}

	delete(b.pendings, id)
	b.mu.Unlock()

	b.record(&types.InterventionRecord{
		ID:         id,
		Status:     "resolved",
		Choice:     choice,
		ResolvedBy: requester.UserID,
		ResolvedAt: time.Now(),
	}, true)

	return &Resolved{
		Owner:         entry.owner,
		OwnerUserID:   entry.ownerUserID,
		CorrelationID: entry.correlationID,
		GoalID:        entry.goalID,
		Result:        entry.result,
	}, nil
}

// CancelByCorrelation removes any pending intervention created for the given
// correlation id. Idempotent: cancelling nothing is not an error.
func (b *Broker) CancelByCorrelation(correlationID string) bool {
	b.mu.Lock()
	var cancelled string
	for id, entry := range b.pendings {
		if entry.correlationID == correlationID {
			delete(b.pendings, id)
			cancelled = id
			break
		}
	}
	b.mu.Unlock()

	if cancelled != "" {
		b.record(&types.InterventionRecord{ID: cancelled, Status: "expired"}, true)
		return true
	}
	return false
}

// Clear drops every pending intervention. Used only for full shutdown.
func (b *Broker) Clear() {
	b.mu.Lock()
	b.pendings = make(map[string]*pending)
	b.mu.Unlock()
}

// PendingCount returns the number of tracked interventions.
// Lazy expiry means this is an upper bound: expired-but-unaccessed entries
// still count until something touches them.
func (b *Broker) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pendings)
}

// record persists the audit record without ever blocking the caller
func (b *Broker) record(rec *types.InterventionRecord, update bool) {
	if b.recorder == nil {
		return
	}
	go func() {
		var err error
		if update {
			err = b.recorder.UpdateIntervention(context.Background(), rec)
		} else {
			err = b.recorder.CreateIntervention(context.Background(), rec)
		}
		if err != nil {
			log.Printf("Failed to record intervention %s: %v", rec.ID, err)
		}
	}()
}
