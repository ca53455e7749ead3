package repository

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Shivanand-hulikatti/flock/internal/model"
)

// eventEntry guards one event. Writers hold mu and publish a fresh
// snapshot; readers only load the snapshot.
type eventEntry struct {
	mu   sync.Mutex
	snap atomic.Pointer[model.Event]
}

// MemoryEventRepository is a process-local event store. Each event has its
// own lock, so reservations on different events never contend.
type MemoryEventRepository struct {
	events sync.Map // id -> *eventEntry
}

// NewMemoryEventRepository constructs an empty MemoryEventRepository.
func NewMemoryEventRepository() *MemoryEventRepository {
	return &MemoryEventRepository{}
}

func (r *MemoryEventRepository) entry(id string) (*eventEntry, bool) {
	v, ok := r.events.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*eventEntry), true
}

// Create stores e. Reusing an ID returns ErrDuplicate.
func (r *MemoryEventRepository) Create(_ context.Context, e model.Event) (*model.Event, error) {
	ent := &eventEntry{}
	ent.snap.Store(cloneEvent(&e))
	if _, loaded := r.events.LoadOrStore(e.ID, ent); loaded {
		return nil, ErrDuplicate
	}
	return cloneEvent(&e), nil
}

func (r *MemoryEventRepository) Get(_ context.Context, id string) (*model.Event, error) {
	ent, ok := r.entry(id)
	if !ok {
		return nil, ErrNotFound
	}
	return cloneEvent(ent.snap.Load()), nil
}

func (r *MemoryEventRepository) List(_ context.Context) ([]model.Event, error) {
	return r.collect(func(*model.Event) bool { return true }), nil
}

func (r *MemoryEventRepository) ListByOwner(_ context.Context, ownerID string) ([]model.Event, error) {
	return r.collect(func(e *model.Event) bool { return e.OwnerID == ownerID }), nil
}

func (r *MemoryEventRepository) collect(keep func(*model.Event) bool) []model.Event {
	var out []model.Event
	r.events.Range(func(_, v any) bool {
		e := v.(*eventEntry).snap.Load()
		if keep(e) {
			out = append(out, *cloneEvent(e))
		}
		return true
	})
	slices.SortFunc(out, func(a, b model.Event) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

// UpdateMetadata applies patch under the event's lock if ownerID owns it.
func (r *MemoryEventRepository) UpdateMetadata(_ context.Context, ownerID, eventID string, patch model.EventPatch) (*model.Event, error) {
	ent, ok := r.entry(eventID)
	if !ok {
		return nil, ErrNotFound
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()

	cur := ent.snap.Load()
	if cur.OwnerID != ownerID {
		return nil, ErrUnauthorized
	}
	next := patch.Apply(*cloneEvent(cur))
	ent.snap.Store(&next)
	return cloneEvent(&next), nil
}

// CloseRegistration pulls the deadline back to at under the event's lock.
// A deadline already on or before at is kept.
func (r *MemoryEventRepository) CloseRegistration(_ context.Context, ownerID, eventID string, at time.Time) (*model.Event, error) {
	ent, ok := r.entry(eventID)
	if !ok {
		return nil, ErrNotFound
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()

	cur := ent.snap.Load()
	if cur.OwnerID != ownerID {
		return nil, ErrUnauthorized
	}
	if !cur.RegistrationDeadline.After(at) {
		return cloneEvent(cur), nil
	}
	next := cloneEvent(cur)
	next.RegistrationDeadline = at
	ent.snap.Store(next)
	return cloneEvent(next), nil
}

// TryReserveSlot increments the event's counter under that event's lock.
func (r *MemoryEventRepository) TryReserveSlot(_ context.Context, eventID string) error {
	ent, ok := r.entry(eventID)
	if !ok {
		return ErrNotFound
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()

	cur := ent.snap.Load()
	if cur.IsFull() {
		return ErrCapacityExceeded
	}
	next := *cur
	next.RegisteredCount++
	ent.snap.Store(&next)
	return nil
}

func (r *MemoryEventRepository) exists(id string) bool {
	_, ok := r.events.Load(id)
	return ok
}

func cloneEvent(e *model.Event) *model.Event {
	c := *e
	c.CustomFields = slices.Clone(e.CustomFields)
	return &c
}

// ledgerBucket holds the registrations of one event.
type ledgerBucket struct {
	mu      sync.Mutex
	byEmail map[string]string // registrant email -> registration id
	regs    atomic.Pointer[[]model.Registration]
}

// MemoryRegistrationRepository is a process-local registration ledger keyed
// per event.
type MemoryRegistrationRepository struct {
	events  *MemoryEventRepository
	buckets sync.Map // event id -> *ledgerBucket
	owners  sync.Map // registration id -> event id
}

// NewMemoryRegistrationRepository constructs a ledger whose inserts are
// checked against events, mirroring the foreign key of the SQL stores.
func NewMemoryRegistrationRepository(events *MemoryEventRepository) *MemoryRegistrationRepository {
	return &MemoryRegistrationRepository{events: events}
}

func (r *MemoryRegistrationRepository) bucket(eventID string) *ledgerBucket {
	if v, ok := r.buckets.Load(eventID); ok {
		return v.(*ledgerBucket)
	}
	b := &ledgerBucket{byEmail: make(map[string]string)}
	b.regs.Store(&[]model.Registration{})
	v, _ := r.buckets.LoadOrStore(eventID, b)
	return v.(*ledgerBucket)
}

func (r *MemoryRegistrationRepository) TryInsert(_ context.Context, reg model.Registration) error {
	if !r.events.exists(reg.EventID) {
		return ErrNotFound
	}
	b := r.bucket(reg.EventID)
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, dup := b.byEmail[reg.RegistrantEmail]; dup {
		return ErrDuplicate
	}
	b.byEmail[reg.RegistrantEmail] = reg.ID
	next := append(slices.Clone(*b.regs.Load()), reg)
	b.regs.Store(&next)
	r.owners.Store(reg.ID, reg.EventID)
	return nil
}

func (r *MemoryRegistrationRepository) Remove(_ context.Context, id string) error {
	v, ok := r.owners.Load(id)
	if !ok {
		return nil
	}
	b := r.bucket(v.(string))
	b.mu.Lock()
	defer b.mu.Unlock()

	next := slices.DeleteFunc(slices.Clone(*b.regs.Load()), func(reg model.Registration) bool {
		if reg.ID == id {
			delete(b.byEmail, reg.RegistrantEmail)
			return true
		}
		return false
	})
	b.regs.Store(&next)
	r.owners.Delete(id)
	return nil
}

func (r *MemoryRegistrationRepository) ListByEvent(_ context.Context, eventID string) ([]model.Registration, error) {
	v, ok := r.buckets.Load(eventID)
	if !ok {
		return nil, nil
	}
	return slices.Clone(*v.(*ledgerBucket).regs.Load()), nil
}
