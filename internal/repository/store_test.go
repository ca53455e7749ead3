package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/flock/internal/database"
	"github.com/Shivanand-hulikatti/flock/internal/model"
)

type eventStore interface {
	Create(ctx context.Context, e model.Event) (*model.Event, error)
	Get(ctx context.Context, id string) (*model.Event, error)
	List(ctx context.Context) ([]model.Event, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.Event, error)
	UpdateMetadata(ctx context.Context, ownerID, eventID string, patch model.EventPatch) (*model.Event, error)
	CloseRegistration(ctx context.Context, ownerID, eventID string, at time.Time) (*model.Event, error)
	TryReserveSlot(ctx context.Context, eventID string) error
}

type ledger interface {
	TryInsert(ctx context.Context, reg model.Registration) error
	Remove(ctx context.Context, id string) error
	ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error)
}

type backend func(t *testing.T) (eventStore, ledger)

func memoryBackend(t *testing.T) (eventStore, ledger) {
	events := NewMemoryEventRepository()
	return events, NewMemoryRegistrationRepository(events)
}

func openSQLite(t *testing.T) (writeDB, readDB *sql.DB) {
	t.Helper()
	ctx := context.Background()
	writeDB, readDB, err := database.OpenSQLitePair(ctx, filepath.Join(t.TempDir(), "flock.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = readDB.Close()
		_ = writeDB.Close()
	})
	require.NoError(t, database.MigrateSQLite(ctx, writeDB))
	return writeDB, readDB
}

func sqliteBackend(t *testing.T) (eventStore, ledger) {
	writeDB, readDB := openSQLite(t)
	return NewSQLiteEventRepository(writeDB, readDB), NewSQLiteRegistrationRepository(writeDB, readDB)
}

// postgresBackend runs against TEST_DATABASE_URL when it is set.
func postgresBackend(t *testing.T) (eventStore, ledger) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.MigratePostgres(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE registrations, events`)
	require.NoError(t, err)
	return NewEventRepository(pool), NewRegistrationRepository(pool)
}

var backends = map[string]backend{
	"memory":   memoryBackend,
	"sqlite":   sqliteBackend,
	"postgres": postgresBackend,
}

func newEvent(owner string, capacity int) model.Event {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return model.Event{
		ID:                   uuid.NewString(),
		EventName:            "Go Meetup",
		Description:          "talks",
		Venue:                "Hall A",
		Capacity:             capacity,
		RegistrationDeadline: now.Add(24 * time.Hour),
		EventDate:            now.Add(48 * time.Hour),
		OwnerID:              owner,
		CustomFields:         []model.CustomField{{Name: "diet", Type: "text", Value: "veg"}},
		CreatedAt:            now,
	}
}

func newRegistration(eventID, email string) model.Registration {
	return model.Registration{
		ID:              uuid.NewString(),
		EventID:         eventID,
		RegistrantEmail: email,
		Name:            "Ann",
		SubmittedAt:     time.Now().UTC(),
		Status:          model.StatusConfirmed,
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, events eventStore, regs ledger)) {
	for name, b := range backends {
		t.Run(name, func(t *testing.T) {
			events, regs := b(t)
			fn(t, events, regs)
		})
	}
}

func TestEventStore_CreateGet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, events eventStore, _ ledger) {
		ctx := context.Background()
		e := newEvent("owner-a", 3)
		_, err := events.Create(ctx, e)
		require.NoError(t, err)

		got, err := events.Get(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, e.EventName, got.EventName)
		assert.Equal(t, 3, got.Capacity)
		assert.Equal(t, 0, got.RegisteredCount)
		assert.Equal(t, "owner-a", got.OwnerID)
		assert.True(t, e.RegistrationDeadline.Equal(got.RegistrationDeadline))
		assert.Equal(t, e.CustomFields, got.CustomFields)

		_, err = events.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestEventStore_ListByOwner(t *testing.T) {
	forEachBackend(t, func(t *testing.T, events eventStore, _ ledger) {
		ctx := context.Background()
		first := newEvent("owner-a", 1)
		second := newEvent("owner-a", 1)
		second.CreatedAt = first.CreatedAt.Add(time.Second)
		other := newEvent("owner-b", 1)
		for _, e := range []model.Event{first, second, other} {
			_, err := events.Create(ctx, e)
			require.NoError(t, err)
		}

		mine, err := events.ListByOwner(ctx, "owner-a")
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, second.ID, mine[0].ID, "newest first")

		all, err := events.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}

func TestEventStore_UpdateMetadata(t *testing.T) {
	forEachBackend(t, func(t *testing.T, events eventStore, _ ledger) {
		ctx := context.Background()
		e := newEvent("owner-a", 2)
		_, err := events.Create(ctx, e)
		require.NoError(t, err)

		name := "Renamed"
		fields := []model.CustomField{{Name: "size", Type: "text", Value: "L"}}
		got, err := events.UpdateMetadata(ctx, "owner-a", e.ID, model.EventPatch{EventName: &name, CustomFields: &fields})
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.EventName)
		assert.Equal(t, "Hall A", got.Venue, "unpatched fields are kept")
		assert.Equal(t, fields, got.CustomFields)

		other := "Hijacked"
		_, err = events.UpdateMetadata(ctx, "owner-b", e.ID, model.EventPatch{EventName: &other})
		assert.ErrorIs(t, err, ErrUnauthorized)

		after, err := events.Get(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", after.EventName)

		_, err = events.UpdateMetadata(ctx, "owner-a", "missing", model.EventPatch{EventName: &name})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestEventStore_UpdateMetadataNeverTouchesCounter(t *testing.T) {
	forEachBackend(t, func(t *testing.T, events eventStore, _ ledger) {
		ctx := context.Background()
		e := newEvent("owner-a", 2)
		_, err := events.Create(ctx, e)
		require.NoError(t, err)
		require.NoError(t, events.TryReserveSlot(ctx, e.ID))

		count, capacity := 0, 50
		got, err := events.UpdateMetadata(ctx, "owner-a", e.ID, model.EventPatch{RegisteredCount: &count, Capacity: &capacity})
		require.NoError(t, err)
		assert.Equal(t, 1, got.RegisteredCount)
		assert.Equal(t, 2, got.Capacity)
	})
}

func TestEventStore_CloseRegistration(t *testing.T) {
	forEachBackend(t, func(t *testing.T, events eventStore, _ ledger) {
		ctx := context.Background()
		e := newEvent("owner-a", 2)
		_, err := events.Create(ctx, e)
		require.NoError(t, err)
		require.NoError(t, events.TryReserveSlot(ctx, e.ID))

		at := time.Now().UTC().Truncate(time.Microsecond)
		got, err := events.CloseRegistration(ctx, "owner-a", e.ID, at)
		require.NoError(t, err)
		assert.True(t, got.RegistrationDeadline.Equal(at), "deadline %v, want %v", got.RegistrationDeadline, at)
		assert.Equal(t, 1, got.RegisteredCount)
		assert.Equal(t, "Go Meetup", got.EventName)

		_, err = events.CloseRegistration(ctx, "owner-b", e.ID, at)
		assert.ErrorIs(t, err, ErrUnauthorized)
		_, err = events.CloseRegistration(ctx, "owner-a", "missing", at)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestEventStore_CloseRegistrationNeverExtendsDeadline(t *testing.T) {
	forEachBackend(t, func(t *testing.T, events eventStore, _ ledger) {
		ctx := context.Background()
		e := newEvent("owner-a", 2)
		_, err := events.Create(ctx, e)
		require.NoError(t, err)

		earlier := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
		_, err = events.UpdateMetadata(ctx, "owner-a", e.ID, model.EventPatch{RegistrationDeadline: &earlier})
		require.NoError(t, err)

		got, err := events.CloseRegistration(ctx, "owner-a", e.ID, time.Now().UTC())
		require.NoError(t, err)
		assert.True(t, got.RegistrationDeadline.Equal(earlier), "deadline %v, want %v", got.RegistrationDeadline, earlier)

		stored, err := events.Get(ctx, e.ID)
		require.NoError(t, err)
		assert.True(t, stored.RegistrationDeadline.Equal(earlier))
	})
}

func TestSQLiteEventRepository_GetDuringOpenWrite(t *testing.T) {
	writeDB, readDB := openSQLite(t)
	events := NewSQLiteEventRepository(writeDB, readDB)
	ctx := context.Background()

	busy, quiet := newEvent("owner-a", 2), newEvent("owner-b", 2)
	for _, e := range []model.Event{busy, quiet} {
		_, err := events.Create(ctx, e)
		require.NoError(t, err)
	}

	tx, err := writeDB.BeginTx(ctx, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback() })
	_, err = tx.ExecContext(ctx, `UPDATE events SET registered_count = 1 WHERE id = ?`, busy.ID)
	require.NoError(t, err)

	readCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	got, err := events.Get(readCtx, quiet.ID)
	require.NoError(t, err)
	assert.Equal(t, quiet.ID, got.ID)

	list, err := events.List(readCtx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestEventStore_TryReserveSlot(t *testing.T) {
	forEachBackend(t, func(t *testing.T, events eventStore, _ ledger) {
		ctx := context.Background()
		e := newEvent("owner-a", 2)
		_, err := events.Create(ctx, e)
		require.NoError(t, err)

		require.NoError(t, events.TryReserveSlot(ctx, e.ID))
		require.NoError(t, events.TryReserveSlot(ctx, e.ID))
		assert.ErrorIs(t, events.TryReserveSlot(ctx, e.ID), ErrCapacityExceeded)
		assert.ErrorIs(t, events.TryReserveSlot(ctx, "missing"), ErrNotFound)

		got, err := events.Get(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.RegisteredCount)
	})
}

func TestEventStore_TryReserveSlotConcurrent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, events eventStore, _ ledger) {
		ctx := context.Background()
		const capacity, callers = 5, 40
		e := newEvent("owner-a", capacity)
		_, err := events.Create(ctx, e)
		require.NoError(t, err)

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			reserved int
			full     int
		)
		for range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := events.TryReserveSlot(ctx, e.ID)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					reserved++
				case assert.ErrorIs(t, err, ErrCapacityExceeded):
					full++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, capacity, reserved)
		assert.Equal(t, callers-capacity, full)
		got, err := events.Get(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, capacity, got.RegisteredCount)
	})
}

func TestLedger_TryInsertDeduplicates(t *testing.T) {
	forEachBackend(t, func(t *testing.T, events eventStore, regs ledger) {
		ctx := context.Background()
		e := newEvent("owner-a", 5)
		_, err := events.Create(ctx, e)
		require.NoError(t, err)

		require.NoError(t, regs.TryInsert(ctx, newRegistration(e.ID, "a@x.com")))
		assert.ErrorIs(t, regs.TryInsert(ctx, newRegistration(e.ID, "a@x.com")), ErrDuplicate)
		require.NoError(t, regs.TryInsert(ctx, newRegistration(e.ID, "b@x.com")))

		list, err := regs.ListByEvent(ctx, e.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "a@x.com", list[0].RegistrantEmail)
		assert.Equal(t, model.StatusConfirmed, list[0].Status)
	})
}

func TestLedger_TryInsertUnknownEvent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, _ eventStore, regs ledger) {
		err := regs.TryInsert(context.Background(), newRegistration("missing", "a@x.com"))
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestLedger_RemoveFreesKey(t *testing.T) {
	forEachBackend(t, func(t *testing.T, events eventStore, regs ledger) {
		ctx := context.Background()
		e := newEvent("owner-a", 5)
		_, err := events.Create(ctx, e)
		require.NoError(t, err)

		reg := newRegistration(e.ID, "a@x.com")
		require.NoError(t, regs.TryInsert(ctx, reg))
		require.NoError(t, regs.Remove(ctx, reg.ID))

		list, err := regs.ListByEvent(ctx, e.ID)
		require.NoError(t, err)
		assert.Empty(t, list)

		assert.NoError(t, regs.TryInsert(ctx, newRegistration(e.ID, "a@x.com")))
	})
}

func TestLedger_TryInsertConcurrentSameKey(t *testing.T) {
	forEachBackend(t, func(t *testing.T, events eventStore, regs ledger) {
		ctx := context.Background()
		e := newEvent("owner-a", 5)
		_, err := events.Create(ctx, e)
		require.NoError(t, err)

		const callers = 20
		results := make([]error, callers)
		var wg sync.WaitGroup
		for i := range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i] = regs.TryInsert(ctx, newRegistration(e.ID, "same@x.com"))
			}()
		}
		wg.Wait()

		inserted := 0
		for i, err := range results {
			if err == nil {
				inserted++
				continue
			}
			assert.ErrorIs(t, err, ErrDuplicate, fmt.Sprintf("caller %d", i))
		}
		assert.Equal(t, 1, inserted)
	})
}
