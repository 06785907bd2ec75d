package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/damagable/internal/journal"
)

const insertEvent = `INSERT INTO damage_events (run, kind, entity_id, template, base, final, health, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// ErrEventsDropped is returned when the database rejected buffered events. The
// rejected events are discarded so they cannot block later writes.
var ErrEventsDropped = errors.New("journal events rejected and dropped")

// EventRepository persists journal events to the damage_events table.
// Events are buffered and written in batches of batchSize; Flush writes
// whatever is pending. Safe for concurrent use.
type EventRepository struct {
	db        *pgxpool.Pool
	batchSize int

	mu      sync.Mutex
	pending []journal.Event
}

// NewEventRepository creates an EventRepository backed by the given pool.
// A batchSize below 1 writes every event immediately.
//
// Precondition: db must be a valid, open connection pool.
func NewEventRepository(db *pgxpool.Pool, batchSize int) *EventRepository {
	if batchSize < 1 {
		batchSize = 1
	}
	return &EventRepository{db: db, batchSize: batchSize}
}

// Record buffers e and writes the buffer once it holds batchSize events.
//
// Postcondition: Events that failed to reach the database are kept for the next
// Flush; events the database rejected are dropped and reported with ErrEventsDropped.
func (r *EventRepository) Record(ctx context.Context, e journal.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, e)
	if len(r.pending) < r.batchSize {
		return nil
	}
	return r.flushLocked(ctx)
}

// Flush writes all buffered events in a single batch.
func (r *EventRepository) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked(ctx)
}

// Pending returns the number of buffered events.
func (r *EventRepository) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *EventRepository) flushLocked(ctx context.Context) error {
	if len(r.pending) == 0 {
		return nil
	}
	err := r.writeBatch(ctx, r.pending)
	if err == nil {
		r.pending = r.pending[:0]
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	return r.salvageLocked(ctx, err)
}

func (r *EventRepository) writeBatch(ctx context.Context, events []journal.Event) error {
	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(insertEvent, e.Run, string(e.Kind), e.EntityID, e.Template, e.Base, e.Final, e.Health, e.At)
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning journal batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("writing %d journal events: %w", len(events), err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing journal batch: %w", err)
	}
	return nil
}

// salvageLocked writes the pending events one at a time after the database
// rejected the batch. Rejected events are dropped; events that fail for any
// other reason stay pending.
func (r *EventRepository) salvageLocked(ctx context.Context, batchErr error) error {
	var (
		kept    []journal.Event
		dropped int
		first   error
	)
	for _, e := range r.pending {
		_, err := r.db.Exec(ctx, insertEvent, e.Run, string(e.Kind), e.EntityID, e.Template, e.Base, e.Final, e.Health, e.At)
		if err == nil {
			continue
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			dropped++
			if first == nil {
				first = err
			}
			continue
		}
		kept = append(kept, e)
	}
	r.pending = append(r.pending[:0], kept...)
	if dropped > 0 {
		return fmt.Errorf("%w: %d of the batch: %w", ErrEventsDropped, dropped, first)
	}
	if len(kept) > 0 {
		return batchErr
	}
	return nil
}

// ListByEntity returns the persisted events for entityID, oldest first.
//
// Postcondition: Returns an empty slice when the entity has no events.
func (r *EventRepository) ListByEntity(ctx context.Context, entityID string) ([]journal.Event, error) {
	return r.list(ctx, `SELECT run, kind, entity_id, template, base, final, health, occurred_at
		FROM damage_events WHERE entity_id = $1 ORDER BY id`, entityID)
}

// ListByRun returns the persisted events of one simulation run, oldest first.
func (r *EventRepository) ListByRun(ctx context.Context, run string) ([]journal.Event, error) {
	return r.list(ctx, `SELECT run, kind, entity_id, template, base, final, health, occurred_at
		FROM damage_events WHERE run = $1 ORDER BY id`, run)
}

func (r *EventRepository) list(ctx context.Context, query string, arg string) ([]journal.Event, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("querying journal events: %w", err)
	}
	defer rows.Close()

	events := []journal.Event{}
	for rows.Next() {
		var (
			e    journal.Event
			kind string
		)
		if err := rows.Scan(&e.Run, &kind, &e.EntityID, &e.Template, &e.Base, &e.Final, &e.Health, &e.At); err != nil {
			return nil, fmt.Errorf("scanning journal event: %w", err)
		}
		e.Kind = journal.Kind(kind)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal events: %w", err)
	}
	return events, nil
}
