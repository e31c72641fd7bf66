package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time assertion that the Postgres store satisfies the Gateway.
var _ Gateway = (*Postgres)(nil)

// Postgres is the pgx-backed Gateway implementation. All methods are safe
// for concurrent use; the pool handles its own synchronisation.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database at dsn, verifies the connection, and
// runs [Migrate] so the four tables exist.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Ping probes the database. Used by the readiness endpoint.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases all connections held by the pool.
func (p *Postgres) Close() { p.pool.Close() }

// CreateCall implements [Gateway].
func (p *Postgres) CreateCall(ctx context.Context, callID, streamID, callerPhone, restaurantPhone string) (CallRecord, error) {
	const op = "create call"
	if callID == "" {
		return CallRecord{}, invalidf(op, "missing call id")
	}
	if streamID == "" {
		return CallRecord{}, invalidf(op, "missing stream id")
	}

	const q = `
		INSERT INTO calls (call_id, stream_id, caller_phone, restaurant_phone, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, started_at`

	rec := CallRecord{
		CallID:          callID,
		StreamID:        streamID,
		CallerPhone:     callerPhone,
		RestaurantPhone: restaurantPhone,
		Status:          CallInProgress,
	}
	err := p.pool.QueryRow(ctx, q, callID, streamID, callerPhone, restaurantPhone, CallInProgress).
		Scan(&rec.ID, &rec.StartedAt)
	if err != nil {
		return CallRecord{}, classify(op, err)
	}
	return rec, nil
}

// CompleteCall implements [Gateway]. The status guard makes the terminal
// transition idempotent at the database level: a second terminal write
// matches no row and reports KindNotFound.
func (p *Postgres) CompleteCall(ctx context.Context, callID string, startedAt time.Time) error {
	const op = "complete call"
	if callID == "" {
		return invalidf(op, "missing call id")
	}

	seconds := int(time.Since(startedAt) / time.Second)
	if seconds < 0 {
		seconds = 0
	}

	const q = `
		UPDATE calls
		SET    status = $2, ended_at = now(), duration_seconds = $3
		WHERE  call_id = $1 AND status = $4`

	tag, err := p.pool.Exec(ctx, q, callID, CallCompleted, seconds, CallInProgress)
	if err != nil {
		return classify(op, err)
	}
	if tag.RowsAffected() == 0 {
		return &Error{Kind: KindNotFound, Op: op, Err: fmt.Errorf("no in_progress call %q", callID)}
	}
	return nil
}

// EscalateCall implements [Gateway].
func (p *Postgres) EscalateCall(ctx context.Context, callID string) error {
	return p.terminal(ctx, "escalate call", callID, CallEscalated, "")
}

// FailCall implements [Gateway].
func (p *Postgres) FailCall(ctx context.Context, callID, reason string) error {
	return p.terminal(ctx, "fail call", callID, CallFailed, reason)
}

func (p *Postgres) terminal(ctx context.Context, op, callID string, status CallStatus, reason string) error {
	if callID == "" {
		return invalidf(op, "missing call id")
	}

	const q = `
		UPDATE calls
		SET    status = $2, ended_at = now(),
		       failure_reason = NULLIF($3, '')
		WHERE  call_id = $1 AND status = $4`

	tag, err := p.pool.Exec(ctx, q, callID, status, reason, CallInProgress)
	if err != nil {
		return classify(op, err)
	}
	if tag.RowsAffected() == 0 {
		return &Error{Kind: KindNotFound, Op: op, Err: fmt.Errorf("no in_progress call %q", callID)}
	}
	return nil
}

// UpsertCustomer implements [Gateway].
func (p *Postgres) UpsertCustomer(ctx context.Context, phoneNumber, name string) (string, error) {
	const op = "upsert customer"
	if phoneNumber == "" {
		return "", invalidf(op, "missing phone number")
	}

	const q = `
		INSERT INTO customers (phone_number, name)
		VALUES ($1, $2)
		ON CONFLICT (phone_number) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`

	var id string
	if err := p.pool.QueryRow(ctx, q, phoneNumber, name).Scan(&id); err != nil {
		return "", classify(op, err)
	}
	return id, nil
}

// InsertOrder implements [Gateway].
func (p *Postgres) InsertOrder(ctx context.Context, o Order) (string, error) {
	const op = "insert order"
	if o.CustomerID == "" {
		return "", invalidf(op, "missing customer id")
	}

	const q = `
		INSERT INTO orders (restaurant_id, customer_id, call_id, status, total_amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	var id string
	err := p.pool.QueryRow(ctx, q, o.RestaurantID, o.CustomerID, o.CallID, o.Status, o.TotalAmount).
		Scan(&id)
	if err != nil {
		return "", classify(op, err)
	}
	return id, nil
}

// InsertOrderItems implements [Gateway]. The lines go out in a single batch
// round-trip; the first failed insert aborts the rest.
func (p *Postgres) InsertOrderItems(ctx context.Context, orderID string, items []OrderItem) error {
	const op = "insert order items"
	if orderID == "" {
		return invalidf(op, "missing order id")
	}
	if len(items) == 0 {
		return nil
	}

	const q = `
		INSERT INTO order_items (order_id, item_name, quantity, unit_price, customizations)
		VALUES ($1, $2, $3, $4, $5)`

	batch := &pgx.Batch{}
	for _, it := range items {
		custom := it.Customizations
		if custom == nil {
			custom = map[string]any{}
		}
		batch.Queue(q, orderID, it.ItemName, it.Quantity, it.UnitPrice, custom)
	}

	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range items {
		if _, err := results.Exec(); err != nil {
			return classify(op, err)
		}
	}
	return nil
}
