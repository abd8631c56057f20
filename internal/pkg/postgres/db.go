package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/airenas/vidsearch/internal/pkg/messages"
	"github.com/airenas/vidsearch/internal/pkg/persistence"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"
)

// DB provides operations with postgresql
type DB struct {
	pool *pgxpool.Pool
	gc   *gue.Client
}

// NewDB creates DB instance
func NewDB(pool *pgxpool.Pool) (*DB, error) {
	if pool == nil {
		return nil, fmt.Errorf("no pool")
	}
	gc, err := gue.NewClient(pgxv5.NewConnPool(pool))
	if err != nil {
		return nil, fmt.Errorf("can't init gue: %w", err)
	}
	return &DB{pool: pool, gc: gc}, nil
}

const wfFields = `id, input, phase, processing_state, polls, errors, error, documents,
	started, expires, created, updated, version`

// InsertWorkflow inserts a new workflow and enqueues msgs in one transaction,
// returns false if the ID already exists
func (db *DB) InsertWorkflow(ctx context.Context, wf *persistence.Workflow, msgs ...*messages.Envelope) (bool, error) {
	in, err := json.Marshal(wf.Input)
	if err != nil {
		return false, fmt.Errorf("can't marshal input: %w", err)
	}
	now := time.Now()
	inserted := false
	err = db.inTx(ctx, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `INSERT INTO workflows(`+wfFields+`)
	VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11, 1)
	ON CONFLICT (id) DO NOTHING`, wf.ID, in, wf.Phase, wf.ProcessingState, wf.Polls, wf.Errors, wf.Error,
			wf.Documents, wf.Started, wf.Expires, now)
		if err != nil {
			return fmt.Errorf("can't insert workflow: %w", err)
		}
		if cmd.RowsAffected() != 1 {
			return nil
		}
		inserted = true
		return db.enqueue(ctx, tx, msgs)
	})
	if err != nil || !inserted {
		return false, err
	}
	wf.Created, wf.Updated, wf.Version = now, now, 1
	return true, nil
}

// LoadWorkflow loads workflow, returns nil if not found
func (db *DB) LoadWorkflow(ctx context.Context, id string) (*persistence.Workflow, error) {
	var res persistence.Workflow
	var in []byte
	err := db.pool.QueryRow(ctx, `SELECT `+wfFields+` FROM workflows WHERE id = $1`, id).
		Scan(&res.ID, &in, &res.Phase, &res.ProcessingState, &res.Polls, &res.Errors, &res.Error, &res.Documents,
			&res.Started, &res.Expires, &res.Created, &res.Updated, &res.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load workflow: %w", err)
	}
	if err := json.Unmarshal(in, &res.Input); err != nil {
		return nil, fmt.Errorf("can't unmarshal input: %w", err)
	}
	return &res, nil
}

// UpdateWorkflow saves the workflow state if nobody changed it since load,
// msgs are enqueued in the same transaction
func (db *DB) UpdateWorkflow(ctx context.Context, wf *persistence.Workflow, msgs ...*messages.Envelope) error {
	now := time.Now()
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `UPDATE workflows SET
	phase = $3,
	processing_state = $4,
	polls = $5,
	errors = $6,
	error = $7,
	documents = $8,
	started = $9,
	expires = $10,
	updated = $11,
	version = $2 + 1
	WHERE id = $1 AND version = $2`, wf.ID, wf.Version, wf.Phase, wf.ProcessingState, wf.Polls, wf.Errors,
			wf.Error, wf.Documents, wf.Started, wf.Expires, now)
		if err != nil {
			return fmt.Errorf("can't update workflow: %w", err)
		}
		if cmd.RowsAffected() != 1 {
			return fmt.Errorf("can't update workflow %s(%d): %w", wf.ID, wf.Version, persistence.ErrStale)
		}
		return db.enqueue(ctx, tx, msgs)
	})
	if err != nil {
		return err
	}
	wf.Version++
	wf.Updated = now
	return nil
}

func (db *DB) inTx(ctx context.Context, f func(tx pgx.Tx) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("can't start tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := f(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}
	return nil
}

func (db *DB) enqueue(ctx context.Context, tx pgx.Tx, msgs []*messages.Envelope) error {
	for _, m := range msgs {
		j, err := newJob(m.Msg, m.Opts)
		if err != nil {
			return err
		}
		if err := db.gc.EnqueueTx(ctx, j, pgxv5.NewTx(tx)); err != nil {
			return fmt.Errorf("can't enqueue to %s: %w", m.Opts.Queue, err)
		}
	}
	return nil
}

// LockEmailTable marks the email as being sent, fails if it was sent or is in progress
func (db *DB) LockEmailTable(ctx context.Context, id, msgType string) error {
	cmd, err := db.pool.Exec(ctx, `INSERT INTO email_lock(id, type, value, created) VALUES($1, $2, 1, $3)
	ON CONFLICT (id, type) DO UPDATE SET value = 1 WHERE email_lock.value = 0`, id, msgType, time.Now())
	if err != nil {
		return fmt.Errorf("can't lock email: %w", err)
	}
	if cmd.RowsAffected() != 1 {
		return fmt.Errorf("can't lock email %s(%s): already locked", id, msgType)
	}
	return nil
}

// UnLockEmailTable sets the final lock value, 0 - allows to retry, 2 - sent
func (db *DB) UnLockEmailTable(ctx context.Context, id, msgType string, value *int) error {
	cmd, err := db.pool.Exec(ctx, `UPDATE email_lock SET value = $3 WHERE id = $1 AND type = $2 AND value = 1`,
		id, msgType, *value)
	if err != nil {
		return fmt.Errorf("can't unlock email: %w", err)
	}
	if cmd.RowsAffected() != 1 {
		return fmt.Errorf("can't unlock email %s(%s): no lock", id, msgType)
	}
	return nil
}

// Live returns no error if db is reachable and initialized
func (db *DB) Live(ctx context.Context) error {
	var exists bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT FROM pg_tables WHERE tablename = 'gue_jobs')`).Scan(&exists); err != nil {
		return fmt.Errorf("can't check table: %w", err)
	}
	if !exists {
		return fmt.Errorf("no migration done")
	}
	return nil
}
