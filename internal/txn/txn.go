package txn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrNestedOperation is returned by Begin when an operation is open.
	ErrNestedOperation = errors.New("atomic operation already in progress")
	// ErrNoOperation is returned by Commit and Rollback with nothing open.
	ErrNoOperation = errors.New("no atomic operation in progress")
)

// StoreSnapshot is an opaque full copy of the store.
type StoreSnapshot interface {
	Len() int
}

// Resources are the two things an operation keeps consistent.
type Resources interface {
	SnapshotStore(ctx context.Context) (StoreSnapshot, error)
	RestoreStore(ctx context.Context, snap StoreSnapshot) error
	ChainLen() int
	TruncateChain(n int) error
}

// ChainCheckpointer is implemented by resources whose existing blocks can
// be mutated in place (repair relinking). The returned func restores every
// block header to its state at checkpoint time.
type ChainCheckpointer interface {
	CheckpointChain() (restore func())
}

type backup struct {
	store     StoreSnapshot
	chainLen  int
	restore   func()
	startedAt time.Time
}

// Context is a non-reentrant transaction scope over a store and a chain.
// It is safe for concurrent use, but callers normally serialize access
// behind the ledger's write lock.
type Context struct {
	res    Resources
	logger *slog.Logger

	mu     sync.Mutex
	backup *backup
}

// New creates a Context over res. A nil logger uses slog.Default().
func New(res Resources, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{res: res, logger: logger}
}

// InProgress reports whether an operation is open.
func (c *Context) InProgress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backup != nil
}

// Begin opens an operation by snapshotting the store and the chain length.
func (c *Context) Begin(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backup != nil {
		return ErrNestedOperation
	}
	snap, err := c.res.SnapshotStore(ctx)
	if err != nil {
		return fmt.Errorf("begin: snapshot store: %w", err)
	}
	b := &backup{
		store:     snap,
		chainLen:  c.res.ChainLen(),
		startedAt: time.Now(),
	}
	if cp, ok := c.res.(ChainCheckpointer); ok {
		b.restore = cp.CheckpointChain()
	}
	c.backup = b
	c.logger.Debug("atomic operation begun", "chain_len", b.chainLen, "quads", snap.Len())
	return nil
}

// Commit closes the open operation and discards its backup.
func (c *Context) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backup == nil {
		return ErrNoOperation
	}
	c.logger.Debug("atomic operation committed", "elapsed", time.Since(c.backup.startedAt))
	c.backup = nil
	return nil
}

// Rollback restores the store, restores checkpointed headers, truncates
// the chain to its recorded length and clears the backup. The backup is
// cleared even when a restore step fails.
func (c *Context) Rollback(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.backup
	if b == nil {
		return ErrNoOperation
	}
	c.backup = nil

	var errs []error
	if err := c.res.RestoreStore(ctx, b.store); err != nil {
		errs = append(errs, fmt.Errorf("restore store: %w", err))
	}
	if b.restore != nil {
		b.restore()
	}
	if err := c.res.TruncateChain(b.chainLen); err != nil {
		errs = append(errs, fmt.Errorf("truncate chain to %d: %w", b.chainLen, err))
	}
	if len(errs) > 0 {
		c.logger.Error("atomic operation rollback incomplete", "error", errors.Join(errs...))
		return fmt.Errorf("rollback: %w", errors.Join(errs...))
	}
	c.logger.Debug("atomic operation rolled back", "chain_len", b.chainLen)
	return nil
}

// Run executes op atomically. If an operation is already open, op runs
// inline and the outer owner decides whether to commit or roll back.
// Otherwise Run begins, commits when op succeeds and rolls back when op
// fails or panics. The original error is returned, joined with any
// rollback failure.
func (c *Context) Run(ctx context.Context, op func(ctx context.Context) error) (err error) {
	if c.InProgress() {
		return op(ctx)
	}
	if err := c.Begin(ctx); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			if rbErr := c.Rollback(ctx); rbErr != nil {
				c.logger.Error("rollback after panic failed", "error", rbErr)
			}
			panic(r)
		}
	}()

	if err := op(ctx); err != nil {
		if rbErr := c.Rollback(ctx); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return c.Commit()
}
