package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/docsight/dbopen"
)

const (
	maxBatch     = 100
	writeTimeout = 10 * time.Second
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// batcher queues rows of one kind and writes them in a single transaction
// every interval, or as soon as maxBatch are pending.
type batcher[T any] struct {
	kind  string
	db    *sql.DB
	queue chan T
	every time.Duration
	write func(context.Context, execer, T) error

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func startBatcher[T any](kind string, db *sql.DB, queue int, every time.Duration,
	write func(context.Context, execer, T) error) *batcher[T] {
	if queue <= 0 {
		queue = 1000
	}
	if every <= 0 {
		every = 5 * time.Second
	}
	b := &batcher[T]{
		kind:  kind,
		db:    db,
		queue: make(chan T, queue),
		every: every,
		write: write,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go b.loop()
	return b
}

// push queues v. A full queue writes v inline rather than drop it.
func (b *batcher[T]) push(v T) {
	select {
	case b.queue <- v:
		return
	default:
	}
	slog.Warn("observability: queue full, writing inline", "kind", b.kind)
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := b.write(ctx, b.db, v); err != nil {
		slog.Error("observability: inline write", "kind", b.kind, "error", err)
	}
}

// close drains the queue, writes what is pending and stops the loop.
func (b *batcher[T]) close() {
	b.once.Do(func() { close(b.stop) })
	<-b.done
}

func (b *batcher[T]) loop() {
	defer close(b.done)
	tick := time.NewTicker(b.every)
	defer tick.Stop()
	pending := make([]T, 0, maxBatch)

	flush := func() {
		if len(pending) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		err := dbopen.RunTx(ctx, b.db, func(tx *sql.Tx) error {
			for _, v := range pending {
				if err := b.write(ctx, tx, v); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			slog.Error("observability: flush", "kind", b.kind, "rows", len(pending), "error", err)
		}
		pending = pending[:0]
	}

	for {
		select {
		case v := <-b.queue:
			pending = append(pending, v)
			if len(pending) >= maxBatch {
				flush()
			}
		case <-tick.C:
			flush()
		case <-b.stop:
			for {
				select {
				case v := <-b.queue:
					pending = append(pending, v)
				default:
					flush()
					return
				}
			}
		}
	}
}

// prune deletes rows of table whose timestamp is older than days.
func prune(ctx context.Context, db *sql.DB, table string, days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days).Unix()
	res, err := dbopen.Exec(ctx, db, "DELETE FROM "+table+" WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune %s: %w", table, err)
	}
	return res.RowsAffected()
}
