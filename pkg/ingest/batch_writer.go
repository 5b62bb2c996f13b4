package ingest

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// WriteFunc is a callback that performs database writes inside a transaction.
type WriteFunc func(ctx context.Context, tx *sql.Tx) error

// ErrBatchWriterClosed is returned by Submit and Close after Close.
var ErrBatchWriterClosed = errors.New("batch writer closed")

// BatchWriter buffers write operations and commits them in batches, one
// transaction per batch. A failing callback rolls back its whole batch.
// Not safe for concurrent use.
type BatchWriter struct {
	ctx    context.Context
	db     *sql.DB
	buf    []WriteFunc
	cap    int
	closed bool

	// OnCommit is called after each committed batch with its size.
	OnCommit func(n int)
}

// NewBatchWriter creates a new BatchWriter.
// db: the database connection to use for transactions; nil runs callbacks with a nil tx.
// bufferSize: commit when the buffer reaches this size.
func NewBatchWriter(ctx context.Context, db *sql.DB, bufferSize int) *BatchWriter {
	if bufferSize <= 0 {
		bufferSize = 10
	}
	return &BatchWriter{
		ctx: ctx,
		db:  db,
		buf: make([]WriteFunc, 0, bufferSize),
		cap: bufferSize,
	}
}

// Submit enqueues a write function, committing the buffer once it is full.
func (bw *BatchWriter) Submit(w WriteFunc) error {
	if bw.closed {
		return ErrBatchWriterClosed
	}
	bw.buf = append(bw.buf, w)
	if len(bw.buf) >= bw.cap {
		return bw.Flush()
	}
	return nil
}

// Flush commits whatever is buffered.
func (bw *BatchWriter) Flush() error {
	if len(bw.buf) == 0 {
		return nil
	}
	batch := bw.buf
	bw.buf = make([]WriteFunc, 0, bw.cap)
	if err := bw.executeBatch(batch); err != nil {
		return err
	}
	if bw.OnCommit != nil {
		bw.OnCommit(len(batch))
	}
	return nil
}

func (bw *BatchWriter) executeBatch(batch []WriteFunc) error {
	if err := bw.ctx.Err(); err != nil {
		return err
	}
	if bw.db == nil {
		for _, w := range batch {
			if err := w(bw.ctx, nil); err != nil {
				return err
			}
		}
		return nil
	}

	tx, err := bw.db.BeginTx(bw.ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin batch tx")
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()

	for _, w := range batch {
		if err := w(bw.ctx, tx); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit batch (%d items)", len(batch))
	}
	return nil
}

// Close commits pending writes and stops accepting submissions.
func (bw *BatchWriter) Close() error {
	if bw.closed {
		return ErrBatchWriterClosed
	}
	bw.closed = true
	return bw.Flush()
}
