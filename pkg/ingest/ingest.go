package ingest

import (
	"context"
	"database/sql"
	"io"
	"iter"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/spokentosigned/lexicon/pkg/db"
)

// Ingester stores downloaded dataset records in the cache.
type Ingester struct {
	DB        *sql.DB
	BatchSize int
	// Logger is used for informational messages. nil means no logging.
	Logger logrus.FieldLogger
	// OnProgress is called after every committed batch with the number of stored records.
	OnProgress func(current int)
}

// NewIngester creates a new Ingester.
func NewIngester(conn *sql.DB) *Ingester {
	return &Ingester{
		DB:        conn,
		BatchSize: 50,
	}
}

func (ig *Ingester) logger() logrus.FieldLogger {
	if ig.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		return l
	}
	return ig.Logger
}

// Ingest resets the config, stores every record it is given and marks the
// config complete. Any error leaves the config incomplete so the next run
// starts over.
func (ig *Ingester) Ingest(ctx context.Context, configID int64, records iter.Seq2[db.Record, error]) (int, error) {
	log := ig.logger().WithField("action", "ingest").WithField("config_id", configID)

	if err := db.ResetConfig(ig.DB, configID); err != nil {
		return 0, err
	}

	stored := 0
	bw := NewBatchWriter(ctx, ig.DB, ig.BatchSize)
	bw.OnCommit = func(n int) {
		stored += n
		log.WithField("records", stored).Debug("batch committed")
		if ig.OnProgress != nil {
			ig.OnProgress(stored)
		}
	}

	for rec, err := range records {
		if err != nil {
			return stored, err
		}
		if err := ctx.Err(); err != nil {
			return stored, err
		}
		r := rec
		if err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
			return db.InsertRecord(tx, configID, r)
		}); err != nil {
			return stored, errors.Wrap(err, "store records")
		}
	}
	if err := bw.Close(); err != nil {
		return stored, errors.Wrap(err, "store records")
	}

	if err := db.MarkConfigComplete(ig.DB, configID); err != nil {
		return stored, err
	}
	log.WithField("records", stored).Info("dataset cached")
	return stored, nil
}
