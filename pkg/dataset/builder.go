package dataset

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"iter"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/spokentosigned/lexicon/pkg/db"
	"github.com/spokentosigned/lexicon/pkg/ingest"
	"github.com/spokentosigned/lexicon/pkg/pose"
)

// Builder materializes one config of a dataset in the cache and streams it back.
type Builder struct {
	Dataset string
	Config  Config
	Fetcher Fetcher
	Cache   *sql.DB

	Logger    logrus.FieldLogger
	BatchSize int
	// OnProgress is called while records are being cached.
	OnProgress func(current int)

	configID int64
	header   *pose.Header
}

func (b *Builder) logger() logrus.FieldLogger {
	if b.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		return l
	}
	return b.Logger
}

// Prepare makes sure the config is fully cached, downloading it when it is
// new or an earlier attempt did not finish.
func (b *Builder) Prepare(ctx context.Context) error {
	if err := b.Config.Validate(); err != nil {
		return err
	}
	log := b.logger().WithFields(logrus.Fields{
		"action":  "prepare_dataset",
		"dataset": b.Dataset,
		"config":  b.Config.Name,
		"version": b.Config.Version,
	})

	id, err := db.CreateOrGetConfig(b.Cache, b.Config.Name, b.Config.Version, b.Config.IncludePose)
	if err != nil {
		return err
	}
	b.configID = id

	cfg, err := db.GetConfig(b.Cache, id)
	if err != nil {
		return err
	}
	if cfg.Complete() {
		h, err := pose.ReadHeader(bytes.NewReader(cfg.Header))
		if err != nil {
			return errors.Wrap(err, "decode cached pose header")
		}
		b.header = h
		log.WithField("records", cfg.RecordCount).Info("using cached dataset")
		return nil
	}

	log.Info("downloading dataset")
	if err := b.download(ctx, log); err != nil {
		return errors.Wrapf(err, "download %s", b.Dataset)
	}

	if n, err := db.DeleteStaleConfigs(b.Cache, id); err != nil {
		log.WithError(err).Warn("could not prune stale cache entries")
	} else if n > 0 {
		log.WithField("configs", n).Debug("pruned stale cache entries")
	}
	return nil
}

func (b *Builder) download(ctx context.Context, log logrus.FieldLogger) error {
	raw, h, err := FetchHeader(ctx, b.Fetcher, b.Config.IncludePose)
	if err != nil {
		return err
	}

	index, err := FetchIndex(ctx, b.Fetcher)
	if err != nil {
		return err
	}
	log.WithField("entries", len(index)).Debug("index fetched")

	archive, err := b.Fetcher.Open(ctx, ArchiveObject(b.Config.IncludePose))
	if err != nil {
		return err
	}
	defer archive.Close()

	seen := make(map[string]bool, len(index))
	joined := func(yield func(Record, error) bool) {
		for p, err := range ReadArchive(archive) {
			if err != nil {
				yield(Record{}, err)
				return
			}
			meta, ok := index[p.ID]
			if !ok {
				log.WithField("id", p.ID).Debug("pose without index entry")
				continue
			}
			seen[p.ID] = true
			rec := Record{
				ID:             meta.ID,
				Name:           meta.Name,
				SpokenLanguage: meta.SpokenLanguage,
				SignedLanguage: meta.SignedLanguage,
				Pose:           p.Body,
			}
			if !yield(rec, nil) {
				return
			}
		}
	}

	ig := ingest.NewIngester(b.Cache)
	ig.Logger = log
	ig.OnProgress = b.OnProgress
	if b.BatchSize > 0 {
		ig.BatchSize = b.BatchSize
	}
	if err := db.SetConfigHeader(b.Cache, b.configID, raw); err != nil {
		return err
	}
	if _, err := ig.Ingest(ctx, b.configID, iter.Seq2[Record, error](joined)); err != nil {
		return err
	}

	if missing := len(index) - len(seen); missing > 0 {
		log.WithField("records", missing).Warn("index entries without pose were skipped")
	}
	b.header = h
	return nil
}

// PoseHeader returns the layout header shared by every record. Valid after Prepare.
func (b *Builder) PoseHeader() *pose.Header { return b.header }

// Records streams the cached records in id order. Prepare must have succeeded.
func (b *Builder) Records(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		if b.header == nil {
			yield(Record{}, errors.New("dataset not prepared"))
			return
		}
		cur, err := db.OpenRecordCursor(ctx, b.Cache, b.configID)
		if err != nil {
			yield(Record{}, err)
			return
		}
		defer cur.Close()
		for cur.Next() {
			if !yield(cur.Record(), nil) {
				return
			}
		}
		if err := cur.Err(); err != nil {
			yield(Record{}, err)
		}
	}
}
