package pipeline

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/spokentosigned/lexicon/pkg/dataset"
	"github.com/spokentosigned/lexicon/pkg/dataset/signsuisse"
	"github.com/spokentosigned/lexicon/pkg/db"
)

// ErrNoSource is returned when no mirror location is configured.
var ErrNoSource = errors.New("no dataset source configured")

// DefaultLoaders returns the built-in loader registry.
func DefaultLoaders() map[string]LoaderFactory {
	return map[string]LoaderFactory{
		signsuisse.Name: newSignSuisse,
	}
}

// cachedLoader owns the sqlite cache its builder reads from.
type cachedLoader struct {
	*signsuisse.Loader
	cache *sql.DB
}

func (l *cachedLoader) Close() error { return l.cache.Close() }

func openCache(dir, name string) (*sql.DB, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "create cache dir %s", dir)
	}
	return db.Open(filepath.Join(dir, name+".db"))
}

func newSignSuisse(ctx context.Context, opts Options) (Loader, error) {
	if opts.SourceURL == "" {
		return nil, errors.Wrap(ErrNoSource, signsuisse.Name)
	}
	fetcher, err := dataset.NewFetcher(opts.SourceURL, opts.S3)
	if err != nil {
		return nil, err
	}
	cache, err := openCache(opts.CacheDir, signsuisse.Name)
	if err != nil {
		return nil, err
	}
	return &cachedLoader{
		Loader: &signsuisse.Loader{
			Source: &dataset.Builder{
				Dataset:    signsuisse.Name,
				Config:     dataset.ConfigForDate(opts.RunDate, signsuisse.Version),
				Fetcher:    fetcher,
				Cache:      cache,
				Logger:     opts.Logger,
				OnProgress: opts.OnCacheProgress,
			},
			Logger: opts.Logger,
		},
		cache: cache,
	}, nil
}
