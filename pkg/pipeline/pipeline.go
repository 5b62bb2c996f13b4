// Package pipeline drives a dataset loader into a lexicon directory.
package pipeline

import (
	"context"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/spokentosigned/lexicon/pkg/dataset"
	"github.com/spokentosigned/lexicon/pkg/lexicon"
	"github.com/spokentosigned/lexicon/pkg/pose"
)

// ErrNotImplemented is returned for dataset names without a loader.
var ErrNotImplemented = errors.New("not implemented")

// Loader yields lexicon items for one dataset.
type Loader interface {
	Produce(ctx context.Context) iter.Seq2[lexicon.Item, error]
	Close() error
}

// Options are handed to loader factories.
type Options struct {
	// SourceURL is the dataset mirror: http(s)://, s3://bucket/prefix or a directory.
	SourceURL string
	S3        dataset.S3Options
	// CacheDir holds one sqlite cache per dataset.
	CacheDir string
	// RunDate names the cache entry; a different day downloads afresh.
	RunDate time.Time
	Logger  logrus.FieldLogger
	// OnCacheProgress reports records stored while the dataset is downloaded.
	OnCacheProgress func(current int)
}

// LoaderFactory builds a loader; it may open resources released by Loader.Close.
type LoaderFactory func(ctx context.Context, opts Options) (Loader, error)

// Result summarizes a completed run.
type Result struct {
	IndexPath        string
	Entries          int
	BySignedLanguage map[lexicon.SignedLanguage]int
}

// Driver resolves loaders by name and streams their items into a lexicon directory.
type Driver struct {
	Loaders map[string]LoaderFactory
	Logger  logrus.FieldLogger
	// OnProgress is called after every appended entry.
	OnProgress func(current int)
}

// NewDriver returns a driver knowing every built-in loader.
func NewDriver(logger logrus.FieldLogger) *Driver {
	return &Driver{Loaders: DefaultLoaders(), Logger: logger}
}

// Names lists the loaders the driver knows, sorted.
func (d *Driver) Names() []string {
	names := make([]string, 0, len(d.Loaders))
	for n := range d.Loaders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup resolves a loader factory by name.
func (d *Driver) Lookup(name string) (LoaderFactory, error) {
	f, ok := d.Loaders[name]
	if !ok {
		return nil, errors.Wrapf(ErrNotImplemented, "%s is unknown", name)
	}
	return f, nil
}

func (d *Driver) logger() logrus.FieldLogger {
	if d.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		return l
	}
	return d.Logger
}

// Run writes every item of the named dataset under directory and appends its
// entry to directory/index.csv. One item is held in memory at a time. A
// failure stops the run; rows and artifacts already written stay in place.
// Closing the loader is reported as the run's error when nothing failed before.
func (d *Driver) Run(ctx context.Context, name, directory string, opts Options) (res *Result, err error) {
	factory, err := d.Lookup(name)
	if err != nil {
		return nil, err
	}

	log := d.logger().WithFields(logrus.Fields{
		"action":  "download_lexicon",
		"dataset": name,
		"run_id":  uuid.NewString(),
	})
	if opts.Logger == nil {
		opts.Logger = log
	}

	if err := os.MkdirAll(directory, pose.DefaultDirPermissions); err != nil {
		return nil, errors.Wrapf(err, "create %s", directory)
	}
	res = &Result{
		IndexPath:        filepath.Join(directory, lexicon.IndexFileName),
		BySignedLanguage: make(map[lexicon.SignedLanguage]int),
	}
	if err := lexicon.EnsureIndex(res.IndexPath); err != nil {
		return nil, err
	}

	loader, err := factory(ctx, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "start %s loader", name)
	}
	defer func() {
		if cerr := loader.Close(); cerr != nil {
			log.WithError(cerr).Error("cannot close loader")
			if err == nil {
				err = errors.Wrapf(cerr, "close %s loader", name)
			}
		}
	}()

	iw, err := lexicon.OpenIndex(res.IndexPath)
	if err != nil {
		return nil, err
	}
	for item, err := range loader.Produce(ctx) {
		if err == nil {
			err = pose.WriteFile(directory, item.Artifact)
		}
		if err == nil {
			err = iw.Append(item.Entry)
		}
		if err != nil {
			if cerr := iw.Close(); cerr != nil {
				log.WithError(cerr).Error("cannot flush index after abort")
			}
			log.WithError(err).WithField("entries", iw.Count()).Error("run aborted")
			return res, err
		}
		res.Entries++
		res.BySignedLanguage[item.Entry.SignedLanguage]++
		if d.OnProgress != nil {
			d.OnProgress(res.Entries)
		}
	}
	if err := iw.Close(); err != nil {
		return res, err
	}

	fields := logrus.Fields{"entries": res.Entries, "index": res.IndexPath}
	for lang, n := range res.BySignedLanguage {
		fields[string(lang)] = n
	}
	log.WithFields(fields).Info("lexicon updated")
	return res, nil
}
