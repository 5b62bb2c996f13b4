package pipeline

import (
	"context"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spokentosigned/lexicon/pkg/dataset/datasettest"
	"github.com/spokentosigned/lexicon/pkg/dataset/signsuisse"
	"github.com/spokentosigned/lexicon/pkg/lexicon"
	"github.com/spokentosigned/lexicon/pkg/pose"
	"github.com/spokentosigned/lexicon/pkg/pose/posetest"
)

type fakeLoader struct {
	items    []lexicon.Item
	err      error
	closeErr error
	closed   bool
}

func (f *fakeLoader) Produce(context.Context) iter.Seq2[lexicon.Item, error] {
	return func(yield func(lexicon.Item, error) bool) {
		for _, it := range f.items {
			if !yield(it, nil) {
				return
			}
		}
		if f.err != nil {
			yield(lexicon.Item{}, f.err)
		}
	}
}

func (f *fakeLoader) Close() error {
	f.closed = true
	return f.closeErr
}

func item(t *testing.T, lang lexicon.SignedLanguage, id, words string) lexicon.Item {
	h := posetest.Header()
	p, err := pose.New(h, posetest.Body(h, 25, 2))
	require.NoError(t, err)
	rel := pose.RelativePath(string(lang), id)
	return lexicon.Item{
		Artifact: pose.WriteRequest{Path: rel, Pose: p},
		Entry:    lexicon.Entry{Path: rel, SpokenLanguage: "de", SignedLanguage: lang, Words: words},
	}
}

func driverWith(l *fakeLoader) *Driver {
	return &Driver{Loaders: map[string]LoaderFactory{
		"fake": func(context.Context, Options) (Loader, error) { return l, nil },
	}}
}

func readIndex(t *testing.T, dir string) []lexicon.Entry {
	f, err := os.Open(filepath.Join(dir, lexicon.IndexFileName))
	require.NoError(t, err)
	defer f.Close()
	entries, err := lexicon.ReadEntries(f)
	require.NoError(t, err)
	return entries
}

func TestRunUnknownNameFailsBeforeIO(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	d := NewDriver(nil)

	_, err := d.Run(context.Background(), "bogus", dir, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotImplemented))
	assert.Contains(t, err.Error(), "bogus is unknown")

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDefaultNames(t *testing.T) {
	assert.Equal(t, []string{"signsuisse"}, NewDriver(nil).Names())
}

func TestRunWritesArtifactsAndIndex(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "lexicon")
	l := &fakeLoader{items: []lexicon.Item{
		item(t, "sgg", "1", "Haus"),
		item(t, "ssr", "2", "maison"),
		item(t, "sgg", "3", "Baum"),
	}}
	d := driverWith(l)
	var progress []int
	d.OnProgress = func(n int) { progress = append(progress, n) }

	res, err := d.Run(context.Background(), "fake", dir, Options{})
	require.NoError(t, err)
	assert.True(t, l.closed)
	assert.Equal(t, filepath.Join(dir, "index.csv"), res.IndexPath)
	assert.Equal(t, 3, res.Entries)
	assert.Equal(t, map[lexicon.SignedLanguage]int{"sgg": 2, "ssr": 1}, res.BySignedLanguage)
	assert.Equal(t, []int{1, 2, 3}, progress)

	entries := readIndex(t, dir)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Regexp(t, `^(sgg|ssr)/\d+\.pose$`, e.Path)
		assert.FileExists(t, filepath.Join(dir, filepath.FromSlash(e.Path)))
	}
}

func TestRunTwiceAppends(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		_, err := driverWith(&fakeLoader{items: []lexicon.Item{item(t, "slf", "9", "casa")}}).Run(context.Background(), "fake", dir, Options{})
		require.NoError(t, err)
	}

	content, err := os.ReadFile(filepath.Join(dir, "index.csv"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(content), "path,spoken_language"))
	assert.Len(t, readIndex(t, dir), 2)
}

func TestRunAbortKeepsCompletedRows(t *testing.T) {
	dir := t.TempDir()
	l := &fakeLoader{
		items: []lexicon.Item{item(t, "sgg", "1", "Haus")},
		err:   &lexicon.UnknownSignedLanguageError{Code: "ch-rm"},
	}

	res, err := driverWith(l).Run(context.Background(), "fake", dir, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, lexicon.ErrUnknownSignedLanguage))
	assert.Equal(t, 1, res.Entries)
	assert.True(t, l.closed)

	entries := readIndex(t, dir)
	require.Len(t, entries, 1)
	assert.Equal(t, "sgg/1.pose", entries[0].Path)
}

func TestRunReportsLoaderCloseError(t *testing.T) {
	closeErr := errors.New("cache locked")
	logger, hook := test.NewNullLogger()
	d := driverWith(&fakeLoader{items: []lexicon.Item{item(t, "sgg", "1", "Haus")}, closeErr: closeErr})
	d.Logger = logger

	res, err := d.Run(context.Background(), "fake", t.TempDir(), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, closeErr))
	assert.Contains(t, err.Error(), "close fake loader")
	assert.Equal(t, 1, res.Entries)

	var logged bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Message == "cannot close loader" {
			logged = true
		}
	}
	assert.True(t, logged)
}

func TestRunKeepsFirstErrorOverCloseError(t *testing.T) {
	l := &fakeLoader{
		err:      &lexicon.UnknownSignedLanguageError{Code: "ch-rm"},
		closeErr: errors.New("cache locked"),
	}
	_, err := driverWith(l).Run(context.Background(), "fake", t.TempDir(), Options{})
	assert.True(t, errors.Is(err, lexicon.ErrUnknownSignedLanguage))
}

func TestRunFactoryError(t *testing.T) {
	d := &Driver{Loaders: map[string]LoaderFactory{
		"broken": func(context.Context, Options) (Loader, error) { return nil, errors.New("no cache") },
	}}
	_, err := d.Run(context.Background(), "broken", t.TempDir(), Options{})
	assert.ErrorContains(t, err, "no cache")
}

func TestRunSignSuisseWithoutSource(t *testing.T) {
	_, err := NewDriver(nil).Run(context.Background(), signsuisse.Name, t.TempDir(), Options{CacheDir: t.TempDir()})
	assert.True(t, errors.Is(err, ErrNoSource))
}

func TestRunSignSuisseFromMirror(t *testing.T) {
	mirror, err := datasettest.NewMirror(
		datasettest.Entry{ID: "10", Name: "Haus", SpokenLanguage: "de", SignedLanguage: "ch-de", Frames: 2},
		datasettest.Entry{ID: "11", Name: "maison", SpokenLanguage: "fr", SignedLanguage: "ch-fr", Frames: 3},
		datasettest.Entry{ID: "12", Name: "casa", SpokenLanguage: "it", SignedLanguage: "ch-it", Frames: 1},
	).Write(t.TempDir())
	require.NoError(t, err)
	out := t.TempDir()
	opts := Options{
		SourceURL: mirror,
		CacheDir:  t.TempDir(),
		RunDate:   time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC),
	}

	res, err := NewDriver(nil).Run(context.Background(), signsuisse.Name, out, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Entries)
	assert.FileExists(t, filepath.Join(opts.CacheDir, "signsuisse.db"))

	entries := readIndex(t, out)
	assert.Equal(t, []lexicon.Entry{
		{Path: "sgg/10.pose", SpokenLanguage: "de", SignedLanguage: "sgg", Words: "Haus"},
		{Path: "ssr/11.pose", SpokenLanguage: "fr", SignedLanguage: "ssr", Words: "maison"},
		{Path: "slf/12.pose", SpokenLanguage: "it", SignedLanguage: "slf", Words: "casa"},
	}, entries)

	p, err := pose.ReadFile(filepath.Join(out, "ssr", "11.pose"))
	require.NoError(t, err)
	assert.Equal(t, posetest.Header(), p.Header)
	assert.Equal(t, 3, p.Body.Frames)
}

func TestRunSignSuisseUnknownCodeWritesNothingForIt(t *testing.T) {
	mirror, err := datasettest.NewMirror(
		datasettest.Entry{ID: "10", Name: "Haus", SpokenLanguage: "de", SignedLanguage: "ch-de", Frames: 2},
		datasettest.Entry{ID: "20", Name: "Chasa", SpokenLanguage: "rm", SignedLanguage: "ch-rm", Frames: 2},
	).Write(t.TempDir())
	require.NoError(t, err)
	out := t.TempDir()

	_, err = NewDriver(nil).Run(context.Background(), signsuisse.Name, out, Options{SourceURL: mirror, CacheDir: t.TempDir(), RunDate: time.Now()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, lexicon.ErrUnknownSignedLanguage))

	assert.Len(t, readIndex(t, out), 1)
	assert.FileExists(t, filepath.Join(out, "sgg", "10.pose"))
	matches, err := filepath.Glob(filepath.Join(out, "*", "20.pose"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}
