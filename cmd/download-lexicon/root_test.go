package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spokentosigned/lexicon/pkg/dataset/datasettest"
	"github.com/spokentosigned/lexicon/pkg/lexicon"
	"github.com/spokentosigned/lexicon/pkg/pipeline"
)

func writeMirror(t *testing.T) string {
	dir, err := datasettest.NewMirror(
		datasettest.Entry{ID: "1", Name: "Haus", SpokenLanguage: "de", SignedLanguage: "ch-de", Frames: 2},
		datasettest.Entry{ID: "2", Name: "maison", SpokenLanguage: "fr", SignedLanguage: "ch-fr", Frames: 2},
	).Write(t.TempDir())
	require.NoError(t, err)
	return dir
}

func execute(t *testing.T, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	rc := NewRootCommand(nil, &stdout, &stderr)
	rc.SetArgs(args)
	err := rc.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func readIndex(t *testing.T, dir string) []lexicon.Entry {
	f, err := os.Open(filepath.Join(dir, lexicon.IndexFileName))
	require.NoError(t, err)
	defer f.Close()
	entries, err := lexicon.ReadEntries(f)
	require.NoError(t, err)
	return entries
}

func TestRootCommandDownloads(t *testing.T) {
	out := t.TempDir()
	stdout, _, err := execute(t,
		"--name", "signsuisse",
		"--directory", out,
		"--source-url", writeMirror(t),
		"--cache-dir", t.TempDir(),
		"--run-date", "2026-10-18",
		"--log-level", "debug",
	)
	require.NoError(t, err)
	assert.Equal(t, "Added entries to "+filepath.Join(out, "index.csv")+"\n", stdout)
	assert.Len(t, readIndex(t, out), 2)
	assert.FileExists(t, filepath.Join(out, "sgg", "1.pose"))
	assert.FileExists(t, filepath.Join(out, "ssr", "2.pose"))
}

func TestRootCommandUnknownName(t *testing.T) {
	out := filepath.Join(t.TempDir(), "lexicon")
	stdout, _, err := execute(t, "--name", "dgs_types", "--directory", out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pipeline.ErrNotImplemented))
	assert.Contains(t, err.Error(), "signsuisse")
	assert.Empty(t, stdout)
	assert.NoDirExists(t, out)
}

func TestRootCommandRequiresFlags(t *testing.T) {
	_, _, err := execute(t, "--directory", t.TempDir())
	assert.ErrorContains(t, err, "--name")

	_, _, err = execute(t, "--name", "signsuisse")
	assert.ErrorContains(t, err, "--directory")
}

func TestRootCommandRejectsBadValues(t *testing.T) {
	_, _, err := execute(t, "--name", "signsuisse", "--directory", t.TempDir(), "--run-date", "18.10.2026")
	assert.ErrorContains(t, err, "--run-date")

	_, _, err = execute(t, "--name", "signsuisse", "--directory", t.TempDir(), "--log-format", "xml")
	assert.ErrorContains(t, err, "--log-format")

	_, _, err = execute(t, "--name", "signsuisse", "--directory", t.TempDir(), "--log-level", "loud")
	assert.ErrorContains(t, err, "--log-level")
}

func TestRootCommandEnvironment(t *testing.T) {
	out := t.TempDir()
	t.Setenv("LEXICON_SOURCE_URL", writeMirror(t))
	t.Setenv("LEXICON_CACHE_DIR", t.TempDir())

	_, _, err := execute(t, "--name", "signsuisse", "--directory", out, "--run-date", "2026-10-18")
	require.NoError(t, err)
	assert.Len(t, readIndex(t, out), 2)
}

func TestRootCommandConfigFile(t *testing.T) {
	out := t.TempDir()
	cfg := filepath.Join(t.TempDir(), "lexicon.toml")
	content := `name = "signsuisse"
directory = "` + filepath.ToSlash(out) + `"
source-url = "` + filepath.ToSlash(writeMirror(t)) + `"
cache-dir = "` + filepath.ToSlash(t.TempDir()) + `"
run-date = "2026-10-18"
progress-every = 1
`
	require.NoError(t, os.WriteFile(cfg, []byte(content), 0644))

	_, stderr, err := execute(t, "--config", cfg)
	require.NoError(t, err)
	assert.Len(t, readIndex(t, out), 2)
	assert.Contains(t, stderr, "writing lexicon")
}

func TestRootCommandConfigFileRejectsUnknownKeys(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "lexicon.toml")
	require.NoError(t, os.WriteFile(cfg, []byte("colour = \"blue\"\n"), 0644))

	_, _, err := execute(t, "--config", cfg)
	assert.ErrorContains(t, err, "invalid option in configuration file")
}
