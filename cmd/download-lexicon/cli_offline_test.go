package main_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spokentosigned/lexicon/pkg/dataset/datasettest"
	"github.com/spokentosigned/lexicon/pkg/lexicon"
)

func TestCLI_OfflineServer(t *testing.T) {
	tmp := t.TempDir()

	mirror, err := datasettest.NewMirror(
		datasettest.Entry{ID: "100", Name: "Haus", SpokenLanguage: "de", SignedLanguage: "ch-de", Frames: 3},
		datasettest.Entry{ID: "101", Name: "casa", SpokenLanguage: "it", SignedLanguage: "ch-it", Frames: 2},
		datasettest.Entry{ID: "102", Name: "Baum", SpokenLanguage: "de", SignedLanguage: "ch-de"},
	).Write(filepath.Join(tmp, "mirror"))
	if err != nil {
		t.Fatalf("failed to write mirror: %v", err)
	}

	// Serve the mirror over HTTP
	srv := httptest.NewServer(http.FileServer(http.Dir(mirror)))
	defer srv.Close()

	outDir := filepath.Join(tmp, "lexicon")
	cacheDir := filepath.Join(tmp, "cache")
	bin := filepath.Join(tmp, "download-lexicon.bin")

	build := exec.Command("go", "build", "-o", bin, "github.com/spokentosigned/lexicon/cmd/download-lexicon")
	build.Stdout = os.Stdout
	build.Stderr = os.Stderr
	if err := build.Run(); err != nil {
		t.Fatalf("failed to build CLI: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, bin,
		"--name", "signsuisse",
		"--directory", outDir,
		"--source-url", srv.URL,
		"--cache-dir", cacheDir,
		"--run-date", "2026-10-18",
	)
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		t.Fatalf("cli timed out, output:\n%s", out)
	}
	if err != nil {
		t.Fatalf("cli failed: %v\noutput:\n%s", err, out)
	}

	outStr := string(out)
	if !strings.Contains(outStr, "Added entries to "+filepath.Join(outDir, "index.csv")) {
		t.Fatalf("unexpected CLI output; expected success message, got:\n%s", outStr)
	}
	if !strings.Contains(outStr, "without pose") {
		t.Fatalf("expected a warning for the record without a pose, got:\n%s", outStr)
	}

	f, err := os.Open(filepath.Join(outDir, "index.csv"))
	if err != nil {
		t.Fatalf("failed to open index: %v", err)
	}
	defer f.Close()
	entries, err := lexicon.ReadEntries(f)
	if err != nil {
		t.Fatalf("failed to read index: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 index rows, found %d", len(entries))
	}
	for _, e := range entries {
		if _, err := os.Stat(filepath.Join(outDir, filepath.FromSlash(e.Path))); err != nil {
			t.Fatalf("missing artifact for %s: %v", e.Path, err)
		}
	}

	if _, err := os.Stat(filepath.Join(cacheDir, "signsuisse.db")); err != nil {
		t.Fatalf("expected dataset cache: %v", err)
	}
}

func TestCLI_UnknownNameExitsNonZero(t *testing.T) {
	tmp := t.TempDir()
	bin := filepath.Join(tmp, "download-lexicon.bin")
	build := exec.Command("go", "build", "-o", bin, "github.com/spokentosigned/lexicon/cmd/download-lexicon")
	build.Stderr = os.Stderr
	if err := build.Run(); err != nil {
		t.Fatalf("failed to build CLI: %v", err)
	}

	cmd := exec.Command(bin, "--name", "nope", "--directory", filepath.Join(tmp, "lexicon"))
	out, err := cmd.CombinedOutput()
	exitErr, ok := err.(*exec.ExitError)
	if !ok || exitErr.ExitCode() != 1 {
		t.Fatalf("expected exit code 1, got %v\noutput:\n%s", err, out)
	}
	if !strings.Contains(string(out), "not implemented") {
		t.Fatalf("expected not implemented error, got:\n%s", out)
	}
}
