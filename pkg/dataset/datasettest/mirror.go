// Package datasettest writes fake dataset mirrors for tests.
package datasettest

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/spokentosigned/lexicon/pkg/dataset"
	"github.com/spokentosigned/lexicon/pkg/pose"
	"github.com/spokentosigned/lexicon/pkg/pose/posetest"
)

// Entry is one record of a fake mirror. Frames of 0 means the record has
// no pose in the archive.
type Entry struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	SpokenLanguage string `json:"spokenLanguage"`
	SignedLanguage string `json:"signedLanguage"`
	Frames         int    `json:"-"`
}

// Mirror describes the contents of a fake mirror.
type Mirror struct {
	Header  *pose.Header
	Entries []Entry
}

// NewMirror uses the posetest header.
func NewMirror(entries ...Entry) *Mirror {
	return &Mirror{Header: posetest.Header(), Entries: entries}
}

// Write lays the mirror out under dir and returns dir.
func (m *Mirror) Write(dir string) (string, error) {
	layout := dataset.HolisticLayout
	if err := os.MkdirAll(filepath.Join(dir, "poses"), 0755); err != nil {
		return "", err
	}

	index, err := json.Marshal(m.Entries)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, dataset.IndexObject), index, 0644); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, filepath.FromSlash(dataset.HeaderObject(layout))), posetest.EncodeHeader(m.Header), 0644); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	if err := tw.WriteHeader(&tar.Header{Name: "holistic/", Typeflag: tar.TypeDir, Mode: 0755}); err != nil {
		return "", err
	}
	for _, e := range m.Entries {
		if e.Frames == 0 {
			continue
		}
		raw := posetest.Encode(m.Header, posetest.Body(m.Header, 25, e.Frames))
		if err := tw.WriteHeader(&tar.Header{Name: "holistic/" + e.ID + pose.Extension, Typeflag: tar.TypeReg, Mode: 0644, Size: int64(len(raw))}); err != nil {
			return "", err
		}
		if _, err := tw.Write(raw); err != nil {
			return "", err
		}
	}
	if err := tw.Close(); err != nil {
		return "", err
	}
	if err := gz.Close(); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, filepath.FromSlash(dataset.ArchiveObject(layout))), buf.Bytes(), 0644); err != nil {
		return "", err
	}
	return dir, nil
}
