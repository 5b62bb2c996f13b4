package dataset

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"iter"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/spokentosigned/lexicon/pkg/pose"
)

// Object names inside a mirror.
const (
	IndexObject = "index.json"
	posesDir    = "poses"
)

// HeaderObject is the shared pose header of a layout.
func HeaderObject(layout string) string { return path.Join(posesDir, layout+".header") }

// ArchiveObject is the tar.gz of per-record pose files of a layout.
func ArchiveObject(layout string) string { return path.Join(posesDir, layout+".tar.gz") }

// IndexEntry is one record of the mirror's index.json. Unknown fields are ignored.
type IndexEntry struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	SpokenLanguage string `json:"spokenLanguage"`
	SignedLanguage string `json:"signedLanguage"`
}

// FetchIndex downloads and decodes index.json keyed by record id.
func FetchIndex(ctx context.Context, f Fetcher) (map[string]IndexEntry, error) {
	rc, err := f.Open(ctx, IndexObject)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	dec := json.NewDecoder(rc)
	if _, err := dec.Token(); err != nil {
		return nil, errors.Wrap(err, "read index start")
	}
	out := make(map[string]IndexEntry)
	for dec.More() {
		var e IndexEntry
		if err := dec.Decode(&e); err != nil {
			return nil, errors.Wrap(err, "decode index entry")
		}
		if e.ID == "" {
			continue
		}
		out[e.ID] = e
	}
	if _, err := dec.Token(); err != nil {
		return nil, errors.Wrap(err, "read index end")
	}
	return out, nil
}

// FetchHeader downloads the shared pose header of a layout, returning both
// its raw bytes and the decoded form.
func FetchHeader(ctx context.Context, f Fetcher, layout string) ([]byte, *pose.Header, error) {
	rc, err := f.Open(ctx, HeaderObject(layout))
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, nil, errors.Wrap(err, "read pose header")
	}
	h, err := pose.ReadHeader(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, err
	}
	return raw, h, nil
}

// ArchivedPose is one pose file found in a layout archive.
type ArchivedPose struct {
	ID   string
	Body *pose.Body
}

// ReadArchive streams the pose files of a tar.gz archive. Entries that are
// not regular "<id>.pose" files are skipped.
func ReadArchive(r io.Reader) iter.Seq2[ArchivedPose, error] {
	return func(yield func(ArchivedPose, error) bool) {
		gz, err := gzip.NewReader(r)
		if err != nil {
			yield(ArchivedPose{}, errors.Wrap(err, "open gzip stream"))
			return
		}
		defer gz.Close()

		tr := tar.NewReader(gz)
		for {
			hdr, err := tr.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(ArchivedPose{}, errors.Wrap(err, "read tar archive"))
				return
			}
			name := path.Base(hdr.Name)
			if hdr.Typeflag != tar.TypeReg || !strings.HasSuffix(name, pose.Extension) {
				continue
			}
			p, err := pose.ReadSized(tr, hdr.Size)
			if err != nil {
				yield(ArchivedPose{}, errors.Wrapf(err, "decode %s", hdr.Name))
				return
			}
			if !yield(ArchivedPose{ID: strings.TrimSuffix(name, pose.Extension), Body: p.Body}, nil) {
				return
			}
		}
	}
}
