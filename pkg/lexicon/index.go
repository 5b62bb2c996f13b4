package lexicon

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/spokentosigned/lexicon/pkg/pose"
)

// IndexFileName is the manifest file name inside the output directory.
const IndexFileName = "index.csv"

// Columns is the fixed header of the lexicon index, in write order.
var Columns = []string{"path", "spoken_language", "signed_language", "words", "glosses", "priority"}

// Entry is one row of the lexicon index.
type Entry struct {
	// Path is relative to the index directory, e.g. "sgg/1234.pose".
	Path           string
	SpokenLanguage string
	SignedLanguage SignedLanguage
	Words          string
	// Glosses and Priority are left empty for later curation.
	Glosses  string
	Priority string
}

// Row returns the entry's fields in Columns order.
func (e Entry) Row() []string {
	return []string{e.Path, e.SpokenLanguage, string(e.SignedLanguage), e.Words, e.Glosses, e.Priority}
}

// EnsureIndex creates the index file with the header row if nothing exists at path.
// An existing file is left untouched, whatever its contents.
func EnsureIndex(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "stat index %s", path)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return errors.Wrapf(err, "create index %s", path)
	}
	w := csv.NewWriter(f)
	if err := w.Write(Columns); err != nil {
		f.Close()
		return errors.Wrap(err, "write index header")
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return errors.Wrap(err, "flush index header")
	}
	return f.Close()
}

// AppendEntries appends one row per entry to the index at path.
func AppendEntries(path string, entries []Entry) error {
	iw, err := OpenIndex(path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := iw.Append(e); err != nil {
			iw.Close()
			return err
		}
	}
	return iw.Close()
}

// IndexWriter appends rows to an index opened in append mode. Rows are
// buffered and flushed on Close. Not safe for concurrent use.
type IndexWriter struct {
	f     *os.File
	w     *csv.Writer
	count int
}

// OpenIndex opens an existing index for appending.
func OpenIndex(path string) (*IndexWriter, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "open index %s", path)
	}
	return &IndexWriter{f: f, w: csv.NewWriter(f)}, nil
}

// Append writes a single entry.
func (iw *IndexWriter) Append(e Entry) error {
	if err := iw.w.Write(e.Row()); err != nil {
		return errors.Wrapf(err, "append %s", e.Path)
	}
	iw.count++
	return nil
}

// Count returns the number of rows appended through this writer.
func (iw *IndexWriter) Count() int { return iw.count }

// Close flushes buffered rows and closes the file.
func (iw *IndexWriter) Close() error {
	iw.w.Flush()
	if err := iw.w.Error(); err != nil {
		iw.f.Close()
		return errors.Wrap(err, "flush index")
	}
	return iw.f.Close()
}

// ReadEntries parses every row after the header.
func ReadEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Columns)
	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read index header")
	}
	for i, c := range Columns {
		if header[i] != c {
			return nil, errors.Errorf("index header column %d is %q, want %q", i, header[i], c)
		}
	}
	var out []Entry
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read index row")
		}
		out = append(out, Entry{
			Path:           rec[0],
			SpokenLanguage: rec[1],
			SignedLanguage: SignedLanguage(rec[2]),
			Words:          rec[3],
			Glosses:        rec[4],
			Priority:       rec[5],
		})
	}
	return out, nil
}

// Item pairs an entry with the artifact its Path refers to. The artifact is
// written before the entry is appended.
type Item struct {
	Artifact pose.WriteRequest
	Entry    Entry
}
