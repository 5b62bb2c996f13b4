// Package signsuisse turns the SignSuisse lexicon of Swiss sign languages
// into lexicon entries and pose artifacts.
package signsuisse

import (
	"context"
	"io"
	"iter"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"

	"github.com/spokentosigned/lexicon/pkg/dataset"
	"github.com/spokentosigned/lexicon/pkg/lexicon"
	"github.com/spokentosigned/lexicon/pkg/pose"
)

// Name is the loader name accepted on the command line.
const Name = "signsuisse"

// Version of the published dataset.
const Version = "1.0.0"

// SignedLanguages maps SignSuisse regional codes to IANA sign language tags.
var SignedLanguages = lexicon.LanguageTable{
	"ch-de": lexicon.SwissGermanSignLanguage,
	"ch-fr": lexicon.SwissFrenchSignLanguage,
	"ch-it": lexicon.SwissItalianSignLanguage,
}

// Source is the dataset service the loader reads from; *dataset.Builder implements it.
type Source interface {
	Prepare(ctx context.Context) error
	PoseHeader() *pose.Header
	Records(ctx context.Context) iter.Seq2[dataset.Record, error]
}

// Loader produces one lexicon item per SignSuisse record.
type Loader struct {
	Source Source
	Logger logrus.FieldLogger
}

func (l *Loader) logger() logrus.FieldLogger {
	if l.Logger == nil {
		lg := logrus.New()
		lg.SetOutput(io.Discard)
		return lg
	}
	return l.Logger
}

// Produce prepares the source and yields items lazily. The sequence stops
// at the first error, which is yielded last.
func (l *Loader) Produce(ctx context.Context) iter.Seq2[lexicon.Item, error] {
	return func(yield func(lexicon.Item, error) bool) {
		if err := l.Source.Prepare(ctx); err != nil {
			yield(lexicon.Item{}, err)
			return
		}
		header := l.Source.PoseHeader()
		log := l.logger().WithField("dataset", Name)
		log.WithField("points", header.TotalPoints()).Debug("streaming records")

		for rec, err := range l.Source.Records(ctx) {
			if err != nil {
				yield(lexicon.Item{}, err)
				return
			}
			item, err := Translate(header, rec)
			if err != nil {
				log.WithField("id", rec.ID).WithError(err).Error("cannot translate record")
				yield(lexicon.Item{}, err)
				return
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

// Translate maps a source record onto a lexicon item without touching disk.
func Translate(header *pose.Header, rec dataset.Record) (lexicon.Item, error) {
	signed, err := SignedLanguages.Translate(rec.SignedLanguage)
	if err != nil {
		return lexicon.Item{}, errors.Wrapf(err, "record %s", rec.ID)
	}
	p, err := pose.New(header, rec.Pose)
	if err != nil {
		return lexicon.Item{}, errors.Wrapf(err, "record %s", rec.ID)
	}

	rel := pose.RelativePath(string(signed), rec.ID)
	return lexicon.Item{
		Artifact: pose.WriteRequest{Path: rel, Pose: p},
		Entry: lexicon.Entry{
			Path:           rel,
			SpokenLanguage: rec.SpokenLanguage,
			SignedLanguage: signed,
			Words:          norm.NFC.String(rec.Name),
			Glosses:        "",
			Priority:       "",
		},
	}, nil
}
