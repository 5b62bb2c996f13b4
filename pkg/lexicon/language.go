package lexicon

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

// SignedLanguage is a standardized three-letter signed language tag.
type SignedLanguage string

const (
	SwissGermanSignLanguage  SignedLanguage = "sgg"
	SwissFrenchSignLanguage  SignedLanguage = "ssr"
	SwissItalianSignLanguage SignedLanguage = "slf"
)

// ErrUnknownSignedLanguage is returned when a source code has no mapping.
var ErrUnknownSignedLanguage = errors.New("unknown signed language code")

// UnknownSignedLanguageError carries the offending source code.
type UnknownSignedLanguageError struct {
	Code string
}

func (e *UnknownSignedLanguageError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnknownSignedLanguage, e.Code)
}

func (e *UnknownSignedLanguageError) Unwrap() error { return ErrUnknownSignedLanguage }

// LanguageTable maps source-dataset regional codes to signed language tags.
// Lookups are partial: codes outside the table fail instead of passing through.
type LanguageTable map[string]SignedLanguage

// Translate returns the tag mapped from code, or an *UnknownSignedLanguageError.
func (t LanguageTable) Translate(code string) (SignedLanguage, error) {
	lang, ok := t[code]
	if !ok {
		return "", &UnknownSignedLanguageError{Code: code}
	}
	return lang, nil
}

// Codes returns the source codes known to the table, sorted.
func (t LanguageTable) Codes() []string {
	codes := make([]string, 0, len(t))
	for c := range t {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
