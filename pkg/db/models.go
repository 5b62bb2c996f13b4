package db

import (
	"time"

	"github.com/spokentosigned/lexicon/pkg/pose"
)

// Config is one cached build of a dataset. Name is the cache-busting
// identifier; a new name always means a fresh download.
type Config struct {
	ID          int64
	Name        string
	Version     string
	Layout      string
	CreatedAt   time.Time
	CompletedAt *time.Time
	RecordCount int
	// Header is the raw pose header shared by every record.
	Header []byte
}

// Complete reports whether every record of the config has been stored.
func (c Config) Complete() bool { return c.CompletedAt != nil && len(c.Header) > 0 }

// Record is a cached source record with its decoded pose body.
type Record struct {
	ID             string
	Name           string
	SpokenLanguage string
	SignedLanguage string
	Pose           *pose.Body
}
