// Package dataset fetches a published sign language dataset from its mirror,
// caches it in sqlite under a cache-busting config name and streams the
// cached records back one at a time.
package dataset

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/spokentosigned/lexicon/pkg/db"
)

// HolisticLayout is the MediaPipe Holistic skeleton, the only pose layout
// the mirrors publish.
const HolisticLayout = "holistic"

// DateFormat is how run dates become config names.
const DateFormat = "2006-01-02"

// ErrUnsupportedConfig is returned for configurations no mirror can serve.
var ErrUnsupportedConfig = errors.New("unsupported dataset config")

// Record is a source record as stored in the cache.
type Record = db.Record

// Config selects what to fetch. Name identifies a cache entry: a new name
// forces a fresh download, the same name reuses what is cached.
type Config struct {
	Name         string
	Version      string
	IncludeVideo bool
	IncludePose  string
}

// ConfigForDate returns a pose-only config named after the run date.
func ConfigForDate(date time.Time, version string) Config {
	return Config{
		Name:         date.Format(DateFormat),
		Version:      version,
		IncludeVideo: false,
		IncludePose:  HolisticLayout,
	}
}

// Validate rejects configs that cannot be served.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.Wrap(ErrUnsupportedConfig, "empty config name")
	}
	if c.IncludeVideo {
		return errors.Wrap(ErrUnsupportedConfig, "video is not available")
	}
	if c.IncludePose != HolisticLayout {
		return errors.Wrapf(ErrUnsupportedConfig, "pose layout %q", c.IncludePose)
	}
	return nil
}
