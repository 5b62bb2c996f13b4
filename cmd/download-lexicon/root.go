package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/spokentosigned/lexicon/pkg/dataset"
	"github.com/spokentosigned/lexicon/pkg/pipeline"
)

const envPrefix = "LEXICON"

type options struct {
	name          string
	directory     string
	sourceURL     string
	cacheDir      string
	runDate       string
	s3            dataset.S3Options
	logLevel      string
	logFormat     string
	progressEvery int
}

// NewRootCommand builds the download-lexicon command.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var o options
	driver := pipeline.NewDriver(nil)

	rc := &cobra.Command{
		Use:   "download-lexicon",
		Short: "Download a sign language dataset into a lexicon directory.",
		Long: `Download a sign language dataset into a lexicon directory.

Every record becomes a .pose file under <directory>/<signed language>/ and a
row in <directory>/index.csv. The index is appended to on later runs.

Known datasets: ` + strings.Join(driver.Names(), ", ") + "\n",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setAllConfig(viper.New(), cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(stderr, o.logLevel, o.logFormat)
			if err != nil {
				return err
			}
			driver.Logger = logger
			return run(cmd, driver, o, logger, stdout)
		},
	}
	rc.SetIn(stdin)
	rc.SetOut(stdout)
	rc.SetErr(stderr)

	flags := rc.Flags()
	flags.StringVar(&o.name, "name", "", "Dataset to download ("+strings.Join(driver.Names(), ", ")+")")
	flags.StringVar(&o.directory, "directory", "", "Lexicon directory to write into")
	flags.StringVar(&o.sourceURL, "source-url", "", "Dataset mirror: http(s)://host/path, s3://bucket/prefix or a local directory")
	flags.StringVar(&o.cacheDir, "cache-dir", defaultCacheDir(), "Directory holding the dataset caches")
	flags.StringVar(&o.runDate, "run-date", "", "Cache key date as YYYY-MM-DD (default today)")
	flags.StringVar(&o.s3.Endpoint, "s3-endpoint", "", "Endpoint for s3:// sources (default s3.amazonaws.com)")
	flags.StringVar(&o.s3.AccessKey, "s3-access-key", "", "Access key for s3:// sources")
	flags.StringVar(&o.s3.SecretKey, "s3-secret-key", "", "Secret key for s3:// sources")
	flags.BoolVar(&o.s3.Insecure, "s3-insecure", false, "Use plain HTTP for s3:// sources")
	flags.StringVar(&o.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&o.logFormat, "log-format", "text", "Log format (text or json)")
	flags.IntVar(&o.progressEvery, "progress-every", 500, "Log progress every N entries, 0 disables")
	flags.StringP("config", "c", "", "Configuration file to read from.")
	return rc
}

func run(cmd *cobra.Command, driver *pipeline.Driver, o options, logger *logrus.Logger, stdout io.Writer) error {
	if o.name == "" {
		return errors.New("--name is required")
	}
	if o.directory == "" {
		return errors.New("--directory is required")
	}
	if _, err := driver.Lookup(o.name); err != nil {
		return errors.Wrapf(err, "choose one of %s", strings.Join(driver.Names(), ", "))
	}
	runDate, err := parseRunDate(o.runDate)
	if err != nil {
		return err
	}

	opts := pipeline.Options{
		SourceURL: o.sourceURL,
		S3:        o.s3,
		CacheDir:  o.cacheDir,
		RunDate:   runDate,
		Logger:    logger.WithField("dataset", o.name),
	}
	if o.progressEvery > 0 {
		every := o.progressEvery
		opts.OnCacheProgress = func(n int) {
			if n%every == 0 {
				logger.WithField("records", n).Info("caching dataset")
			}
		}
		driver.OnProgress = func(n int) {
			if n%every == 0 {
				logger.WithField("entries", n).Info("writing lexicon")
			}
		}
	}

	res, err := driver.Run(cmd.Context(), o.name, o.directory, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Added entries to %s\n", res.IndexPath)
	return nil
}

func newLogger(out io.Writer, level, format string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "--log-level")
	}
	logger.SetLevel(lvl)
	switch format {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, errors.Errorf("--log-format must be text or json, got %q", format)
	}
	return logger, nil
}

func parseRunDate(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(dataset.DateFormat, s)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "--run-date")
	}
	return t, nil
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "spoken-to-signed")
}

// setAllConfig applies flag values from the command line, then the
// environment, then a TOML config file, in that priority order.
// Environment variables are the flag names upper-cased, dashes replaced by
// underscores, prefixed with LEXICON_.
func setAllConfig(v *viper.Viper, flags *pflag.FlagSet) error {
	if err := v.BindPFlags(flags); err != nil {
		return err
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	validTags := make(map[string]bool)
	flags.VisitAll(func(f *pflag.Flag) {
		validTags[f.Name] = true
	})

	if c := v.GetString("config"); c != "" {
		v.SetConfigFile(c)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading configuration file '%s': %v", c, err)
		}
		for _, key := range v.AllKeys() {
			if !validTags[key] {
				return fmt.Errorf("invalid option in configuration file: %v", key)
			}
		}
	}

	var flagErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if flagErr != nil || f.Changed {
			return
		}
		flagErr = f.Value.Set(v.GetString(f.Name))
	})
	return flagErr
}
