package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeConversion()
	c.normalizeLimits()
	c.normalizeSweep()
	if err := c.normalizeHistory(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		key   string
		value *string
		def   string
	}{
		{"paths.staging_dir", &c.Paths.StagingDir, defaultStagingDir},
		{"paths.upload_dir", &c.Paths.UploadDir, defaultUploadDir},
		{"paths.output_dir", &c.Paths.OutputDir, defaultOutputDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
	}
	for _, f := range fields {
		if strings.TrimSpace(*f.value) == "" {
			*f.value = f.def
		}
		expanded, err := expandPath(strings.TrimSpace(*f.value))
		if err != nil {
			return fmt.Errorf("%s: %w", f.key, err)
		}
		*f.value = expanded
	}

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("REPACK_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeConversion() {
	if c.Conversion.Workers <= 0 {
		c.Conversion.Workers = runtime.NumCPU()
	}
	if c.Conversion.QueueSize <= 0 {
		c.Conversion.QueueSize = defaultQueueSize
	}
	c.Conversion.CollisionPolicy = strings.ToLower(strings.TrimSpace(c.Conversion.CollisionPolicy))
	if c.Conversion.CollisionPolicy == "" {
		c.Conversion.CollisionPolicy = defaultCollisionPolicy
	}
	c.Conversion.SevenZipBinary = strings.TrimSpace(c.Conversion.SevenZipBinary)
	if c.Conversion.SevenZipBinary == "" {
		if value, ok := os.LookupEnv("REPACK_SEVENZIP"); ok {
			c.Conversion.SevenZipBinary = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLimits() {
	if c.Limits.MaxEntries < 0 {
		c.Limits.MaxEntries = 0
	}
	if c.Limits.MaxTotalBytes < 0 {
		c.Limits.MaxTotalBytes = 0
	}
	if c.Limits.MaxEntryBytes < 0 {
		c.Limits.MaxEntryBytes = 0
	}
	if c.Limits.MaxUploadBytes <= 0 {
		c.Limits.MaxUploadBytes = defaultMaxUploadBytes
	}
	if c.Limits.MinFreeBytes < 0 {
		c.Limits.MinFreeBytes = 0
	}
}

func (c *Config) normalizeSweep() {
	if c.Sweep.IntervalSeconds <= 0 {
		c.Sweep.IntervalSeconds = defaultSweepInterval
	}
	if c.Sweep.MaxAgeSeconds <= 0 {
		c.Sweep.MaxAgeSeconds = defaultSweepMaxAge
	}
}

func (c *Config) normalizeHistory() error {
	if strings.TrimSpace(c.History.Path) == "" {
		c.History.Path = defaultHistoryPath
	}
	expanded, err := expandPath(strings.TrimSpace(c.History.Path))
	if err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	c.History.Path = expanded
	if c.History.RetentionDays < 0 {
		c.History.RetentionDays = 0
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// SweepInterval returns the sweep cadence as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Sweep.IntervalSeconds) * time.Second
}

// SweepMaxAge returns the age after which uploads and idle staging areas are removed.
func (c *Config) SweepMaxAge() time.Duration {
	return time.Duration(c.Sweep.MaxAgeSeconds) * time.Second
}

// HistoryRetention returns how long history rows are kept. Zero keeps them forever.
func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.History.RetentionDays) * 24 * time.Hour
}
