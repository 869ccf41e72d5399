package config

const (
	defaultConfigPath       = "~/.config/repack/config.toml"
	defaultStagingDir       = "~/.local/share/repack/staging"
	defaultUploadDir        = "~/.local/share/repack/uploads"
	defaultOutputDir        = "~/.local/share/repack/outputs"
	defaultLogDir           = "~/.local/share/repack/logs"
	defaultHistoryPath      = "~/.local/share/repack/history.db"
	defaultAPIBind          = "127.0.0.1:9999"
	defaultQueueSize        = 64
	defaultCollisionPolicy  = CollisionOverwrite
	defaultMaxEntries       = 100_000
	defaultMaxTotalBytes    = 8 << 30
	defaultMaxEntryBytes    = 4 << 30
	defaultMaxUploadBytes   = 2 << 30
	defaultMinFreeBytes     = 512 << 20
	defaultSweepInterval    = 600
	defaultSweepMaxAge      = 600
	defaultHistoryRetention = 30
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
)

// Output collision policies.
const (
	CollisionOverwrite = "overwrite"
	CollisionRename    = "rename"
	CollisionFail      = "fail"
)

// Default returns a Config populated with repository defaults. Workers is left
// at zero and resolved to the CPU count during normalization.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			UploadDir:  defaultUploadDir,
			OutputDir:  defaultOutputDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Conversion: Conversion{
			QueueSize:       defaultQueueSize,
			CollisionPolicy: defaultCollisionPolicy,
		},
		Limits: Limits{
			MaxEntries:     defaultMaxEntries,
			MaxTotalBytes:  defaultMaxTotalBytes,
			MaxEntryBytes:  defaultMaxEntryBytes,
			MaxUploadBytes: defaultMaxUploadBytes,
			MinFreeBytes:   defaultMinFreeBytes,
		},
		Sweep: Sweep{
			Enabled:         true,
			IntervalSeconds: defaultSweepInterval,
			MaxAgeSeconds:   defaultSweepMaxAge,
		},
		History: History{
			Enabled:       true,
			Path:          defaultHistoryPath,
			RetentionDays: defaultHistoryRetention,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
