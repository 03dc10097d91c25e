package config

const (
	defaultDataRoot           = "~/.local/share/aperture/data"
	defaultLogDir             = "~/.local/share/aperture/logs"
	defaultLockDir            = "~/.local/share/aperture/locks"
	defaultStorePath          = "~/.local/share/aperture/aperture.db"
	defaultSnoozeSeconds      = 1800
	defaultErrorRetrySeconds  = 30
	defaultInterruptGraceSecs = 5
	defaultDecryptBinary      = "openssl"
	defaultDecryptQuota       = 4
	defaultDecryptMaxRetry    = 1
	defaultFFprobeBinary      = "ffprobe"
	defaultFFmpegBinary       = "ffmpeg"
	defaultScreenshots        = 10
	defaultSplitRole          = "single"
	defaultFaceExtBinary      = "FeatureExtraction"
	defaultFaceExtMaxRetry    = 3
	defaultFaceMaxInstances   = 2
	defaultMinSuccessRatio    = 0.90
	defaultMinConfidence      = 0.75
	defaultTranscribeBinary   = "whisperx"
	defaultTranscribeModel    = "small"
	defaultTranscribeLanguage = "en"
	defaultTranscribeRetry    = 3
	defaultReportFormat       = "json"
	defaultNotifyTimeoutSecs  = 10
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataRoot: defaultDataRoot,
			LogDir:   defaultLogDir,
			LockDir:  defaultLockDir,
		},
		Store: Store{
			Path: defaultStorePath,
		},
		Workflow: Workflow{
			SnoozeSeconds:      defaultSnoozeSeconds,
			ErrorRetrySeconds:  defaultErrorRetrySeconds,
			InterruptGraceSecs: defaultInterruptGraceSecs,
		},
		Decrypt: Decrypt{
			Binary:   defaultDecryptBinary,
			Quota:    defaultDecryptQuota,
			MaxRetry: defaultDecryptMaxRetry,
		},
		Metadata: Metadata{
			FFprobeBinary: defaultFFprobeBinary,
		},
		QuickQC: QuickQC{
			FFmpegBinary: defaultFFmpegBinary,
			Screenshots:  defaultScreenshots,
		},
		Split: Split{
			FFmpegBinary: defaultFFmpegBinary,
			DefaultRole:  defaultSplitRole,
		},
		FaceExt: FaceExt{
			Binary:       defaultFaceExtBinary,
			MaxRetry:     defaultFaceExtMaxRetry,
			MaxInstances: defaultFaceMaxInstances,
			Overlay:      true,
			FFmpegBinary: defaultFFmpegBinary,
		},
		FaceQC: FaceQC{
			MinSuccessRatio: defaultMinSuccessRatio,
			MinConfidence:   defaultMinConfidence,
		},
		Transcribe: Transcribe{
			Binary:   defaultTranscribeBinary,
			Model:    defaultTranscribeModel,
			Language: defaultTranscribeLanguage,
			MaxRetry: defaultTranscribeRetry,
		},
		Report: Report{
			Format: defaultReportFormat,
		},
		Notify: Notify{
			TimeoutSeconds: defaultNotifyTimeoutSecs,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
