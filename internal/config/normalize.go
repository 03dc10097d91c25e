package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStudies()
	c.normalizeWorkflow()
	if err := c.normalizeStages(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataRoot, err = expandPath(c.Paths.DataRoot); err != nil {
		return fmt.Errorf("paths.data_root: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LockDir) == "" {
		c.Paths.LockDir = defaultLockDir
	}
	if c.Paths.LockDir, err = expandPath(c.Paths.LockDir); err != nil {
		return fmt.Errorf("paths.lock_dir: %w", err)
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		c.Store.Path = defaultStorePath
	}
	if c.Store.Path, err = expandPath(c.Store.Path); err != nil {
		return fmt.Errorf("store.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeStudies() {
	if len(c.Studies) == 0 {
		return
	}
	studies := make([]string, 0, len(c.Studies))
	seen := make(map[string]struct{}, len(c.Studies))
	for _, study := range c.Studies {
		trimmed := strings.TrimSpace(study)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		studies = append(studies, trimmed)
	}
	c.Studies = studies
}

func (c *Config) normalizeWorkflow() {
	// Zero is meaningful for snooze (one-shot mode); only negatives fall back.
	if c.Workflow.SnoozeSeconds < 0 {
		c.Workflow.SnoozeSeconds = defaultSnoozeSeconds
	}
	if c.Workflow.ErrorRetrySeconds <= 0 {
		c.Workflow.ErrorRetrySeconds = defaultErrorRetrySeconds
	}
	if c.Workflow.InterruptGraceSecs <= 0 {
		c.Workflow.InterruptGraceSecs = defaultInterruptGraceSecs
	}
}

func (c *Config) normalizeStages() error {
	var err error
	c.Decrypt.Binary = strings.TrimSpace(c.Decrypt.Binary)
	if c.Decrypt.Binary == "" {
		c.Decrypt.Binary = defaultDecryptBinary
	}
	if c.Decrypt.KeyFile != "" {
		if c.Decrypt.KeyFile, err = expandPath(c.Decrypt.KeyFile); err != nil {
			return fmt.Errorf("decrypt.key_file: %w", err)
		}
	}
	if c.Decrypt.Quota <= 0 {
		c.Decrypt.Quota = defaultDecryptQuota
	}
	if c.Decrypt.MaxRetry <= 0 {
		c.Decrypt.MaxRetry = defaultDecryptMaxRetry
	}

	c.Metadata.FFprobeBinary = strings.TrimSpace(c.Metadata.FFprobeBinary)
	if c.Metadata.FFprobeBinary == "" {
		c.Metadata.FFprobeBinary = defaultFFprobeBinary
	}

	c.QuickQC.FFmpegBinary = strings.TrimSpace(c.QuickQC.FFmpegBinary)
	if c.QuickQC.FFmpegBinary == "" {
		c.QuickQC.FFmpegBinary = defaultFFmpegBinary
	}
	if c.QuickQC.Screenshots <= 0 {
		c.QuickQC.Screenshots = defaultScreenshots
	}

	c.Split.FFmpegBinary = strings.TrimSpace(c.Split.FFmpegBinary)
	if c.Split.FFmpegBinary == "" {
		c.Split.FFmpegBinary = defaultFFmpegBinary
	}
	c.Split.DefaultRole = strings.TrimSpace(c.Split.DefaultRole)
	if c.Split.DefaultRole == "" {
		c.Split.DefaultRole = defaultSplitRole
	}

	c.FaceExt.Binary = strings.TrimSpace(c.FaceExt.Binary)
	if c.FaceExt.Binary == "" {
		c.FaceExt.Binary = defaultFaceExtBinary
	}
	if c.FaceExt.MaxRetry <= 0 {
		c.FaceExt.MaxRetry = defaultFaceExtMaxRetry
	}
	if c.FaceExt.MaxInstances <= 0 {
		c.FaceExt.MaxInstances = defaultFaceMaxInstances
	}
	c.FaceExt.FFmpegBinary = strings.TrimSpace(c.FaceExt.FFmpegBinary)
	if c.FaceExt.FFmpegBinary == "" {
		c.FaceExt.FFmpegBinary = defaultFFmpegBinary
	}

	if c.FaceQC.MinSuccessRatio <= 0 {
		c.FaceQC.MinSuccessRatio = defaultMinSuccessRatio
	}
	if c.FaceQC.MinConfidence <= 0 {
		c.FaceQC.MinConfidence = defaultMinConfidence
	}

	c.Transcribe.Binary = strings.TrimSpace(c.Transcribe.Binary)
	if c.Transcribe.Binary == "" {
		c.Transcribe.Binary = defaultTranscribeBinary
	}
	c.Transcribe.Model = strings.TrimSpace(c.Transcribe.Model)
	if c.Transcribe.Model == "" {
		c.Transcribe.Model = defaultTranscribeModel
	}
	c.Transcribe.Language = strings.ToLower(strings.TrimSpace(c.Transcribe.Language))
	if c.Transcribe.Language == "" {
		c.Transcribe.Language = defaultTranscribeLanguage
	}
	if c.Transcribe.MaxRetry <= 0 {
		c.Transcribe.MaxRetry = defaultTranscribeRetry
	}

	c.Report.Format = strings.ToLower(strings.TrimSpace(c.Report.Format))
	if c.Report.Format == "" {
		c.Report.Format = defaultReportFormat
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
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = defaultLogRetentionDays
	}
}
