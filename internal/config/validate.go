package config

import (
	"errors"
	"fmt"
	"strings"

	"aperture/internal/language"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateStages(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.DataRoot == "" {
		return errors.New("paths.data_root must be set")
	}
	if c.Store.Path == "" {
		return errors.New("store.path must be set")
	}
	// Study names become path segments under the data root, so they must
	// match their on-disk directory names exactly.
	for _, study := range c.Studies {
		if strings.ContainsAny(study, `/\`) || study == "." || study == ".." {
			return fmt.Errorf("studies entry %q is not a valid directory name", study)
		}
	}
	return nil
}

func (c *Config) validateStages() error {
	if c.Decrypt.Quota < 1 {
		return errors.New("decrypt.quota must be at least 1")
	}
	if c.FaceQC.MinSuccessRatio > 1 {
		return errors.New("faceqc.min_success_ratio must be between 0 and 1")
	}
	if c.FaceQC.MinConfidence > 1 {
		return errors.New("faceqc.min_confidence must be between 0 and 1")
	}
	if lang := strings.TrimSpace(c.Transcribe.Language); lang != "" && language.Normalize(lang) == "" {
		return fmt.Errorf("transcribe.language %q is not a recognized language code", lang)
	}
	switch c.Report.Format {
	case "json", "text":
	default:
		return fmt.Errorf("report.format must be json or text, got %q", c.Report.Format)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
