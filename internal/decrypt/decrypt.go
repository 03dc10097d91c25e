// Package decrypt implements the gate-driven decryption stage. Downstream
// workers request the decryption gate when their queues run dry; while the
// gate is open this stage drains up to a configured quota of registered
// sources per cycle, then closes the gate again.
package decrypt

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"aperture/internal/config"
	"aperture/internal/gate"
	"aperture/internal/logging"
	"aperture/internal/naming"
	"aperture/internal/retry"
	"aperture/internal/services"
	"aperture/internal/stage"
	"aperture/internal/store"
)

const stageName = "decrypt"

// Decryptor drains the encrypted source inventory while the decryption gate
// is open. It implements stage.Handler for the shared worker loop.
type Decryptor struct {
	store      *store.Store
	cfg        *config.Config
	configPath string
	gates      *gate.Controller
	logger     *slog.Logger

	// drained counts completed decryptions in the current gate cycle. Stage
	// workers are single-threaded, so a plain int is enough.
	drained int

	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewDecryptor wires the stage against live collaborators. configPath may be
// empty; when set, the per-cycle quota is re-read from the file so operators
// can retune a long drain without restarting the worker.
func NewDecryptor(cfg *config.Config, st *store.Store, gates *gate.Controller, configPath string, logger *slog.Logger) *Decryptor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Decryptor{
		store:      st,
		cfg:        cfg,
		configPath: configPath,
		gates:      gates,
		logger:     logging.NewComponentLogger(logger, stageName),
	}
}

// WithCommandRunner overrides subprocess execution, for tests.
func (d *Decryptor) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	d.commandRunner = runner
}

// Name identifies this stage in logs and status output.
func (d *Decryptor) Name() string { return stageName }

type item struct {
	file *store.InterviewFile
}

func (i item) Key() string { return i.file.FilePath }

// Claim consults the gate before the queue. A closed gate means no work
// regardless of pending sources; an open gate yields sources until the cycle
// quota is met, at which point the gate is completed. A drained queue leaves
// the gate open so new arrivals decrypt on the next poll.
func (d *Decryptor) Claim(ctx context.Context) (stage.Item, error) {
	enabled, err := d.gates.Check(ctx, gate.Decryption)
	if err != nil {
		return nil, err
	}
	if !enabled {
		d.drained = 0
		return nil, nil
	}

	if quota := d.quota(); d.drained >= quota {
		d.logger.Info("decryption quota reached; completing gate", logging.Int("quota", quota))
		if err := d.gates.Complete(ctx, gate.Decryption); err != nil {
			return nil, err
		}
		d.drained = 0
		return nil, nil
	}

	file, err := d.store.NextDecryptCandidate(ctx, d.cfg.Studies)
	if err != nil {
		return nil, err
	}
	if file == nil {
		d.drained = 0
		return nil, nil
	}
	return item{file: file}, nil
}

// Process decrypts one source into the study's decrypted tree. The
// destination is derived from the inventory row and uniquified while a file
// already occupies the candidate path, so an earlier copy is never clobbered.
func (d *Decryptor) Process(ctx context.Context, it stage.Item) error {
	claimed, ok := it.(item)
	if !ok {
		return services.Wrap(services.ErrValidation, stageName, "process",
			fmt.Sprintf("unexpected item type %T", it), nil)
	}
	file := claimed.file
	logger := logging.WithContext(ctx, d.logger)

	keyFile := d.cfg.Decrypt.KeyFile
	if _, err := os.Stat(keyFile); err != nil {
		return services.Wrap(services.ErrConfiguration, stageName, "read key file",
			fmt.Sprintf("decryption key %s is not readable", keyFile), err)
	}
	if _, err := os.Stat(file.FilePath); err != nil {
		return services.Wrap(services.ErrIntegrity, stageName, "verify source",
			fmt.Sprintf("registered source %s is missing on disk", file.FilePath), err)
	}

	plainName := strings.TrimSuffix(filepath.Base(file.FilePath), naming.EncryptedSuffix)
	dest := naming.Uniquify(naming.DecryptedPath(
		d.cfg.Paths.DataRoot, file.Study, file.InterviewType, file.InterviewName, plainName))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return services.Wrap(services.ErrTransient, stageName, "create destination directory",
			filepath.Dir(dest), err)
	}

	started := time.Now()
	supervisor := retry.Supervisor{
		Stage:       stageName,
		MaxAttempts: d.cfg.Decrypt.MaxRetry,
		Cleanup: func(context.Context) error {
			return removeIfPresent(dest)
		},
		Logger: logger,
	}
	err := supervisor.Run(ctx, file.FilePath, func(ctx context.Context, attempt int) error {
		return d.run(ctx, d.cfg.Decrypt.Binary,
			"enc", "-d", "-aes-256-cbc", "-pbkdf2",
			"-pass", "file:"+keyFile,
			"-in", file.FilePath,
			"-out", dest)
	})
	if err != nil {
		return err
	}

	if _, err := os.Stat(dest); err != nil {
		return services.Wrap(services.ErrIntegrity, stageName, "verify output",
			fmt.Sprintf("tool reported success but %s is missing", dest), err)
	}

	record := &store.DecryptedFile{
		SourcePath:      file.FilePath,
		DestinationPath: dest,
		Study:           file.Study,
		InterviewName:   file.InterviewName,
		FileTag:         file.FileTag,
		RequestedBy:     "pipeline",
		ProcessSeconds:  time.Since(started).Seconds(),
	}
	if err := d.store.RecordDecryptedFile(ctx, record); err != nil {
		if services.IsContention(err) {
			// Another worker finished this source first; drop our copy.
			_ = removeIfPresent(dest)
		}
		return err
	}

	d.drained++
	logger.Info("source decrypted",
		logging.String("destination", dest),
		logging.String("tag", file.FileTag),
		logging.Int("cycle_count", d.drained),
		logging.Duration("elapsed", time.Since(started)))
	return nil
}

// HealthCheck verifies key material, the decryption tool, and the store.
func (d *Decryptor) HealthCheck(ctx context.Context) stage.Health {
	if d.cfg == nil {
		return stage.Unhealthy(stageName, "configuration unavailable")
	}
	if _, err := os.Stat(d.cfg.Decrypt.KeyFile); err != nil {
		return stage.Unhealthyf(stageName, "decryption key %s not readable: %v", d.cfg.Decrypt.KeyFile, err)
	}
	if _, err := exec.LookPath(d.cfg.Decrypt.Binary); err != nil {
		return stage.Unhealthyf(stageName, "decryption binary %q not found in PATH", d.cfg.Decrypt.Binary)
	}
	if err := d.store.Ping(ctx); err != nil {
		return stage.Unhealthyf(stageName, "store unreachable: %v", err)
	}
	return stage.Healthy(stageName)
}

// quota returns the per-cycle decryption budget, re-read from the config file
// when one is wired.
func (d *Decryptor) quota() int {
	quota := d.cfg.Decrypt.Quota
	if d.configPath != "" {
		fresh, _, exists, err := config.Load(d.configPath)
		if err != nil {
			d.logger.Warn("config re-read failed; keeping current quota", logging.Error(err))
		} else if exists {
			d.cfg = fresh
			quota = fresh.Decrypt.Quota
		}
	}
	if quota < 1 {
		quota = 1
	}
	return quota
}

func (d *Decryptor) run(ctx context.Context, name string, args ...string) error {
	if d.commandRunner != nil {
		return d.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func removeIfPresent(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
