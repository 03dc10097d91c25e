// Package ingest walks the raw trees and registers encrypted sources in the
// inventory. Scans are idempotent: re-running refreshes size and mtime but
// never touches operator decisions on a row.
package ingest

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"aperture/internal/config"
	"aperture/internal/logging"
	"aperture/internal/naming"
	"aperture/internal/store"
)

// Scanner registers encrypted source files for the configured studies.
type Scanner struct {
	store  *store.Store
	cfg    *config.Config
	logger *slog.Logger

	observer func(done, total int)
}

func NewScanner(cfg *config.Config, st *store.Store, logger *slog.Logger) *Scanner {
	return &Scanner{
		store:  st,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "ingest"),
	}
}

// WithObserver registers a hook called after each registered file, for
// progress output.
func (s *Scanner) WithObserver(observer func(done, total int)) {
	s.observer = observer
}

// Result summarizes one scan.
type Result struct {
	// Scanned counts encrypted files found under the raw trees.
	Scanned int
	// Registered counts inventory upserts, including refreshed rows.
	Registered int
	// Skipped counts encrypted files whose path does not follow the raw
	// tree convention.
	Skipped int
	// MissingRoots lists studies whose raw tree does not exist yet.
	MissingRoots []string
}

type candidate struct {
	path string
	info fs.FileInfo
}

// Scan walks every configured study's raw tree and upserts each encrypted
// file into the inventory. Store failures abort the scan; unparseable paths
// and absent roots are counted and skipped.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	result := &Result{}
	var candidates []candidate

	for _, study := range s.cfg.Studies {
		root := naming.RawRoot(s.cfg.Paths.DataRoot, study)
		if _, err := os.Stat(root); err != nil {
			result.MissingRoots = append(result.MissingRoots, study)
			s.logger.Warn("raw tree absent; skipping study",
				logging.String(logging.FieldStudy, study),
				logging.String("root", root))
			continue
		}

		err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if entry.IsDir() || !naming.IsEncrypted(entry.Name()) {
				return nil
			}
			info, infoErr := entry.Info()
			if infoErr != nil {
				// Vanished mid-walk; the next scan will see it.
				return nil
			}
			candidates = append(candidates, candidate{path: path, info: info})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	result.Scanned = len(candidates)
	for i, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.register(ctx, result, cand); err != nil {
			return result, err
		}
		if s.observer != nil {
			s.observer(i+1, len(candidates))
		}
	}

	s.logger.Info("ingest scan complete",
		logging.Int("studies", len(s.cfg.Studies)),
		logging.Int("scanned", result.Scanned),
		logging.Int("registered", result.Registered),
		logging.Int("skipped", result.Skipped),
		logging.Int("missing_roots", len(result.MissingRoots)))
	return result, nil
}

func (s *Scanner) register(ctx context.Context, result *Result, cand candidate) error {
	parsed, err := naming.ParseSourcePath(s.cfg.Paths.DataRoot, cand.path)
	if err != nil {
		result.Skipped++
		s.logger.Warn("source path does not match the raw tree convention",
			logging.String("path", cand.path), logging.Error(err))
		return nil
	}
	if parsed.FileTag == "" {
		s.logger.Warn("source has an unclassified extension",
			logging.String("path", cand.path),
			logging.String(logging.FieldStudy, parsed.Study))
	}

	if err := s.store.RegisterSourceFile(ctx, &store.InterviewFile{
		FilePath:      cand.path,
		Study:         parsed.Study,
		InterviewName: parsed.InterviewName,
		InterviewType: parsed.InterviewType,
		FileTag:       parsed.FileTag,
		FileSize:      cand.info.Size(),
		FileMtime:     cand.info.ModTime(),
	}); err != nil {
		return err
	}
	result.Registered++
	return nil
}
