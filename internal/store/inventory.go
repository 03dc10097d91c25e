package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// RegisterSourceFile upserts one encrypted source into the inventory. Rescans
// refresh size and mtime but never touch operator decisions (ignored,
// duplicate_of).
func (s *Store) RegisterSourceFile(ctx context.Context, item *InterviewFile) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO interview_files
		(file_path, study, interview_name, interview_type, file_tag, file_size, file_mtime, ignored, duplicate_of, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			file_size = excluded.file_size,
			file_mtime = excluded.file_mtime`,
		item.FilePath,
		item.Study,
		item.InterviewName,
		item.InterviewType,
		item.FileTag,
		item.FileSize,
		timestamp(item.FileMtime),
		boolToInt(item.Ignored),
		nullableString(item.DuplicateOf),
		timestamp(item.RegisteredAt),
	)
	if err != nil {
		return fmt.Errorf("register source file: %w", err)
	}
	return nil
}

// GetInterviewFile fetches one inventory row by path. Returns nil when absent.
func (s *Store) GetInterviewFile(ctx context.Context, filePath string) (*InterviewFile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT file_path, study, interview_name, interview_type, file_tag, file_size, file_mtime, ignored, duplicate_of, registered_at
		FROM interview_files WHERE file_path = ?`, filePath)
	item, err := scanInterviewFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get interview file: %w", err)
	}
	return item, nil
}

// SetSourceIgnored flips the operator ignore flag on one source file.
func (s *Store) SetSourceIgnored(ctx context.Context, filePath string, ignored bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE interview_files SET ignored = ? WHERE file_path = ?`,
		boolToInt(ignored), filePath)
	if err != nil {
		return fmt.Errorf("set ignored: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set ignored rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("source file not registered: %s", filePath)
	}
	return nil
}

// MarkPrimarySource disambiguates a duplicate-upload group: every other active
// member of the primary's group gets duplicate_of pointed at the primary,
// which makes the group claimable again.
func (s *Store) MarkPrimarySource(ctx context.Context, primaryPath string) error {
	primary, err := s.GetInterviewFile(ctx, primaryPath)
	if err != nil {
		return err
	}
	if primary == nil {
		return fmt.Errorf("source file not registered: %s", primaryPath)
	}

	_, err = s.db.ExecContext(ctx, `UPDATE interview_files SET duplicate_of = ?
		WHERE study = ? AND interview_name = ? AND interview_type = ?
		AND COALESCE(file_tag, '') = ?
		AND file_path != ?`,
		primary.FilePath,
		primary.Study,
		primary.InterviewName,
		primary.InterviewType,
		primary.FileTag,
		primary.FilePath,
	)
	if err != nil {
		return fmt.Errorf("mark primary: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `UPDATE interview_files SET duplicate_of = NULL WHERE file_path = ?`, primary.FilePath)
	if err != nil {
		return fmt.Errorf("clear primary flag: %w", err)
	}
	return nil
}

// ListSourceFiles returns the inventory, optionally filtered to one study.
func (s *Store) ListSourceFiles(ctx context.Context, study string) ([]*InterviewFile, error) {
	query := `SELECT file_path, study, interview_name, interview_type, file_tag, file_size, file_mtime, ignored, duplicate_of, registered_at
		FROM interview_files`
	var args []any
	if study != "" {
		query += ` WHERE study = ?`
		args = append(args, study)
	}
	query += ` ORDER BY study, interview_name, file_path`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list source files: %w", err)
	}
	defer rows.Close()

	var items []*InterviewFile
	for rows.Next() {
		item, scanErr := scanInterviewFile(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan source file: %w", scanErr)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListAmbiguousSources returns active source files whose (study, interview,
// type, tag) group has more than one active member. These stay out of the
// decrypt queue until an operator marks a primary.
func (s *Store) ListAmbiguousSources(ctx context.Context) ([]*InterviewFile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT f.file_path, f.study, f.interview_name, f.interview_type, f.file_tag, f.file_size, f.file_mtime, f.ignored, f.duplicate_of, f.registered_at
		FROM interview_files f
		WHERE f.ignored = 0 AND f.duplicate_of IS NULL
		AND NOT `+unambiguousSourceCondition+`
		ORDER BY f.study, f.interview_name, f.file_path`)
	if err != nil {
		return nil, fmt.Errorf("list ambiguous sources: %w", err)
	}
	defer rows.Close()

	var items []*InterviewFile
	for rows.Next() {
		item, scanErr := scanInterviewFile(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan ambiguous source: %w", scanErr)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
