package store

import (
	"context"
	"fmt"
)

// DecryptedFilesForInterview lists the decrypted files of one interview, the
// anchor from which a wipe manifest fans out.
func (s *Store) DecryptedFilesForInterview(ctx context.Context, study, interviewName string) ([]*DecryptedFile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source_path, destination_path, study, interview_name, file_tag, requested_by, process_seconds, decrypted_at
		FROM decrypted_files WHERE study = ? AND interview_name = ? ORDER BY destination_path`, study, interviewName)
	if err != nil {
		return nil, fmt.Errorf("list decrypted files: %w", err)
	}
	defer rows.Close()

	var items []*DecryptedFile
	for rows.Next() {
		item, scanErr := scanDecryptedFile(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan decrypted file: %w", scanErr)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// StreamsForVideo lists the role streams split out of one source video.
func (s *Store) StreamsForVideo(ctx context.Context, videoPath string) ([]*VideoStream, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT stream_path, video_path, study, interview_name, role, process_seconds, split_at
		FROM video_streams WHERE video_path = ? ORDER BY stream_path`, videoPath)
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	defer rows.Close()

	var items []*VideoStream
	for rows.Next() {
		item, scanErr := scanVideoStream(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan stream: %w", scanErr)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// deleteRow removes one keyed row. Absent rows are a no-op so a re-wipe stays
// safe.
func (s *Store) deleteRow(ctx context.Context, table, keyColumn, key string) (int64, error) {
	result, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, keyColumn), key)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete from %s rows: %w", table, err)
	}
	return affected, nil
}

func (s *Store) DeleteReportRow(ctx context.Context, interviewName string) (int64, error) {
	return s.deleteRow(ctx, "reports", "interview_name", interviewName)
}

func (s *Store) DeleteFaceLoadRow(ctx context.Context, interviewName string) (int64, error) {
	return s.deleteRow(ctx, "face_loads", "interview_name", interviewName)
}

func (s *Store) DeleteTranscriptRow(ctx context.Context, audioPath string) (int64, error) {
	return s.deleteRow(ctx, "transcripts", "audio_path", audioPath)
}

func (s *Store) DeleteFaceQCRow(ctx context.Context, streamPath string) (int64, error) {
	return s.deleteRow(ctx, "face_qc", "stream_path", streamPath)
}

func (s *Store) DeleteFaceRunRow(ctx context.Context, streamPath string) (int64, error) {
	return s.deleteRow(ctx, "face_runs", "stream_path", streamPath)
}

// DeleteStreamRows removes every stream row of one source video.
func (s *Store) DeleteStreamRows(ctx context.Context, videoPath string) (int64, error) {
	return s.deleteRow(ctx, "video_streams", "video_path", videoPath)
}

func (s *Store) DeleteQuickQCRow(ctx context.Context, videoPath string) (int64, error) {
	return s.deleteRow(ctx, "video_quickqc", "video_path", videoPath)
}

func (s *Store) DeleteMetadataProbeRow(ctx context.Context, filePath string) (int64, error) {
	return s.deleteRow(ctx, "metadata_probes", "file_path", filePath)
}

func (s *Store) DeleteDecryptedFileRow(ctx context.Context, sourcePath string) (int64, error) {
	return s.deleteRow(ctx, "decrypted_files", "source_path", sourcePath)
}
