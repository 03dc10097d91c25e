package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// RecordDecryptedFile inserts the completion row for one decrypted source.
// A duplicate key means another worker decrypted it first and surfaces as
// services.ErrContention.
func (s *Store) RecordDecryptedFile(ctx context.Context, item *DecryptedFile) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO decrypted_files
		(source_path, destination_path, study, interview_name, file_tag, requested_by, process_seconds, decrypted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.SourcePath,
		item.DestinationPath,
		item.Study,
		item.InterviewName,
		item.FileTag,
		item.RequestedBy,
		item.ProcessSeconds,
		timestamp(item.DecryptedAt),
	)
	if err != nil {
		return contentionError("decrypt", "record decrypted file", item.SourcePath, err)
	}
	return nil
}

// GetDecryptedFile fetches one decrypted file by its destination path.
// Returns nil when absent.
func (s *Store) GetDecryptedFile(ctx context.Context, destinationPath string) (*DecryptedFile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT source_path, destination_path, study, interview_name, file_tag, requested_by, process_seconds, decrypted_at
		FROM decrypted_files WHERE destination_path = ?`, destinationPath)
	item, err := scanDecryptedFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get decrypted file: %w", err)
	}
	return item, nil
}

func (s *Store) RecordMetadataProbe(ctx context.Context, item *MetadataProbe) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO metadata_probes
		(file_path, study, probe_json, duration_seconds, video_streams, audio_streams, probed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.FilePath,
		item.Study,
		item.ProbeJSON,
		item.DurationSeconds,
		item.VideoStreams,
		item.AudioStreams,
		timestamp(item.ProbedAt),
	)
	if err != nil {
		return contentionError("metadata", "record probe", item.FilePath, err)
	}
	return nil
}

func (s *Store) GetMetadataProbe(ctx context.Context, filePath string) (*MetadataProbe, error) {
	row := s.db.QueryRowContext(ctx, `SELECT file_path, study, probe_json, duration_seconds, video_streams, audio_streams, probed_at
		FROM metadata_probes WHERE file_path = ?`, filePath)
	item, err := scanMetadataProbe(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get metadata probe: %w", err)
	}
	return item, nil
}

func (s *Store) RecordQuickQC(ctx context.Context, item *QuickQCResult) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO video_quickqc
		(video_path, study, interview_name, duration_seconds, width, height, black_bar_height, screenshot_dir, process_seconds, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.VideoPath,
		item.Study,
		item.InterviewName,
		item.DurationSeconds,
		item.Width,
		item.Height,
		item.BlackBarHeight,
		item.ScreenshotDir,
		item.ProcessSeconds,
		timestamp(item.CheckedAt),
	)
	if err != nil {
		return contentionError("quickqc", "record quickqc", item.VideoPath, err)
	}
	return nil
}

func (s *Store) GetQuickQC(ctx context.Context, videoPath string) (*QuickQCResult, error) {
	row := s.db.QueryRowContext(ctx, `SELECT video_path, study, interview_name, duration_seconds, width, height, black_bar_height, screenshot_dir, process_seconds, checked_at
		FROM video_quickqc WHERE video_path = ?`, videoPath)
	item, err := scanQuickQCResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get quickqc: %w", err)
	}
	return item, nil
}

// RecordVideoStreams inserts every role stream of one source video in a single
// transaction. A duplicate on any row rolls the whole batch back and surfaces
// as services.ErrContention.
func (s *Store) RecordVideoStreams(ctx context.Context, streams []*VideoStream) error {
	if len(streams) == 0 {
		return errors.New("no streams to record")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin stream tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stream := range streams {
		_, err := tx.ExecContext(ctx, `INSERT INTO video_streams
			(stream_path, video_path, study, interview_name, role, process_seconds, split_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			stream.StreamPath,
			stream.VideoPath,
			stream.Study,
			stream.InterviewName,
			stream.Role,
			stream.ProcessSeconds,
			timestamp(stream.SplitAt),
		)
		if err != nil {
			return contentionError("split", "record stream", stream.StreamPath, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit streams: %w", err)
	}
	return nil
}

func (s *Store) GetVideoStream(ctx context.Context, streamPath string) (*VideoStream, error) {
	row := s.db.QueryRowContext(ctx, `SELECT stream_path, video_path, study, interview_name, role, process_seconds, split_at
		FROM video_streams WHERE stream_path = ?`, streamPath)
	item, err := scanVideoStream(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get video stream: %w", err)
	}
	return item, nil
}

func (s *Store) RecordFaceRun(ctx context.Context, item *FaceRun) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO face_runs
		(stream_path, study, interview_name, output_dir, attempts, overlay_path, process_seconds, extracted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.StreamPath,
		item.Study,
		item.InterviewName,
		item.OutputDir,
		item.Attempts,
		nullableString(item.OverlayPath),
		item.ProcessSeconds,
		timestamp(item.ExtractedAt),
	)
	if err != nil {
		return contentionError("faceext", "record face run", item.StreamPath, err)
	}
	return nil
}

func (s *Store) GetFaceRun(ctx context.Context, streamPath string) (*FaceRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT stream_path, study, interview_name, output_dir, attempts, overlay_path, process_seconds, extracted_at
		FROM face_runs WHERE stream_path = ?`, streamPath)
	item, err := scanFaceRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get face run: %w", err)
	}
	return item, nil
}

// FaceRunsForInterview lists every face run recorded for an interview, ordered
// by stream path for stable consolidation.
func (s *Store) FaceRunsForInterview(ctx context.Context, interviewName string) ([]*FaceRun, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT stream_path, study, interview_name, output_dir, attempts, overlay_path, process_seconds, extracted_at
		FROM face_runs WHERE interview_name = ? ORDER BY stream_path`, interviewName)
	if err != nil {
		return nil, fmt.Errorf("list face runs: %w", err)
	}
	defer rows.Close()

	var items []*FaceRun
	for rows.Next() {
		item, scanErr := scanFaceRun(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan face run: %w", scanErr)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) RecordFaceQC(ctx context.Context, item *FaceQCResult) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO face_qc
		(stream_path, frames_total, frames_success, success_ratio, mean_confidence, passed, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.StreamPath,
		item.FramesTotal,
		item.FramesSuccess,
		item.SuccessRatio,
		item.MeanConfidence,
		boolToInt(item.Passed),
		timestamp(item.CheckedAt),
	)
	if err != nil {
		return contentionError("faceqc", "record face qc", item.StreamPath, err)
	}
	return nil
}

func (s *Store) GetFaceQC(ctx context.Context, streamPath string) (*FaceQCResult, error) {
	row := s.db.QueryRowContext(ctx, `SELECT stream_path, frames_total, frames_success, success_ratio, mean_confidence, passed, checked_at
		FROM face_qc WHERE stream_path = ?`, streamPath)
	item, err := scanFaceQCResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get face qc: %w", err)
	}
	return item, nil
}

func (s *Store) RecordFaceLoad(ctx context.Context, item *FaceLoad) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO face_loads
		(interview_name, study, stream_count, loaded_at)
		VALUES (?, ?, ?, ?)`,
		item.InterviewName,
		item.Study,
		item.StreamCount,
		timestamp(item.LoadedAt),
	)
	if err != nil {
		return contentionError("faceload", "record face load", item.InterviewName, err)
	}
	return nil
}

func (s *Store) GetFaceLoad(ctx context.Context, interviewName string) (*FaceLoad, error) {
	row := s.db.QueryRowContext(ctx, `SELECT interview_name, study, stream_count, loaded_at
		FROM face_loads WHERE interview_name = ?`, interviewName)

	var (
		item     FaceLoad
		loadedAt sql.NullString
	)
	err := row.Scan(&item.InterviewName, &item.Study, &item.StreamCount, &loadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get face load: %w", err)
	}
	if loadedAt.Valid {
		if t, perr := parseTimeString(loadedAt.String); perr == nil {
			item.LoadedAt = t
		}
	}
	return &item, nil
}

func (s *Store) RecordTranscript(ctx context.Context, item *Transcript) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO transcripts
		(audio_path, study, interview_name, transcript_path, language, segment_count, duration_seconds, attempts, transcribed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.AudioPath,
		item.Study,
		item.InterviewName,
		item.TranscriptPath,
		item.Language,
		item.SegmentCount,
		item.DurationSeconds,
		item.Attempts,
		timestamp(item.TranscribedAt),
	)
	if err != nil {
		return contentionError("transcribe", "record transcript", item.AudioPath, err)
	}
	return nil
}

func (s *Store) GetTranscript(ctx context.Context, audioPath string) (*Transcript, error) {
	row := s.db.QueryRowContext(ctx, `SELECT audio_path, study, interview_name, transcript_path, language, segment_count, duration_seconds, attempts, transcribed_at
		FROM transcripts WHERE audio_path = ?`, audioPath)
	item, err := scanTranscript(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transcript: %w", err)
	}
	return item, nil
}

// TranscriptsForInterview lists every transcript recorded for an interview.
func (s *Store) TranscriptsForInterview(ctx context.Context, interviewName string) ([]*Transcript, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT audio_path, study, interview_name, transcript_path, language, segment_count, duration_seconds, attempts, transcribed_at
		FROM transcripts WHERE interview_name = ? ORDER BY audio_path`, interviewName)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	defer rows.Close()

	var items []*Transcript
	for rows.Next() {
		item, scanErr := scanTranscript(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan transcript: %w", scanErr)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) RecordReport(ctx context.Context, item *Report) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO reports
		(interview_name, study, report_path, generated_at)
		VALUES (?, ?, ?, ?)`,
		item.InterviewName,
		item.Study,
		item.ReportPath,
		timestamp(item.GeneratedAt),
	)
	if err != nil {
		return contentionError("report", "record report", item.InterviewName, err)
	}
	return nil
}

func (s *Store) GetReport(ctx context.Context, interviewName string) (*Report, error) {
	row := s.db.QueryRowContext(ctx, `SELECT interview_name, study, report_path, generated_at
		FROM reports WHERE interview_name = ?`, interviewName)

	var (
		item        Report
		generatedAt sql.NullString
	)
	err := row.Scan(&item.InterviewName, &item.Study, &item.ReportPath, &generatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	if generatedAt.Valid {
		if t, perr := parseTimeString(generatedAt.String); perr == nil {
			item.GeneratedAt = t
		}
	}
	return &item, nil
}
