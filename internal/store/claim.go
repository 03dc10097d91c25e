package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ClaimSpec describes one stage's claim query in "upstream minus own" form:
// keys present in the upstream completion set, not yet present in the stage's
// own result table, filtered by stage conditions, one picked uniformly at
// random. No claim marker is written; the result insert is the arbiter.
type ClaimSpec struct {
	Key      string   // key column expression selected and claimed
	From     string   // upstream completion set (table or join expression)
	Where    []string // stage filters, ANDed together
	Args     []any    // placeholder arguments for Where
	Own      string   // this stage's result table
	OwnKey   string   // key column within Own
	Distinct bool
}

func (c ClaimSpec) conditions() string {
	conds := make([]string, 0, len(c.Where)+1)
	conds = append(conds, c.Where...)
	conds = append(conds, fmt.Sprintf("%s NOT IN (SELECT %s FROM %s)", c.Key, c.OwnKey, c.Own))
	return strings.Join(conds, " AND ")
}

func (c ClaimSpec) selectSQL() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if c.Distinct {
		b.WriteString("DISTINCT ")
	}
	b.WriteString(c.Key)
	b.WriteString(" FROM ")
	b.WriteString(c.From)
	b.WriteString(" WHERE ")
	b.WriteString(c.conditions())
	b.WriteString(" ORDER BY RANDOM() LIMIT 1")
	return b.String()
}

func (c ClaimSpec) countSQL() string {
	return fmt.Sprintf("SELECT COUNT(DISTINCT %s) FROM %s WHERE %s", c.Key, c.From, c.conditions())
}

// claimKey runs the claim query and returns the selected key, or "" when no
// eligible work exists.
func (s *Store) claimKey(ctx context.Context, spec ClaimSpec) (string, error) {
	var key string
	err := s.db.QueryRowContext(ctx, spec.selectSQL(), spec.Args...).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("claim candidate: %w", err)
	}
	return key, nil
}

func (s *Store) countEligible(ctx context.Context, spec ClaimSpec) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, spec.countSQL(), spec.Args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count eligible: %w", err)
	}
	return count, nil
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}

func studyFilter(column string, studies []string) (string, []any) {
	if len(studies) == 0 {
		return "", nil
	}
	args := make([]any, 0, len(studies))
	for _, study := range studies {
		args = append(args, study)
	}
	return fmt.Sprintf("%s IN (%s)", column, makePlaceholders(len(studies))), args
}

func applyStudyFilter(spec *ClaimSpec, column string, studies []string) {
	clause, args := studyFilter(column, studies)
	if clause == "" {
		return
	}
	spec.Where = append(spec.Where, clause)
	spec.Args = append(spec.Args, args...)
}

// unambiguousSourceCondition keeps a source file claimable only while it is
// the sole active member of its (study, interview, type, tag) group. Groups
// with competing uploads stay excluded until an operator marks a primary.
const unambiguousSourceCondition = `(SELECT COUNT(*) FROM interview_files peer
		WHERE peer.study = f.study
		AND peer.interview_name = f.interview_name
		AND peer.interview_type = f.interview_type
		AND COALESCE(peer.file_tag, '') = COALESCE(f.file_tag, '')
		AND peer.ignored = 0
		AND peer.duplicate_of IS NULL) = 1`

func decryptClaimSpec(studies []string) ClaimSpec {
	spec := ClaimSpec{
		Key:  "f.file_path",
		From: "interview_files f",
		Where: []string{
			"f.ignored = 0",
			"f.duplicate_of IS NULL",
			unambiguousSourceCondition,
		},
		Own:    "decrypted_files",
		OwnKey: "source_path",
	}
	applyStudyFilter(&spec, "f.study", studies)
	return spec
}

// NextDecryptCandidate picks a random registered source file that has not been
// decrypted yet. Returns nil when none is eligible.
func (s *Store) NextDecryptCandidate(ctx context.Context, studies []string) (*InterviewFile, error) {
	key, err := s.claimKey(ctx, decryptClaimSpec(studies))
	if err != nil || key == "" {
		return nil, err
	}
	return s.GetInterviewFile(ctx, key)
}

// CountDecryptEligible reports how many source files are currently waiting for
// decryption, for idle diagnostics and status output.
func (s *Store) CountDecryptEligible(ctx context.Context, studies []string) (int, error) {
	return s.countEligible(ctx, decryptClaimSpec(studies))
}

func metadataClaimSpec(studies []string) ClaimSpec {
	spec := ClaimSpec{
		Key:    "destination_path",
		From:   "decrypted_files",
		Own:    "metadata_probes",
		OwnKey: "file_path",
	}
	applyStudyFilter(&spec, "study", studies)
	return spec
}

// NextMetadataCandidate picks a random decrypted file that has not been probed
// for stream metadata yet.
func (s *Store) NextMetadataCandidate(ctx context.Context, studies []string) (*DecryptedFile, error) {
	key, err := s.claimKey(ctx, metadataClaimSpec(studies))
	if err != nil || key == "" {
		return nil, err
	}
	return s.GetDecryptedFile(ctx, key)
}

func quickQCClaimSpec(studies []string) ClaimSpec {
	spec := ClaimSpec{
		Key:    "file_path",
		From:   "metadata_probes",
		Where:  []string{"video_streams > 0"},
		Own:    "video_quickqc",
		OwnKey: "video_path",
	}
	applyStudyFilter(&spec, "study", studies)
	return spec
}

// NextQuickQCCandidate picks a random probed video file that has not been
// quality-checked yet.
func (s *Store) NextQuickQCCandidate(ctx context.Context, studies []string) (*MetadataProbe, error) {
	key, err := s.claimKey(ctx, quickQCClaimSpec(studies))
	if err != nil || key == "" {
		return nil, err
	}
	return s.GetMetadataProbe(ctx, key)
}

func splitClaimSpec(studies []string) ClaimSpec {
	spec := ClaimSpec{
		Key:    "video_path",
		From:   "video_quickqc",
		Own:    "video_streams",
		OwnKey: "video_path",
	}
	applyStudyFilter(&spec, "study", studies)
	return spec
}

// NextSplitCandidate picks a random quality-checked video whose role streams
// have not been produced yet.
func (s *Store) NextSplitCandidate(ctx context.Context, studies []string) (*QuickQCResult, error) {
	key, err := s.claimKey(ctx, splitClaimSpec(studies))
	if err != nil || key == "" {
		return nil, err
	}
	return s.GetQuickQC(ctx, key)
}

func faceExtClaimSpec(studies, exclude []string) ClaimSpec {
	spec := ClaimSpec{
		Key:    "stream_path",
		From:   "video_streams",
		Own:    "face_runs",
		OwnKey: "stream_path",
	}
	applyStudyFilter(&spec, "study", studies)
	if len(exclude) > 0 {
		spec.Where = append(spec.Where, fmt.Sprintf("stream_path NOT IN (%s)", makePlaceholders(len(exclude))))
		for _, path := range exclude {
			spec.Args = append(spec.Args, path)
		}
	}
	return spec
}

// NextFaceExtCandidate picks a random role stream without a face-feature run.
// Streams in exclude are skipped, so a worker can step past streams another
// host is already extracting.
func (s *Store) NextFaceExtCandidate(ctx context.Context, studies []string, exclude ...string) (*VideoStream, error) {
	key, err := s.claimKey(ctx, faceExtClaimSpec(studies, exclude))
	if err != nil || key == "" {
		return nil, err
	}
	return s.GetVideoStream(ctx, key)
}

// SiblingStreamCandidate finds another unprocessed stream of the same source
// video, for chaining directly after a finished stream.
func (s *Store) SiblingStreamCandidate(ctx context.Context, videoPath, excludePath string) (*VideoStream, error) {
	spec := ClaimSpec{
		Key:    "stream_path",
		From:   "video_streams",
		Where:  []string{"video_path = ?", "stream_path != ?"},
		Args:   []any{videoPath, excludePath},
		Own:    "face_runs",
		OwnKey: "stream_path",
	}
	key, err := s.claimKey(ctx, spec)
	if err != nil || key == "" {
		return nil, err
	}
	return s.GetVideoStream(ctx, key)
}

func faceQCClaimSpec(studies []string) ClaimSpec {
	spec := ClaimSpec{
		Key:    "stream_path",
		From:   "face_runs",
		Own:    "face_qc",
		OwnKey: "stream_path",
	}
	applyStudyFilter(&spec, "study", studies)
	return spec
}

// NextFaceQCCandidate picks a random face-feature run that has not been
// quality-scored yet.
func (s *Store) NextFaceQCCandidate(ctx context.Context, studies []string) (*FaceRun, error) {
	key, err := s.claimKey(ctx, faceQCClaimSpec(studies))
	if err != nil || key == "" {
		return nil, err
	}
	return s.GetFaceRun(ctx, key)
}

func faceLoadClaimSpec(studies []string) ClaimSpec {
	spec := ClaimSpec{
		Key:  "s.interview_name",
		From: "video_streams s",
		Where: []string{
			`NOT EXISTS (SELECT 1 FROM video_streams miss
				LEFT JOIN face_qc q ON q.stream_path = miss.stream_path
				WHERE miss.interview_name = s.interview_name
				AND (q.stream_path IS NULL OR q.passed = 0))`,
		},
		Own:      "face_loads",
		OwnKey:   "interview_name",
		Distinct: true,
	}
	applyStudyFilter(&spec, "s.study", studies)
	return spec
}

// NextFaceLoadCandidate picks a random interview whose streams all carry a
// passing face QC verdict and which has not been loaded yet. The returned
// runs cover every stream of the interview.
func (s *Store) NextFaceLoadCandidate(ctx context.Context, studies []string) ([]*FaceRun, error) {
	key, err := s.claimKey(ctx, faceLoadClaimSpec(studies))
	if err != nil || key == "" {
		return nil, err
	}
	runs, err := s.FaceRunsForInterview(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("face runs vanished for interview %s", key)
	}
	return runs, nil
}

func transcribeClaimSpec(studies []string) ClaimSpec {
	spec := ClaimSpec{
		Key:    "destination_path",
		From:   "decrypted_files",
		Where:  []string{"file_tag = 'audio'"},
		Own:    "transcripts",
		OwnKey: "audio_path",
	}
	applyStudyFilter(&spec, "study", studies)
	return spec
}

// NextTranscribeCandidate picks a random decrypted audio recording without a
// transcript.
func (s *Store) NextTranscribeCandidate(ctx context.Context, studies []string) (*DecryptedFile, error) {
	key, err := s.claimKey(ctx, transcribeClaimSpec(studies))
	if err != nil || key == "" {
		return nil, err
	}
	return s.GetDecryptedFile(ctx, key)
}

func reportClaimSpec(studies []string) ClaimSpec {
	spec := ClaimSpec{
		Key:      "l.interview_name",
		From:     "face_loads l JOIN transcripts t ON t.interview_name = l.interview_name",
		Own:      "reports",
		OwnKey:   "interview_name",
		Distinct: true,
	}
	applyStudyFilter(&spec, "l.study", studies)
	return spec
}

// NextReportCandidate picks a random interview with both a completed face load
// and at least one transcript, and no report yet.
func (s *Store) NextReportCandidate(ctx context.Context, studies []string) (*FaceLoad, error) {
	key, err := s.claimKey(ctx, reportClaimSpec(studies))
	if err != nil || key == "" {
		return nil, err
	}
	return s.GetFaceLoad(ctx, key)
}
