package store

import (
	"database/sql"
	"time"
)

// InterviewFile is one encrypted source file registered in the inventory.
// Inventory rows survive wipes so a wiped interview becomes eligible for
// decryption again.
type InterviewFile struct {
	FilePath      string
	Study         string
	InterviewName string
	InterviewType string
	FileTag       string
	FileSize      int64
	FileMtime     time.Time
	Ignored       bool
	DuplicateOf   string
	RegisteredAt  time.Time
}

// DecryptedFile records a completed decryption of one source file.
type DecryptedFile struct {
	SourcePath      string
	DestinationPath string
	Study           string
	InterviewName   string
	FileTag         string
	RequestedBy     string
	ProcessSeconds  float64
	DecryptedAt     time.Time
}

// MetadataProbe holds the raw stream metadata captured for a decrypted file.
type MetadataProbe struct {
	FilePath        string
	Study           string
	ProbeJSON       string
	DurationSeconds float64
	VideoStreams    int
	AudioStreams    int
	ProbedAt        time.Time
}

// QuickQCResult records the sampled-screenshot quality check of one video,
// including the black-bar height consensus used later by the splitter.
type QuickQCResult struct {
	VideoPath       string
	Study           string
	InterviewName   string
	DurationSeconds float64
	Width           int
	Height          int
	BlackBarHeight  int
	ScreenshotDir   string
	ProcessSeconds  float64
	CheckedAt       time.Time
}

// VideoStream is one per-speaker stream cropped out of a QC'd video.
type VideoStream struct {
	StreamPath     string
	VideoPath      string
	Study          string
	InterviewName  string
	Role           string
	ProcessSeconds float64
	SplitAt        time.Time
}

// FaceRun records a completed face-feature extraction over one stream.
type FaceRun struct {
	StreamPath     string
	Study          string
	InterviewName  string
	OutputDir      string
	Attempts       int
	OverlayPath    string
	ProcessSeconds float64
	ExtractedAt    time.Time
}

// FaceQCResult holds the per-frame success and confidence verdict for a run.
type FaceQCResult struct {
	StreamPath     string
	FramesTotal    int
	FramesSuccess  int
	SuccessRatio   float64
	MeanConfidence float64
	Passed         bool
	CheckedAt      time.Time
}

// FaceLoad marks an interview whose passing face features have been loaded
// into the analysis dataset.
type FaceLoad struct {
	InterviewName string
	Study         string
	StreamCount   int
	LoadedAt      time.Time
}

// Transcript records a completed transcription of one audio stream.
// Language is the ISO 639-1 code the transcription tool detected, or empty
// when detection was inconclusive.
type Transcript struct {
	AudioPath       string
	Study           string
	InterviewName   string
	TranscriptPath  string
	Language        string
	SegmentCount    int
	DurationSeconds float64
	Attempts        int
	TranscribedAt   time.Time
}

// Report marks an interview whose summary report has been generated.
type Report struct {
	InterviewName string
	Study         string
	ReportPath    string
	GeneratedAt   time.Time
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInterviewFile(row rowScanner) (*InterviewFile, error) {
	var (
		item         InterviewFile
		fileTag      sql.NullString
		duplicateOf  sql.NullString
		mtime        sql.NullString
		registeredAt sql.NullString
		ignored      int
	)
	err := row.Scan(
		&item.FilePath,
		&item.Study,
		&item.InterviewName,
		&item.InterviewType,
		&fileTag,
		&item.FileSize,
		&mtime,
		&ignored,
		&duplicateOf,
		&registeredAt,
	)
	if err != nil {
		return nil, err
	}
	item.FileTag = fileTag.String
	item.DuplicateOf = duplicateOf.String
	item.Ignored = ignored != 0
	if mtime.Valid {
		if t, perr := parseTimeString(mtime.String); perr == nil {
			item.FileMtime = t
		}
	}
	if registeredAt.Valid {
		if t, perr := parseTimeString(registeredAt.String); perr == nil {
			item.RegisteredAt = t
		}
	}
	return &item, nil
}

func scanDecryptedFile(row rowScanner) (*DecryptedFile, error) {
	var (
		item        DecryptedFile
		fileTag     sql.NullString
		requestedBy sql.NullString
		decryptedAt sql.NullString
	)
	err := row.Scan(
		&item.SourcePath,
		&item.DestinationPath,
		&item.Study,
		&item.InterviewName,
		&fileTag,
		&requestedBy,
		&item.ProcessSeconds,
		&decryptedAt,
	)
	if err != nil {
		return nil, err
	}
	item.FileTag = fileTag.String
	item.RequestedBy = requestedBy.String
	if decryptedAt.Valid {
		if t, perr := parseTimeString(decryptedAt.String); perr == nil {
			item.DecryptedAt = t
		}
	}
	return &item, nil
}

func scanMetadataProbe(row rowScanner) (*MetadataProbe, error) {
	var (
		item      MetadataProbe
		probeJSON sql.NullString
		probedAt  sql.NullString
	)
	err := row.Scan(
		&item.FilePath,
		&item.Study,
		&probeJSON,
		&item.DurationSeconds,
		&item.VideoStreams,
		&item.AudioStreams,
		&probedAt,
	)
	if err != nil {
		return nil, err
	}
	item.ProbeJSON = probeJSON.String
	if probedAt.Valid {
		if t, perr := parseTimeString(probedAt.String); perr == nil {
			item.ProbedAt = t
		}
	}
	return &item, nil
}

func scanQuickQCResult(row rowScanner) (*QuickQCResult, error) {
	var (
		item          QuickQCResult
		screenshotDir sql.NullString
		checkedAt     sql.NullString
	)
	err := row.Scan(
		&item.VideoPath,
		&item.Study,
		&item.InterviewName,
		&item.DurationSeconds,
		&item.Width,
		&item.Height,
		&item.BlackBarHeight,
		&screenshotDir,
		&item.ProcessSeconds,
		&checkedAt,
	)
	if err != nil {
		return nil, err
	}
	item.ScreenshotDir = screenshotDir.String
	if checkedAt.Valid {
		if t, perr := parseTimeString(checkedAt.String); perr == nil {
			item.CheckedAt = t
		}
	}
	return &item, nil
}

func scanVideoStream(row rowScanner) (*VideoStream, error) {
	var (
		item    VideoStream
		splitAt sql.NullString
	)
	err := row.Scan(
		&item.StreamPath,
		&item.VideoPath,
		&item.Study,
		&item.InterviewName,
		&item.Role,
		&item.ProcessSeconds,
		&splitAt,
	)
	if err != nil {
		return nil, err
	}
	if splitAt.Valid {
		if t, perr := parseTimeString(splitAt.String); perr == nil {
			item.SplitAt = t
		}
	}
	return &item, nil
}

func scanFaceRun(row rowScanner) (*FaceRun, error) {
	var (
		item        FaceRun
		overlayPath sql.NullString
		extractedAt sql.NullString
	)
	err := row.Scan(
		&item.StreamPath,
		&item.Study,
		&item.InterviewName,
		&item.OutputDir,
		&item.Attempts,
		&overlayPath,
		&item.ProcessSeconds,
		&extractedAt,
	)
	if err != nil {
		return nil, err
	}
	item.OverlayPath = overlayPath.String
	if extractedAt.Valid {
		if t, perr := parseTimeString(extractedAt.String); perr == nil {
			item.ExtractedAt = t
		}
	}
	return &item, nil
}

func scanFaceQCResult(row rowScanner) (*FaceQCResult, error) {
	var (
		item      FaceQCResult
		passed    int
		checkedAt sql.NullString
	)
	err := row.Scan(
		&item.StreamPath,
		&item.FramesTotal,
		&item.FramesSuccess,
		&item.SuccessRatio,
		&item.MeanConfidence,
		&passed,
		&checkedAt,
	)
	if err != nil {
		return nil, err
	}
	item.Passed = passed != 0
	if checkedAt.Valid {
		if t, perr := parseTimeString(checkedAt.String); perr == nil {
			item.CheckedAt = t
		}
	}
	return &item, nil
}

func scanTranscript(row rowScanner) (*Transcript, error) {
	var (
		item           Transcript
		transcriptPath sql.NullString
		transcribedAt  sql.NullString
	)
	err := row.Scan(
		&item.AudioPath,
		&item.Study,
		&item.InterviewName,
		&transcriptPath,
		&item.Language,
		&item.SegmentCount,
		&item.DurationSeconds,
		&item.Attempts,
		&transcribedAt,
	)
	if err != nil {
		return nil, err
	}
	item.TranscriptPath = transcriptPath.String
	if transcribedAt.Valid {
		if t, perr := parseTimeString(transcribedAt.String); perr == nil {
			item.TranscribedAt = t
		}
	}
	return &item, nil
}
