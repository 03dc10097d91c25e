// Package naming derives every artifact path in the data tree from the
// layout convention:
//
//	<data_root>/PROTECTED/<study>/raw/<type>/<interview>/...        encrypted sources
//	<data_root>/PROTECTED/<study>/processed/decrypted/...           decrypted copies
//	<data_root>/GENERAL/<study>/processed/<kind>/...                derived artifacts
//
// Interview names are NFC-normalized so the same interview recorded with
// different Unicode compositions maps to one store key.
package naming

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	ProtectedDir = "PROTECTED"
	GeneralDir   = "GENERAL"

	rawSegment        = "raw"
	processedSegment  = "processed"
	decryptedSegment  = "decrypted"
	streamsSegment    = "streams"
	facesSegment      = "faces"
	transcriptSegment = "transcripts"
	reportsSegment    = "reports"

	// EncryptedSuffix marks files the decryption stage may pick up.
	EncryptedSuffix = ".lock"

	TagVideo = "video"
	TagAudio = "audio"
)

var videoExtensions = map[string]struct{}{
	".mp4": {}, ".mkv": {}, ".avi": {}, ".mov": {}, ".webm": {}, ".mts": {}, ".m4v": {},
}

var audioExtensions = map[string]struct{}{
	".wav": {}, ".mp3": {}, ".m4a": {}, ".flac": {}, ".aac": {}, ".ogg": {},
}

// SourceInfo describes one encrypted source file parsed from its path under
// the raw tree.
type SourceInfo struct {
	Study         string
	InterviewType string
	InterviewName string
	// FileName is the base name with the encrypted suffix stripped.
	FileName string
	// FileTag is "video", "audio", or empty for unclassified extensions.
	FileTag string
}

// ParseSourcePath splits an encrypted source path into its inventory fields.
// The path must lie under <dataRoot>/PROTECTED/<study>/raw/<type>/<interview>/.
func ParseSourcePath(dataRoot, path string) (SourceInfo, error) {
	rel, err := filepath.Rel(dataRoot, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return SourceInfo{}, fmt.Errorf("source %q is outside the data root %q", path, dataRoot)
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 6 || parts[0] != ProtectedDir || parts[2] != rawSegment {
		return SourceInfo{}, fmt.Errorf("source %q does not match %s/<study>/%s/<type>/<interview>/...", path, ProtectedDir, rawSegment)
	}
	info := SourceInfo{
		Study:         parts[1],
		InterviewType: parts[3],
		InterviewName: NormalizeName(parts[4]),
		FileName:      strings.TrimSuffix(parts[len(parts)-1], EncryptedSuffix),
	}
	info.FileTag = TagForFile(info.FileName)
	return info, nil
}

// NormalizeName returns the NFC-normalized, whitespace-trimmed form of a name.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// TagForFile classifies a file name by extension.
func TagForFile(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := videoExtensions[ext]; ok {
		return TagVideo
	}
	if _, ok := audioExtensions[ext]; ok {
		return TagAudio
	}
	return ""
}

// IsEncrypted reports whether a file name carries the encrypted suffix.
func IsEncrypted(name string) bool {
	return strings.HasSuffix(name, EncryptedSuffix)
}

// RawRoot returns the encrypted source tree for a study.
func RawRoot(dataRoot, study string) string {
	return filepath.Join(dataRoot, ProtectedDir, study, rawSegment)
}

// DecryptedPath returns the destination for a decrypted copy of a source file.
func DecryptedPath(dataRoot, study, interviewType, interview, fileName string) string {
	return filepath.Join(dataRoot, ProtectedDir, study, processedSegment, decryptedSegment,
		interviewType, interview, fileName)
}

// StreamPath returns the output path for one cropped role stream of a video.
// The role is inserted before the extension of the source video's base name.
func StreamPath(dataRoot, study, interview, videoName, role string) string {
	ext := filepath.Ext(videoName)
	base := strings.TrimSuffix(videoName, ext)
	return filepath.Join(dataRoot, GeneralDir, study, processedSegment, streamsSegment,
		interview, fmt.Sprintf("%s_%s%s", base, role, ext))
}

// FaceOutputDir returns the directory the face-feature tool writes for one
// stream.
func FaceOutputDir(dataRoot, study, interview, streamName string) string {
	base := strings.TrimSuffix(streamName, filepath.Ext(streamName))
	return filepath.Join(dataRoot, GeneralDir, study, processedSegment, facesSegment,
		interview, base)
}

// TranscriptPath returns the JSON transcript destination for an audio file.
func TranscriptPath(dataRoot, study, interview, audioName string) string {
	base := strings.TrimSuffix(audioName, filepath.Ext(audioName))
	return filepath.Join(dataRoot, GeneralDir, study, processedSegment, transcriptSegment,
		interview, base+".json")
}

// ReportPath returns the rendered report destination for an interview.
func ReportPath(dataRoot, study, interview, format string) string {
	ext := ".json"
	if strings.EqualFold(format, "text") {
		ext = ".txt"
	}
	return filepath.Join(dataRoot, GeneralDir, study, processedSegment, reportsSegment,
		interview+ext)
}

// ScreenshotDir returns the quick-QC screenshot directory for a video.
func ScreenshotDir(dataRoot, study, interview, videoName string) string {
	base := strings.TrimSuffix(videoName, filepath.Ext(videoName))
	return filepath.Join(dataRoot, GeneralDir, study, processedSegment, "quickqc",
		interview, base)
}

// Uniquify returns path unchanged when nothing exists there, otherwise the
// first _1, _2, ... suffixed variant (before the extension) that is free.
func Uniquify(path string) string {
	if !exists(path) {
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if !exists(candidate) {
			return candidate
		}
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
