package preflight

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"aperture/internal/config"
	"aperture/internal/deps"
	"aperture/internal/store"
)

// Free space under this on the data root is reported as a failure.
const minFreeBytes = 1 << 30

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace reports the space available on the filesystem holding path.
func CheckFreeSpace(name, path string) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	detail := fmt.Sprintf("%s free on %s", humanize.IBytes(free), path)
	if free < minFreeBytes {
		return Result{Name: name, Detail: detail + " (low)"}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckStore verifies the shared store answers a ping.
func CheckStore(ctx context.Context, st *store.Store) Result {
	const name = "Store"
	if st == nil {
		return Result{Name: name, Detail: "not opened"}
	}
	if err := st.Ping(ctx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable: %v", err)}
	}
	return Result{Name: name, Passed: true, Detail: "reachable"}
}

// CheckSystemDeps evaluates every external binary the stage workers invoke.
// The overlay renderer is only required when overlays are enabled.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "Decryption tool",
			Command:     cfg.Decrypt.Binary,
			Description: "Required by the decrypt stage",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.Metadata.FFprobeBinary,
			Description: "Required for media inspection",
		},
		{
			Name:        "FFmpeg (quickqc)",
			Command:     cfg.QuickQC.FFmpegBinary,
			Description: "Required for screenshots and black-bar detection",
		},
		{
			Name:        "FFmpeg (split)",
			Command:     cfg.Split.FFmpegBinary,
			Description: "Required for stream cropping",
		},
		{
			Name:        "Face extractor",
			Command:     cfg.FaceExt.Binary,
			Description: "Required for face-feature extraction",
		},
		{
			Name:        "Transcription engine",
			Command:     cfg.Transcribe.Binary,
			Description: "Required for transcription",
		},
	}
	if cfg.FaceExt.Overlay {
		requirements = append(requirements, deps.Requirement{
			Name:        "FFmpeg (overlay)",
			Command:     cfg.FaceExt.FFmpegBinary,
			Description: "Required for overlay rendering",
		})
	}
	return deps.CheckBinaries(requirements)
}
