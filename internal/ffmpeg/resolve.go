package ffmpeg

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ResolveFFprobe returns the ffprobe binary to use. An explicit value wins;
// otherwise a concrete ffmpeg path (.../ffmpeg) is mapped to its sibling
// ffprobe when that exists; otherwise "ffprobe" from PATH.
func ResolveFFprobe(ffprobeBin, ffmpegBin string) string {
	return resolveFFprobe(ffprobeBin, ffmpegBin, os.Stat)
}

func resolveFFprobe(ffprobeBin, ffmpegBin string, stat func(string) (os.FileInfo, error)) string {
	if s := strings.TrimSpace(ffprobeBin); s != "" {
		return s
	}
	ffmpegBin = strings.TrimSpace(ffmpegBin)
	if strings.ContainsRune(ffmpegBin, filepath.Separator) && filepath.Base(ffmpegBin) == "ffmpeg" {
		candidate := filepath.Join(filepath.Dir(ffmpegBin), "ffprobe")
		if fi, err := stat(candidate); err == nil && !fi.IsDir() {
			return candidate
		}
	}
	return "ffprobe"
}

// MissingBinariesError lists helper binaries that could not be found.
type MissingBinariesError struct {
	Binaries []string
}

func (e *MissingBinariesError) Error() string {
	return fmt.Sprintf("missing binaries: %s", strings.Join(e.Binaries, ", "))
}

func (e *MissingBinariesError) Unwrap() error { return ErrNotFound }

// CheckBinaries verifies every binary resolves via exec.LookPath.
func CheckBinaries(bins ...string) error {
	var missing []string
	for _, b := range bins {
		if _, err := exec.LookPath(b); err != nil {
			missing = append(missing, b)
		}
	}
	if len(missing) > 0 {
		return &MissingBinariesError{Binaries: missing}
	}
	return nil
}
