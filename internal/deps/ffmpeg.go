package deps

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// ResolveFFmpeg reports the ffmpeg binary the transcode stage will execute.
// A configured absolute path wins; otherwise "ffmpeg" is resolved from PATH.
func ResolveFFmpeg(configured string) Status {
	return resolveTool("FFmpeg", "ffmpeg", "Used to transcode recordings into the library format", configured)
}

// ResolveFFprobe reports the ffprobe binary used for media inspection.
func ResolveFFprobe(configured string) Status {
	return resolveTool("FFprobe", "ffprobe", "Used to inspect downloaded recordings", configured)
}

func resolveTool(name, fallback, description, configured string) Status {
	result := Status{
		Name:        name,
		Description: description,
	}

	configured = strings.TrimSpace(configured)
	if configured != "" && configured != fallback {
		if info, err := os.Stat(configured); err == nil && isExecutable(info) {
			result.Command = configured
			result.Available = true
			return result
		}
		result.Command = configured
		result.Detail = fmt.Sprintf("configured binary %q not found or not executable", configured)
		return result
	}

	if resolved, err := exec.LookPath(fallback); err == nil {
		result.Command = resolved
		result.Available = true
		return result
	}

	result.Command = fallback
	result.Detail = fmt.Sprintf("binary %q not found", fallback)
	return result
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
