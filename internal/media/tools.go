package media

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// FindFFmpeg checks if FFmpeg is available - first checks bundled, then system
func FindFFmpeg() (string, bool) {
	return findTool("ffmpeg")
}

// FindFFprobe checks if ffprobe is available - first checks bundled, then system
func FindFFprobe() (string, bool) {
	return findTool("ffprobe")
}

func findTool(tool string) (string, bool) {
	// First, check for a bundled binary relative to the executable
	if bundled := bundledToolPath(tool); bundled != "" {
		if _, err := os.Stat(bundled); err == nil {
			return bundled, true
		}
	}

	// Then try system PATH
	names := []string{tool}
	if runtime.GOOS == "windows" {
		names = []string{tool + ".exe", tool}
	}

	for _, name := range names {
		path, err := exec.LookPath(name)
		if err == nil {
			return path, true
		}
	}

	// Check common installation directories
	var commonPaths []string
	switch runtime.GOOS {
	case "darwin":
		commonPaths = []string{
			"/usr/local/bin/" + tool,
			"/opt/homebrew/bin/" + tool,
			"/opt/local/bin/" + tool,
		}
	case "linux":
		commonPaths = []string{
			"/usr/bin/" + tool,
			"/usr/local/bin/" + tool,
		}
	case "windows":
		commonPaths = []string{
			"C:\\ffmpeg\\bin\\" + tool + ".exe",
			"C:\\Program Files\\ffmpeg\\bin\\" + tool + ".exe",
		}
	}

	for _, path := range commonPaths {
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}

	return "", false
}

// bundledToolPath returns the path to a bundled ffmpeg/ffprobe binary based
// on OS and executable location, or "" if none is present.
func bundledToolPath(tool string) string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	var candidates []string
	switch runtime.GOOS {
	case "darwin":
		// App bundle layout: MyApp.app/Contents/MacOS/MyApp with resources
		// under MyApp.app/Contents/Resources/
		candidates = []string{
			filepath.Join(execDir, "..", "Resources", tool),
			filepath.Join(execDir, tool),
		}
	case "windows":
		candidates = []string{
			filepath.Join(execDir, tool+".exe"),
			filepath.Join(execDir, "FFmpeg", tool+".exe"),
		}
	default:
		candidates = []string{
			filepath.Join(execDir, tool),
			filepath.Join(execDir, "lib", tool),
		}
	}

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
