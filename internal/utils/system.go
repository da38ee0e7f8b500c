package utils

import (
	"errors"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/Riboost-Studio/perfect-menu-raster-print/internal/logger"
)

var ErrChromeNotFound = errors.New("chrome/chromium not found")

var chromeBinaries = []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"}

var chromeInstallPaths = map[string][]string{
	"darwin": {
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		"/Applications/Chromium.app/Contents/MacOS/Chromium",
	},
	"linux": {
		"/usr/bin/google-chrome",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
	},
	"windows": {
		`C:\Program Files\Google\Chrome\Application\chrome.exe`,
		`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
	},
}

// installHints maps GOOS to the packages providing Chrome and poppler.
var installHints = map[string]string{
	"linux":   "apt install chromium-browser poppler-utils (or your distribution's chromium and poppler packages)",
	"darwin":  "brew install --cask google-chrome && brew install poppler",
	"windows": "install Google Chrome from https://www.google.com/chrome/ and poppler for Windows, then add both to PATH",
}

// CheckChrome looks for google-chrome or chromium. A non-empty override is
// used as-is when it exists.
func CheckChrome(override string) (bool, string) {
	if override != "" {
		if _, err := os.Stat(override); err == nil {
			return true, override
		}
		return false, ""
	}

	for _, bin := range chromeBinaries {
		if path, err := exec.LookPath(bin); err == nil {
			return true, path
		}
	}
	for _, path := range chromeInstallPaths[runtime.GOOS] {
		if _, err := os.Stat(path); err == nil {
			return true, path
		}
	}
	return false, ""
}

// CheckPoppler reports whether every named poppler tool is on PATH.
func CheckPoppler(tools ...string) bool {
	for _, tool := range tools {
		if _, err := exec.LookPath(tool); err != nil {
			return false
		}
	}
	return true
}

func installHint(goos string) string {
	if hint, ok := installHints[goos]; ok {
		return hint
	}
	return "install Chrome or Chromium and poppler for your OS"
}

// ValidateSystemRequirements reports the renderers available for HTML and PDF
// jobs. It returns the Chrome path to use, or ErrChromeNotFound when HTML
// jobs cannot be rendered.
func ValidateSystemRequirements(chromeOverride string, popplerTools ...string) (string, error) {
	logger.Info("System information", zap.String("os", runtime.GOOS), zap.String("arch", runtime.GOARCH))

	if CheckPoppler(popplerTools...) {
		logger.Info("Poppler utilities found, PDF jobs enabled")
	} else {
		logger.Warn("Poppler utilities not found, PDF jobs will fail",
			zap.Strings("tools", popplerTools),
			zap.String("install", installHint(runtime.GOOS)))
	}

	found, path := CheckChrome(chromeOverride)
	if !found {
		logger.Warn("Chrome/Chromium not found, it is required to render HTML print jobs",
			zap.String("install", installHint(runtime.GOOS)))
		return "", ErrChromeNotFound
	}
	logger.Info("Chrome/Chromium found", zap.String("path", path), zap.String("version", chromeVersion(path)))
	return path, nil
}

func chromeVersion(path string) string {
	out, err := exec.Command(path, "--version").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}
