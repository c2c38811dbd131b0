package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
)

// ImagePatterns are the screenshot formats area.Probe understands.
var ImagePatterns = []string{"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.bmp"}

// ErrCanceled is returned when the user closes the file picker.
var ErrCanceled = errors.New("selection canceled")

// ValidateImageFile checks that path is an existing regular file with a
// supported extension and returns its absolute path.
func ValidateImageFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("image not found: %s", path)
		}
		return "", fmt.Errorf("access %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	if !supportedImage(path) {
		return "", fmt.Errorf("%s: unsupported image type (want one of %s)", path, strings.Join(ImagePatterns, ", "))
	}

	absPath, err := filepath.Abs(path)
	if err == nil {
		path = absPath
	}
	return path, nil
}

func supportedImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, p := range ImagePatterns {
		if "*"+ext == p {
			return true
		}
	}
	return false
}

// PickImageFile opens the native file dialog filtered to screenshots.
func PickImageFile() (string, error) {
	selected, err := zenity.SelectFile(
		zenity.Title("Select a screenshot"),
		zenity.FileFilters{
			{Name: "Screenshots", Patterns: ImagePatterns},
		},
	)
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			return "", ErrCanceled
		}
		return "", fmt.Errorf("file picker failed: %w", err)
	}
	log.Debug().Str("path", selected).Msg("Screenshot picked via native dialog")
	return selected, nil
}
