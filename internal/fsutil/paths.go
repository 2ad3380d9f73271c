package fsutil

import (
	"os"
	"path/filepath"
	"strings"
)

// AbsPath returns the cleaned absolute form of pathValue.
func AbsPath(pathValue string) (string, error) {
	abs, err := filepath.Abs(pathValue)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// FileIsInFolder reports whether file lies strictly below folder.
// Both paths are made absolute first; the folder must match whole path
// segments, so a file equal to the folder is never inside it.
func FileIsInFolder(file, folder string) bool {
	if strings.TrimSpace(file) == "" || strings.TrimSpace(folder) == "" {
		return false
	}
	filePath, err := AbsPath(file)
	if err != nil {
		return false
	}
	folderPath, err := AbsPath(folder)
	if err != nil {
		return false
	}
	if filepath.VolumeName(filePath) != filepath.VolumeName(folderPath) {
		return false
	}

	rel, err := filepath.Rel(folderPath, filePath)
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}

// FileIsInAnyFolder reports whether file lies below any of folders.
func FileIsInAnyFolder(file string, folders []string) bool {
	for _, folder := range folders {
		if FileIsInFolder(file, folder) {
			return true
		}
	}
	return false
}
