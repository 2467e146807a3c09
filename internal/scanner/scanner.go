package scanner

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// Scanner scans directories for .msg files
type Scanner struct {
	rootPath string
}

// NewScanner creates a new scanner for the given root path
func NewScanner(rootPath string) *Scanner {
	return &Scanner{
		rootPath: rootPath,
	}
}

// GetRootPath returns the root path for resolving relative paths
func (s *Scanner) GetRootPath() string {
	return s.rootPath
}

// IsMSGFile reports whether name looks like an Outlook message file.
// Outlook's "~$" owner files share the extension but are not messages.
func IsMSGFile(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, "~$") {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), ".msg")
}

// Scan recursively scans for .msg files and returns paths relative to rootPath
// This ensures portability across different systems and drive mappings
func (s *Scanner) Scan() ([]string, error) {
	var msgFiles []string

	// Get absolute path of root for reliable relative path calculation
	absRoot, err := filepath.Abs(s.rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute root path: %w", err)
	}

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if d.IsDir() || !IsMSGFile(path) {
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path for %s: %w", path, err)
		}
		// Forward slashes keep the stored paths valid when the folder moves between Linux and Windows
		msgFiles = append(msgFiles, filepath.ToSlash(relPath))

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	return msgFiles, nil
}

// ScanWithCallback scans for .msg files and calls the callback for each file found
func (s *Scanner) ScanWithCallback(callback func(path string, index, total int) error) error {
	files, err := s.Scan()
	if err != nil {
		return err
	}

	total := len(files)
	for i, file := range files {
		if err := callback(file, i+1, total); err != nil {
			return fmt.Errorf("callback error for file %s: %w", file, err)
		}
	}

	return nil
}

// CountMSGFiles counts the number of .msg files without collecting their paths
func (s *Scanner) CountMSGFiles() (int, error) {
	count := 0

	err := filepath.WalkDir(s.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() && IsMSGFile(path) {
			count++
		}

		return nil
	})

	if err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}

	return count, nil
}
