package storage

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LocalStorage persists uploaded item photos on disk under a base directory
// and maps them to URLs under a public prefix.
type LocalStorage struct {
	baseDir    string
	publicPath string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir, publicPath string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	if publicPath == "" {
		publicPath = "/uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir, publicPath: "/" + strings.Trim(publicPath, "/")}, nil
}

// Save writes the given bytes to the relative path and returns its public URL.
func (s *LocalStorage) Save(filename string, data []byte) (string, error) {
	target, err := s.resolve(filename)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("prepare upload directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("write upload file: %w", err)
	}
	return s.URL(filename), nil
}

// SaveStream copies from reader into the target file path and returns its public URL.
func (s *LocalStorage) SaveStream(filename string, r io.Reader) (string, error) {
	target, err := s.resolve(filename)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("prepare upload directory: %w", err)
	}
	file, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer file.Close() //nolint:errcheck
	if _, err := io.Copy(file, r); err != nil {
		return "", fmt.Errorf("write upload stream: %w", err)
	}
	return s.URL(filename), nil
}

// Delete removes a stored file if present.
func (s *LocalStorage) Delete(filename string) error {
	target, err := s.resolve(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete upload file: %w", err)
	}
	return nil
}

// URL maps a stored relative path to the URL it is served under.
func (s *LocalStorage) URL(filename string) string {
	return path.Join(s.publicPath, filepath.ToSlash(filename))
}

// Dir exposes the base directory for static serving.
func (s *LocalStorage) Dir() string {
	return s.baseDir
}

// PublicPath exposes the URL prefix for static serving.
func (s *LocalStorage) PublicPath() string {
	return s.publicPath
}

func (s *LocalStorage) resolve(filename string) (string, error) {
	clean := filepath.Clean(filename)
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid upload path %q", filename)
	}
	return filepath.Join(s.baseDir, clean), nil
}
