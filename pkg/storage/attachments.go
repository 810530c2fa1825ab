package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var allowedExtensions = map[string]struct{}{
	".pdf":  {},
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".heic": {},
	".doc":  {},
	".docx": {},
}

// AttachmentStore stages sick-leave documents on the local filesystem under
// <base>/sickleave. Writes go through a temp file plus atomic rename so a
// crashed upload never leaves a torn file behind.
type AttachmentStore struct {
	baseDir string
	maxSize int64
}

// NewAttachmentStore ensures the staging directory exists.
func NewAttachmentStore(baseDir string, maxSize int64) (*AttachmentStore, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	if maxSize <= 0 {
		maxSize = 10 * 1024 * 1024
	}
	if err := os.MkdirAll(filepath.Join(baseDir, "sickleave"), 0o755); err != nil {
		return nil, fmt.Errorf("create uploads directory: %w", err)
	}
	return &AttachmentStore{baseDir: baseDir, maxSize: maxSize}, nil
}

// Save validates and stages an uploaded document. It returns the path
// relative to the base directory and the original filename.
func (s *AttachmentStore) Save(originalName string, size int64, r io.Reader) (string, string, error) {
	originalName = strings.TrimSpace(originalName)
	if originalName == "" {
		return "", "", fmt.Errorf("filename is required")
	}
	ext := strings.ToLower(filepath.Ext(originalName))
	if _, ok := allowedExtensions[ext]; !ok {
		return "", "", fmt.Errorf("file type %q is not allowed", ext)
	}
	if size > s.maxSize {
		return "", "", fmt.Errorf("file exceeds %d bytes limit", s.maxSize)
	}

	rel := filepath.Join("sickleave", fmt.Sprintf("%s_%s%s", time.Now().UTC().Format("20060102150405"), uuid.NewString(), ext))
	dst := filepath.Join(s.baseDir, rel)

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	written, err := io.Copy(tmp, io.LimitReader(r, s.maxSize+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return "", "", fmt.Errorf("write attachment: %w", err)
	}
	if written > s.maxSize {
		_ = os.Remove(tmpName)
		return "", "", fmt.Errorf("file exceeds %d bytes limit", s.maxSize)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return "", "", fmt.Errorf("finalize attachment: %w", err)
	}
	return rel, originalName, nil
}

// Open returns a read handle for a previously staged attachment.
func (s *AttachmentStore) Open(rel string) (*os.File, error) {
	path, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open attachment: %w", err)
	}
	return file, nil
}

// Delete removes a staged attachment. Missing files are not an error.
func (s *AttachmentStore) Delete(rel string) error {
	path, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete attachment: %w", err)
	}
	return nil
}

// Path exposes the absolute path for a relative attachment path.
func (s *AttachmentStore) Path(rel string) (string, error) {
	return s.resolve(rel)
}

// resolve joins rel under the base dir and refuses traversal outside it.
func (s *AttachmentStore) resolve(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("absolute attachment paths are not allowed")
	}
	cleaned := filepath.Clean(rel)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("attachment path escapes storage root")
	}
	return filepath.Join(s.baseDir, cleaned), nil
}
