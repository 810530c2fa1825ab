package service

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-ops-api/internal/models"
)

type mockDrive struct {
	folders  [][]string
	uploads  []string
	deleted  []string
	shared   map[string][]string
	uploaded int64
}

func (m *mockDrive) EnsureFolder(ctx context.Context, segments []string) error {
	m.folders = append(m.folders, segments)
	return nil
}

func (m *mockDrive) Upload(ctx context.Context, remotePath string, content io.ReaderAt, size int64) error {
	m.uploads = append(m.uploads, remotePath)
	m.uploaded = size
	return nil
}

func (m *mockDrive) Delete(ctx context.Context, remotePath string) error {
	m.deleted = append(m.deleted, remotePath)
	return nil
}

func (m *mockDrive) Share(ctx context.Context, remotePath string, emails []string) error {
	if m.shared == nil {
		m.shared = make(map[string][]string)
	}
	m.shared[remotePath] = emails
	return nil
}

type mockOpener struct {
	dir string
}

func (m *mockOpener) Open(rel string) (*os.File, error) {
	return os.Open(filepath.Join(m.dir, rel))
}

type mockExportWriter struct {
	saved *models.LeaveRequest
}

func (m *mockExportWriter) Update(ctx context.Context, leave *models.LeaveRequest) error {
	cp := *leave
	m.saved = &cp
	return nil
}

func TestArchivePlacesFileInWindowFolder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.pdf"), []byte("%PDF-1.4 test"), 0o644))

	drive := &mockDrive{}
	writer := &mockExportWriter{}
	svc := NewArchiveService(drive, &mockOpener{dir: dir}, writer, "Sick Leave Documents", []string{"pa@school.ae"}, nil)

	leave := &models.LeaveRequest{
		ID:             "r42",
		TenantID:       "tn1",
		LeaveDate:      time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC),
		AttachmentPath: "doc.pdf",
	}
	teacher := &models.Teacher{ID: "t1", FullName: "Alice Ahmed"}

	require.NoError(t, svc.Archive(context.Background(), teacher, leave))

	// 2025-03-20 falls in the half-month window starting March 15.
	want := "Sick Leave Documents/2025-03-15_to_2025-04-16/Alice_Ahmed-2025-03-20-REQr42.pdf"
	require.Len(t, drive.uploads, 1)
	assert.Equal(t, want, drive.uploads[0])
	assert.Equal(t, int64(len("%PDF-1.4 test")), drive.uploaded)
	assert.Equal(t, []string{"pa@school.ae"}, drive.shared[want])

	require.NotNil(t, writer.saved)
	assert.Equal(t, want, writer.saved.AttachmentExportPath)
	require.NotNil(t, writer.saved.AttachmentExportedAt)
	assert.Empty(t, drive.deleted)
}

func TestArchiveRemovesSupersededRemoteFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.jpg"), []byte("jpeg"), 0o644))

	drive := &mockDrive{}
	svc := NewArchiveService(drive, &mockOpener{dir: dir}, &mockExportWriter{}, "Sick Leave Documents", nil, nil)

	leave := &models.LeaveRequest{
		ID:                   "r7",
		LeaveDate:            time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		AttachmentPath:       "new.jpg",
		AttachmentExportPath: "Sick Leave Documents/2025-02-15_to_2025-03-16/old.pdf",
	}

	require.NoError(t, svc.Archive(context.Background(), &models.Teacher{FullName: "Bob"}, leave))
	assert.Equal(t, []string{"Sick Leave Documents/2025-02-15_to_2025-03-16/old.pdf"}, drive.deleted)
}

func TestArchiveRequiresStagedAttachment(t *testing.T) {
	svc := NewArchiveService(&mockDrive{}, &mockOpener{dir: t.TempDir()}, &mockExportWriter{}, "root", nil, nil)
	err := svc.Archive(context.Background(), &models.Teacher{FullName: "Bob"}, &models.LeaveRequest{ID: "r1"})
	require.Error(t, err)
}
