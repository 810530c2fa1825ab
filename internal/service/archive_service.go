package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/school-ops-api/internal/models"
	"github.com/noah-isme/school-ops-api/pkg/civiltime"
)

type driveClient interface {
	EnsureFolder(ctx context.Context, segments []string) error
	Upload(ctx context.Context, remotePath string, content io.ReaderAt, size int64) error
	Delete(ctx context.Context, remotePath string) error
	Share(ctx context.Context, remotePath string, emails []string) error
}

type attachmentOpener interface {
	Open(rel string) (*os.File, error)
}

type leaveExportWriter interface {
	Update(ctx context.Context, leave *models.LeaveRequest) error
}

// ArchiveService copies staged medical documents into the cloud drive,
// one half-month window folder per leave date. Any step's failure leaves
// earlier state consistent; callers log and continue.
type ArchiveService struct {
	drive       driveClient
	attachments attachmentOpener
	leaves      leaveExportWriter
	rootFolder  string
	shareWith   []string
	logger      *zap.Logger
}

// NewArchiveService constructs an ArchiveService.
func NewArchiveService(drive driveClient, attachments attachmentOpener, leaves leaveExportWriter, rootFolder string, shareWith []string, logger *zap.Logger) *ArchiveService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveService{
		drive:       drive,
		attachments: attachments,
		leaves:      leaves,
		rootFolder:  rootFolder,
		shareWith:   shareWith,
		logger:      logger,
	}
}

// ExportFileName builds the drive filename for a leave's document.
func ExportFileName(teacherName string, leave *models.LeaveRequest) string {
	ext := strings.ToLower(filepath.Ext(leave.AttachmentPath))
	return fmt.Sprintf("%s-%s-REQ%s%s",
		sanitizeName(teacherName),
		leave.LeaveDate.Format("2006-01-02"),
		leave.ID,
		ext)
}

// sanitizeName replaces non-alphanumerics with underscores.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

// Archive uploads the leave's attachment into its window folder, shares
// it with the configured recipients, and records the export on the leave.
func (s *ArchiveService) Archive(ctx context.Context, teacher *models.Teacher, leave *models.LeaveRequest) error {
	if leave.AttachmentPath == "" {
		return fmt.Errorf("leave %s has no staged attachment", leave.ID)
	}

	folder := civiltime.WindowFolderName(leave.LeaveDate)
	segments := []string{s.rootFolder, folder}
	if err := s.drive.EnsureFolder(ctx, segments); err != nil {
		return fmt.Errorf("ensure drive folder: %w", err)
	}

	remotePath := path.Join(s.rootFolder, folder, ExportFileName(teacher.FullName, leave))

	// A re-archive after an attachment replacement removes the stale
	// remote file first; failures here are logged only.
	if prev := leave.AttachmentExportPath; prev != "" && prev != remotePath {
		if err := s.drive.Delete(ctx, prev); err != nil {
			s.logger.Warn("stale drive file removal failed",
				zap.String("leave_id", leave.ID),
				zap.String("path", prev),
				zap.Error(err))
		}
	}

	file, err := s.attachments.Open(leave.AttachmentPath)
	if err != nil {
		return fmt.Errorf("open staged attachment: %w", err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat staged attachment: %w", err)
	}

	if err := s.drive.Upload(ctx, remotePath, file, info.Size()); err != nil {
		return fmt.Errorf("upload attachment: %w", err)
	}

	if len(s.shareWith) > 0 {
		if err := s.drive.Share(ctx, remotePath, s.shareWith); err != nil {
			s.logger.Warn("drive share failed",
				zap.String("leave_id", leave.ID),
				zap.Error(err))
		}
	}

	now := time.Now().UTC()
	leave.AttachmentExportPath = remotePath
	leave.AttachmentExportedAt = &now
	if err := s.leaves.Update(ctx, leave); err != nil {
		return fmt.Errorf("record export: %w", err)
	}

	s.logger.Info("attachment archived",
		zap.String("leave_id", leave.ID),
		zap.String("remote_path", remotePath))
	return nil
}
