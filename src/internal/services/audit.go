package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/casapps/landregistry/src/internal/database/models"
	apperrors "github.com/casapps/landregistry/src/internal/errors"
)

// AuditEntry describes one audited request
type AuditEntry struct {
	UserID       *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   string
	IPAddress    string
	UserAgent    string
	Err          error
}

// AuditFilter narrows the audit log listing
type AuditFilter struct {
	UserID     *uuid.UUID
	Action     string
	ResourceID string
	Success    *bool
	Page       int
	PerPage    int
}

// AuditPage is one page of audit entries
type AuditPage struct {
	Entries []models.AuditLog `json:"entries"`
	Page
}

// AuditService keeps the trail of state-changing requests
type AuditService struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(db *gorm.DB, logger *slog.Logger) *AuditService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditService{db: db, logger: logger}
}

// Record stores e. A failure to write the trail is logged and never fails
// the request being audited.
func (s *AuditService) Record(ctx context.Context, e AuditEntry) {
	entry := &models.AuditLog{
		UserID:       e.UserID,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   truncate(e.ResourceID, 64),
		IPAddress:    truncate(e.IPAddress, 45),
		UserAgent:    truncate(e.UserAgent, 500),
		Success:      e.Err == nil,
	}
	if e.Err != nil {
		entry.ErrorMessage = truncate(e.Err.Error(), 500)
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		s.logger.Error("failed to write audit log", "action", e.Action, "resource_id", e.ResourceID, "error", err)
	}
}

// List returns audit entries newest first
func (s *AuditService) List(ctx context.Context, f AuditFilter) (*AuditPage, error) {
	page, perPage := normalizePage(f.Page, f.PerPage)
	query := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if f.UserID != nil {
		query = query.Where("user_id = ?", *f.UserID)
	}
	if f.Action != "" {
		query = query.Where("action = ?", f.Action)
	}
	if f.ResourceID != "" {
		query = query.Where("resource_id = ?", f.ResourceID)
	}
	if f.Success != nil {
		query = query.Where("success = ?", *f.Success)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, apperrors.DatabaseError("failed to count audit logs", err)
	}

	entries := []models.AuditLog{}
	if err := query.Preload("User").Order("created_at DESC").
		Offset(offset(page, perPage)).Limit(perPage).
		Find(&entries).Error; err != nil {
		return nil, apperrors.DatabaseError("failed to list audit logs", err)
	}
	return &AuditPage{Entries: entries, Page: newPage(total, page, perPage)}, nil
}

// Purge deletes entries older than retention
func (s *AuditService) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, apperrors.DatabaseError("failed to purge audit logs", result.Error)
	}
	return result.RowsAffected, nil
}
