package db

import (
	"context"
	"errors"
	"time"

	"custody/internal/domain"

	"gorm.io/gorm"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc domain.Document) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if doc.ID == "" || doc.StoragePath == "" || doc.FileHash == "" {
		return errors.New("document id, storage path and hash are required")
	}
	model := documentModelFromDomain(doc)
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	var model DocumentModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	doc := documentFromModel(model)
	return &doc, nil
}

// List returns live documents whose classification is in query.Levels. An
// empty level set matches nothing.
func (r *DocumentRepository) List(ctx context.Context, query domain.DocumentQuery) ([]domain.Document, int64, error) {
	if r.db == nil {
		return nil, 0, errDBUnavailable
	}
	if len(query.Levels) == 0 {
		return []domain.Document{}, 0, nil
	}
	page := query.Page.Normalize()

	var total int64
	if err := r.listScope(ctx, query).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []DocumentModel
	if err := r.listScope(ctx, query).
		Order("created_at DESC").
		Order("id ASC").
		Offset(page.Offset()).
		Limit(page.Size).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}
	return documentsFromModels(models), total, nil
}

func (r *DocumentRepository) listScope(ctx context.Context, query domain.DocumentQuery) *gorm.DB {
	tx := r.db.WithContext(ctx).
		Model(&DocumentModel{}).
		Where("is_deleted = ?", false).
		Where("classification IN ?", levelStrings(query.Levels))
	if query.Search != "" {
		tx = tx.Where("original_filename ILIKE ?", likePattern(query.Search))
	}
	if query.UploadedBy != "" {
		tx = tx.Where("uploaded_by = ?", query.UploadedBy)
	}
	if query.FileHash != "" {
		tx = tx.Where("file_hash = ?", query.FileHash)
	}
	return tx
}

func (r *DocumentRepository) ListByLineage(ctx context.Context, lineageID string, levels []domain.Level) ([]domain.Document, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if !validID(lineageID) || len(levels) == 0 {
		return []domain.Document{}, nil
	}
	var models []DocumentModel
	if err := r.db.WithContext(ctx).
		Where("lineage_id = ?", lineageID).
		Where("classification IN ?", levelStrings(levels)).
		Order("version_number ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return documentsFromModels(models), nil
}

func (r *DocumentRepository) MarkDeleted(ctx context.Context, id, actorID string, at time.Time) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if !validID(id) {
		return domain.ErrNotFound
	}
	result := r.db.WithContext(ctx).
		Model(&DocumentModel{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]any{
			"is_deleted": true,
			"deleted_at": at.UTC(),
			"deleted_by": actorID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *DocumentRepository) UpdateIntegrityStatus(ctx context.Context, id string, status domain.IntegrityStatus) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if !validID(id) {
		return domain.ErrNotFound
	}
	result := r.db.WithContext(ctx).
		Model(&DocumentModel{}).
		Where("id = ?", id).
		Update("integrity_status", string(status))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListDeletedBefore returns soft-deleted, not yet purged documents deleted
// before cutoff, oldest deletion first.
func (r *DocumentRepository) ListDeletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Document, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	tx := r.db.WithContext(ctx).
		Where("is_deleted = ? AND purged_at IS NULL AND deleted_at < ?", true, cutoff.UTC()).
		Order("deleted_at ASC").
		Order("id ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	var models []DocumentModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	return documentsFromModels(models), nil
}

func (r *DocumentRepository) MarkPurged(ctx context.Context, id string, at time.Time) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if !validID(id) {
		return domain.ErrNotFound
	}
	result := r.db.WithContext(ctx).
		Model(&DocumentModel{}).
		Where("id = ? AND purged_at IS NULL", id).
		Update("purged_at", at.UTC())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func documentModelFromDomain(doc domain.Document) DocumentModel {
	lineageID := doc.LineageID
	if lineageID == "" {
		lineageID = doc.ID
	}
	return DocumentModel{
		ID:               doc.ID,
		LineageID:        lineageID,
		ParentVersionID:  doc.ParentVersionID,
		OriginalFilename: doc.OriginalFilename,
		ContentType:      doc.ContentType,
		OriginalSize:     doc.OriginalSize,
		EncryptedSize:    doc.EncryptedSize,
		FileHash:         doc.FileHash,
		EncryptionNonce:  copyBytes(doc.EncryptionNonce),
		StoragePath:      doc.StoragePath,
		Classification:   string(doc.Classification.Normalize()),
		VersionNumber:    doc.VersionNumber,
		IntegrityStatus:  string(doc.IntegrityStatus),
		UploadedBy:       doc.UploadedBy,
		CreatedAt:        doc.CreatedAt.UTC(),
		IsDeleted:        doc.Deleted,
		DeletedAt:        doc.DeletedAt,
		DeletedBy:        doc.DeletedBy,
		PurgedAt:         doc.PurgedAt,
	}
}

func documentFromModel(model DocumentModel) domain.Document {
	return domain.Document{
		ID:               model.ID,
		LineageID:        model.LineageID,
		ParentVersionID:  model.ParentVersionID,
		OriginalFilename: model.OriginalFilename,
		ContentType:      model.ContentType,
		OriginalSize:     model.OriginalSize,
		EncryptedSize:    model.EncryptedSize,
		FileHash:         model.FileHash,
		EncryptionNonce:  copyBytes(model.EncryptionNonce),
		StoragePath:      model.StoragePath,
		Classification:   domain.Level(model.Classification),
		VersionNumber:    model.VersionNumber,
		IntegrityStatus:  domain.IntegrityStatus(model.IntegrityStatus),
		UploadedBy:       model.UploadedBy,
		CreatedAt:        model.CreatedAt.UTC(),
		Deleted:          model.IsDeleted,
		DeletedAt:        utcPtr(model.DeletedAt),
		DeletedBy:        model.DeletedBy,
		PurgedAt:         utcPtr(model.PurgedAt),
	}
}

func documentsFromModels(models []DocumentModel) []domain.Document {
	out := make([]domain.Document, 0, len(models))
	for _, model := range models {
		out = append(out, documentFromModel(model))
	}
	return out
}

func utcPtr(ts *time.Time) *time.Time {
	if ts == nil {
		return nil
	}
	value := ts.UTC()
	return &value
}
