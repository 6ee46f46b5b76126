package db

import (
	"context"
	"errors"
	"time"

	"custody/internal/domain"

	"gorm.io/gorm"
)

// AuditRecordRepository appends and reads audit records. The table rejects
// UPDATE and DELETE through triggers installed by the migrations.
type AuditRecordRepository struct {
	db *gorm.DB
}

func NewAuditRecordRepository(db *gorm.DB) *AuditRecordRepository {
	return &AuditRecordRepository{db: db}
}

// Append inserts record in its own transaction, independent of any caller
// transaction.
func (r *AuditRecordRepository) Append(ctx context.Context, record domain.AuditRecord) (domain.AuditRecord, error) {
	if r.db == nil {
		return domain.AuditRecord{}, errDBUnavailable
	}
	if record.ID == "" || record.IntegrityDigest == "" {
		return domain.AuditRecord{}, errors.New("audit record id and digest are required")
	}
	model := auditRecordModelFromDomain(record)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&model).Error
	})
	if err != nil {
		return domain.AuditRecord{}, err
	}
	return record, nil
}

func (r *AuditRecordRepository) Get(ctx context.Context, id string) (*domain.AuditRecord, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	var model AuditRecordModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	record := auditRecordFromModel(model)
	return &record, nil
}

// List returns matching records newest first.
func (r *AuditRecordRepository) List(ctx context.Context, query domain.AuditQuery) ([]domain.AuditRecord, int64, error) {
	if r.db == nil {
		return nil, 0, errDBUnavailable
	}
	page := query.Page.Normalize()
	var total int64
	if err := r.listScope(ctx, query).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []AuditRecordModel
	if err := r.listScope(ctx, query).
		Order("ts DESC").
		Order("id ASC").
		Offset(page.Offset()).
		Limit(page.Size).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}
	return auditRecordsFromModels(models), total, nil
}

func (r *AuditRecordRepository) listScope(ctx context.Context, query domain.AuditQuery) *gorm.DB {
	tx := r.db.WithContext(ctx).Model(&AuditRecordModel{})
	if query.ActorID != "" {
		tx = tx.Where("actor_id = ?", query.ActorID)
	}
	if query.ActionType != "" {
		tx = tx.Where("action_type = ?", string(query.ActionType))
	}
	if !query.From.IsZero() {
		tx = tx.Where("ts >= ?", query.From.UTC())
	}
	if !query.To.IsZero() {
		tx = tx.Where("ts <= ?", query.To.UTC())
	}
	return tx
}

// ListByResource returns the chain of custody for one resource, oldest first.
func (r *AuditRecordRepository) ListByResource(ctx context.Context, resourceType domain.AuditResourceType, resourceID string) ([]domain.AuditRecord, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []AuditRecordModel
	if err := r.db.WithContext(ctx).
		Where("resource_type = ? AND resource_id = ?", string(resourceType), resourceID).
		Order("ts ASC").
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return auditRecordsFromModels(models), nil
}

func (r *AuditRecordRepository) ListByTimeRange(ctx context.Context, from, to time.Time) ([]domain.AuditRecord, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []AuditRecordModel
	if err := r.db.WithContext(ctx).
		Where("ts >= ? AND ts <= ?", from.UTC(), to.UTC()).
		Order("ts ASC").
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return auditRecordsFromModels(models), nil
}

func (r *AuditRecordRepository) CountSecurityEvents(ctx context.Context, query domain.SecurityEventQuery) (int64, error) {
	if r.db == nil {
		return 0, errDBUnavailable
	}
	tx := r.db.WithContext(ctx).Model(&AuditRecordModel{})
	if query.ActorID != "" {
		tx = tx.Where("actor_id = ?", query.ActorID)
	}
	if query.ActionType != "" {
		tx = tx.Where("action_type = ?", string(query.ActionType))
	}
	if query.Status != "" {
		tx = tx.Where("status = ?", string(query.Status))
	}
	if !query.Since.IsZero() {
		tx = tx.Where("ts >= ?", query.Since.UTC())
	}
	var count int64
	if err := tx.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func auditRecordModelFromDomain(record domain.AuditRecord) AuditRecordModel {
	var resourceID *string
	if record.ResourceID != nil {
		resourceID = stringPtrIfNotEmpty(*record.ResourceID)
	}
	return AuditRecordModel{
		ID:              record.ID,
		ActorID:         record.ActorID,
		ActionType:      string(record.ActionType),
		Timestamp:       record.Timestamp.UTC(),
		IPAddress:       record.IPAddress,
		UserAgent:       record.UserAgent,
		ResourceType:    string(record.ResourceType),
		ResourceID:      resourceID,
		Status:          string(record.Status),
		Details:         record.Details,
		IntegrityDigest: record.IntegrityDigest,
	}
}

func auditRecordFromModel(model AuditRecordModel) domain.AuditRecord {
	return domain.AuditRecord{
		ID:              model.ID,
		ActorID:         model.ActorID,
		ActionType:      domain.AuditActionType(model.ActionType),
		Timestamp:       model.Timestamp.UTC(),
		IPAddress:       model.IPAddress,
		UserAgent:       model.UserAgent,
		ResourceType:    domain.AuditResourceType(model.ResourceType),
		ResourceID:      model.ResourceID,
		Status:          domain.AuditStatus(model.Status),
		Details:         model.Details,
		IntegrityDigest: model.IntegrityDigest,
	}
}

func auditRecordsFromModels(models []AuditRecordModel) []domain.AuditRecord {
	out := make([]domain.AuditRecord, 0, len(models))
	for _, model := range models {
		out = append(out, auditRecordFromModel(model))
	}
	return out
}
