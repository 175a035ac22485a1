package repository

import (
	"context"
	"fmt"

	"MagicDJ/model"

	"gorm.io/gorm"
)

// SessionRepository defines the interface for session record archival.
type SessionRepository interface {
	Create(ctx context.Context, record *model.SessionRecord) error
	Update(ctx context.Context, record *model.SessionRecord) error
	GetByID(ctx context.Context, id string) (*model.SessionRecord, error)
	List(ctx context.Context, limit int) ([]model.SessionRecord, error)
}

// gormSessionRepository implements SessionRepository with GORM.
type gormSessionRepository struct {
	db *gorm.DB
}

// NewGormSessionRepository creates a new instance of gormSessionRepository.
func NewGormSessionRepository(db *gorm.DB) SessionRepository {
	return &gormSessionRepository{db: db}
}

// Create 写入新的会话记录
func (r *gormSessionRepository) Create(ctx context.Context, record *model.SessionRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create session record: %w", err)
	}
	return nil
}

// Update 更新会话记录（关闭会话时写入结束时间与操作日志）
func (r *gormSessionRepository) Update(ctx context.Context, record *model.SessionRecord) error {
	if err := r.db.WithContext(ctx).Save(record).Error; err != nil {
		return fmt.Errorf("failed to update session record: %w", err)
	}
	return nil
}

// GetByID 按id查询会话记录
func (r *gormSessionRepository) GetByID(ctx context.Context, id string) (*model.SessionRecord, error) {
	var record model.SessionRecord
	err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session record %s: %w", id, err)
	}
	return &record, nil
}

// List 按开始时间倒序返回最近的会话记录
func (r *gormSessionRepository) List(ctx context.Context, limit int) ([]model.SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	records := make([]model.SessionRecord, 0, limit)
	err := r.db.WithContext(ctx).Order("start_time DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list session records: %w", err)
	}
	return records, nil
}
