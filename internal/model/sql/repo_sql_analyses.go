package sql

import (
	"context"
	"fmt"
	"strings"
	"yourank/internal/entity"

	"gorm.io/gorm"
)

// CreateAnalysis persists a new analysis record.
func (r *GormRepository) CreateAnalysis(ctx context.Context, record *entity.DbAnalysisRecord) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	return r.db.WithContext(ctx).Create(record).Error
}

// UpdateAnalysis applies updates unconditionally. Terminal status writes must
// go through UpdateAnalysisIfStatus instead.
func (r *GormRepository) UpdateAnalysis(ctx context.Context, id uint, updates entity.AnalysisUpdates) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return fmt.Errorf("invalid analysis id")
	}
	if updates.IsEmpty() {
		return nil
	}
	return r.db.WithContext(ctx).Model(&entity.DbAnalysisRecord{}).Where("id = ?", id).Updates(updates.ToMap()).Error
}

// UpdateAnalysisIfStatus applies updates only when the record is still in
// fromStatus. The status guard lives in the WHERE clause, so two racing
// writers (cancel vs. completion) cannot both land: the loser updates zero
// rows and gets false back.
func (r *GormRepository) UpdateAnalysisIfStatus(ctx context.Context, id uint, fromStatus string, updates entity.AnalysisUpdates) (bool, error) {
	if r == nil || r.db == nil {
		return false, fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return false, fmt.Errorf("invalid analysis id")
	}
	if updates.IsEmpty() {
		return false, nil
	}

	result := r.db.WithContext(ctx).Model(&entity.DbAnalysisRecord{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates.ToMap())
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetAnalysis loads a record by ID with its owner preloaded.
func (r *GormRepository) GetAnalysis(ctx context.Context, id uint) (*entity.DbAnalysisRecord, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return nil, fmt.Errorf("invalid analysis id")
	}
	var record entity.DbAnalysisRecord
	if err := r.db.WithContext(ctx).Preload("User").First(&record, id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// GetAnalysisByTaskID loads a record by its external task ID.
func (r *GormRepository) GetAnalysisByTaskID(ctx context.Context, taskID string) (*entity.DbAnalysisRecord, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	trimmed := strings.TrimSpace(taskID)
	if trimmed == "" {
		return nil, fmt.Errorf("task id is empty")
	}
	var record entity.DbAnalysisRecord
	if err := r.db.WithContext(ctx).Preload("User").Where("task_id = ?", trimmed).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// ListAnalyses returns paginated records. Unless IncludeAll is set (admin
// view), results are scoped to params.UserID.
func (r *GormRepository) ListAnalyses(ctx context.Context, params *entity.AnalysisQuery) ([]entity.DbAnalysisRecord, *entity.Meta, error) {
	if r == nil || r.db == nil {
		return nil, nil, fmt.Errorf("repository not initialised")
	}

	query := r.db.WithContext(ctx).Model(&entity.DbAnalysisRecord{})
	if params != nil {
		if !params.IncludeAll && params.UserID > 0 {
			query = query.Where("user_id = ?", params.UserID)
		}
		if trimmed := strings.TrimSpace(params.Type); trimmed != "" {
			query = query.Where("type = ?", trimmed)
		}
		if trimmed := strings.TrimSpace(params.Status); trimmed != "" {
			query = query.Where("status = ?", trimmed)
		}
		if params.ProjectID > 0 {
			query = query.Where("project_id = ?", params.ProjectID)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, nil, err
	}

	page := 1
	pageSize := 20
	if params != nil {
		if params.Page > 0 {
			page = int(params.Page)
		}
		if params.PageSize > 0 {
			pageSize = int(params.PageSize)
		}
	}

	offset := (page - 1) * pageSize
	if offset < 0 {
		offset = 0
	}

	var records []entity.DbAnalysisRecord
	if err := query.Preload("User").Order("id DESC").Offset(offset).Limit(pageSize).Find(&records).Error; err != nil {
		return nil, nil, err
	}

	meta := r.calculatePagination(total, page, pageSize)
	return records, meta, nil
}

// ListAnalysesByStatus returns all records in a given status, oldest first.
// Used at startup to resume in-flight tasks.
func (r *GormRepository) ListAnalysesByStatus(ctx context.Context, status string) ([]entity.DbAnalysisRecord, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	trimmed := strings.TrimSpace(status)
	if trimmed == "" {
		return nil, fmt.Errorf("status is empty")
	}
	var records []entity.DbAnalysisRecord
	if err := r.db.WithContext(ctx).Where("status = ?", trimmed).Order("id ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// DeleteAnalysis removes a record by ID.
func (r *GormRepository) DeleteAnalysis(ctx context.Context, id uint) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return fmt.Errorf("invalid analysis id")
	}
	result := r.db.WithContext(ctx).Delete(&entity.DbAnalysisRecord{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
