package sql

import (
	"context"
	"fmt"
	"yourank/internal/entity"

	"gorm.io/gorm"
)

// CreateProject persists a new project.
func (r *GormRepository) CreateProject(ctx context.Context, project *entity.DbProject) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if project == nil {
		return fmt.Errorf("project is nil")
	}
	return r.db.WithContext(ctx).Create(project).Error
}

// UpdateProject updates an existing project.
func (r *GormRepository) UpdateProject(ctx context.Context, id uint, updates entity.ProjectUpdates) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return fmt.Errorf("invalid project id")
	}
	if updates.IsEmpty() {
		return nil
	}
	return r.db.WithContext(ctx).Model(&entity.DbProject{}).Where("id = ?", id).Updates(updates.ToMap()).Error
}

// GetProject loads a project by ID.
func (r *GormRepository) GetProject(ctx context.Context, id uint) (*entity.DbProject, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return nil, fmt.Errorf("invalid project id")
	}
	var project entity.DbProject
	if err := r.db.WithContext(ctx).First(&project, id).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

// ListProjects returns all projects owned by a user.
func (r *GormRepository) ListProjects(ctx context.Context, userID uint) ([]entity.DbProject, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	if userID == 0 {
		return nil, fmt.Errorf("invalid user id")
	}
	var projects []entity.DbProject
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id DESC").Find(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

// DeleteProject removes a project by ID.
func (r *GormRepository) DeleteProject(ctx context.Context, id uint) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return fmt.Errorf("invalid project id")
	}
	result := r.db.WithContext(ctx).Delete(&entity.DbProject{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
