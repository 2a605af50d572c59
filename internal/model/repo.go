package model

import (
	"context"
	"yourank/internal/entity"
)

// Repository 定义数据库操作接口
type Repository interface {
	// 用户管理
	CreateUser(ctx context.Context, user *entity.DbUser) error
	UpdateUser(ctx context.Context, id uint, updates entity.UserUpdates) error
	GetUserByEmail(ctx context.Context, email string) (*entity.DbUser, error)
	GetUserByID(ctx context.Context, id uint) (*entity.DbUser, error)
	ListUsers(ctx context.Context, params *entity.UserQuery) ([]entity.DbUser, *entity.Meta, error)
	DeleteUser(ctx context.Context, id uint) error
	CountUsers(ctx context.Context) (int64, error)

	// 点数。DeductCredits 必须是单条条件更新（余额充足才扣减），
	// 余额不足时返回 credits.ErrInsufficient。
	DeductCredits(ctx context.Context, userID uint, amount int64) error
	AddCredits(ctx context.Context, userID uint, amount int64) error

	// 分析记录
	CreateAnalysis(ctx context.Context, record *entity.DbAnalysisRecord) error
	UpdateAnalysis(ctx context.Context, id uint, updates entity.AnalysisUpdates) error
	// UpdateAnalysisIfStatus 仅当记录当前状态等于 fromStatus 时应用更新，
	// 返回是否有行被更新。终态写入必须走这里，避免取消与完成竞争。
	UpdateAnalysisIfStatus(ctx context.Context, id uint, fromStatus string, updates entity.AnalysisUpdates) (bool, error)
	GetAnalysis(ctx context.Context, id uint) (*entity.DbAnalysisRecord, error)
	GetAnalysisByTaskID(ctx context.Context, taskID string) (*entity.DbAnalysisRecord, error)
	ListAnalyses(ctx context.Context, params *entity.AnalysisQuery) ([]entity.DbAnalysisRecord, *entity.Meta, error)
	ListAnalysesByStatus(ctx context.Context, status string) ([]entity.DbAnalysisRecord, error)
	DeleteAnalysis(ctx context.Context, id uint) error

	// 项目
	CreateProject(ctx context.Context, project *entity.DbProject) error
	UpdateProject(ctx context.Context, id uint, updates entity.ProjectUpdates) error
	GetProject(ctx context.Context, id uint) (*entity.DbProject, error)
	ListProjects(ctx context.Context, userID uint) ([]entity.DbProject, error)
	DeleteProject(ctx context.Context, id uint) error
}
