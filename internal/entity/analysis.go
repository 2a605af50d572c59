package entity

import (
	"time"
	"yourank/internal/entity/common"
)

// 分析记录状态。状态只会向前推进：
// pending → processing → completed 或 failed，终态之后不再变化。
const (
	AnalysisStatusPending    = "pending"
	AnalysisStatusProcessing = "processing"
	AnalysisStatusCompleted  = "completed"
	AnalysisStatusFailed     = "failed"
)

// 失败分类，写入 error_code 列，用于区分失败原因。
const (
	AnalysisErrorProvider   = "provider_error"
	AnalysisErrorSubmission = "submission_error"
	AnalysisErrorTimeout    = "timeout"
	AnalysisErrorCancelled  = "cancelled"
)

// IsTerminalStatus 判断状态是否为终态。
func IsTerminalStatus(status string) bool {
	return status == AnalysisStatusCompleted || status == AnalysisStatusFailed
}

// DbAnalysisRecord stores one requested analysis: its input, lifecycle
// status, result payload (or error) and the credits charged for it.
type DbAnalysisRecord struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID uint    `gorm:"column:user_id;index" json:"user_id"`
	User   *DbUser `gorm:"foreignKey:UserID" json:"-"`

	ProjectID *uint `gorm:"column:project_id;index" json:"project_id,omitempty"`

	Type  string         `gorm:"column:type;type:varchar(64);index" json:"type"`
	Input common.JSONMap `gorm:"column:input;type:json" json:"input"`

	// TaskID 外部（第三方）任务ID，仅异步分析使用，写入后不再变化。
	TaskID string `gorm:"column:task_id;type:varchar(255);index" json:"task_id,omitempty"`

	Status string `gorm:"column:status;type:varchar(32);index" json:"status"`

	Result       common.JSONMap `gorm:"column:result;type:json" json:"result,omitempty"`
	ErrorCode    string         `gorm:"column:error_code;type:varchar(64)" json:"error_code,omitempty"`
	ErrorMessage string         `gorm:"column:error_message;type:text" json:"error_message,omitempty"`

	CreditsUsed int64 `gorm:"column:credits_used;not null;default:0" json:"credits_used"`

	// ExportPaths 记录已生成的结果导出文件（存储后端的对象路径）。
	ExportPaths common.StringArray `gorm:"column:export_paths;type:json" json:"export_paths"`
}

// TableName 指定表名。
func (DbAnalysisRecord) TableName() string {
	return "analysis_records"
}
