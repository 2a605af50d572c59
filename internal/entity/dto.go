package entity

import "time"

type AuthRegisterRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"display_name"`
}

type AuthLoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type UserSummary struct {
	ID          uint      `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	IsActive    bool      `json:"is_active"`
	Credits     int64     `json:"credits"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type AuthResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      UserSummary `json:"user"`
}

type AuthStatusResponse struct {
	HasUser bool `json:"has_user"`
}

type UserQuery struct {
	BaseParams
	Role    string `json:"role" form:"role" query:"role"`
	Keyword string `json:"keyword" form:"keyword" query:"keyword"`
}

type UserCreateRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Credits     *int64 `json:"credits"`
	IsActive    *bool  `json:"is_active"`
}

type UserUpdateRequest struct {
	DisplayName *string `json:"display_name"`
	Password    *string `json:"password"`
	Role        *string `json:"role"`
	IsActive    *bool   `json:"is_active"`
}

type UserListResponse struct {
	Users []UserSummary `json:"users"`
	Meta  *Meta         `json:"meta"`
}

// CreditGrantRequest 管理员给用户追加点数的请求。
type CreditGrantRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

type CreditBalanceResponse struct {
	Credits int64 `json:"credits"`
}

// SubmitAnalysisRequest 提交一次分析的请求参数。Input 的具体结构由分析类型决定，
// 在目录层校验，核心流程不解析其内容。
type SubmitAnalysisRequest struct {
	Type      string  `json:"type" binding:"required"`
	ProjectID *uint   `json:"project_id"`
	Input     JSONMap `json:"input"`
	ClientID  string  `json:"client_id"`
}

type SubmitAnalysisResponse struct {
	RecordID    uint   `json:"record_id"`
	TaskID      string `json:"task_id,omitempty"`
	Status      string `json:"status"`
	CreditsUsed int64  `json:"credits_used"`

	// 异步分析的轮询参数，供前端进度条使用。
	PollIntervalSeconds int `json:"poll_interval_seconds,omitempty"`
	MaxDurationSeconds  int `json:"max_duration_seconds,omitempty"`
}

type AnalysisQuery struct {
	BaseParams
	Type       string `json:"type" form:"type" query:"type"`
	Status     string `json:"status" form:"status" query:"status"`
	ProjectID  uint   `json:"project_id" form:"project_id" query:"project_id"`
	UserID     uint   `json:"-" form:"-" query:"-"`
	IncludeAll bool   `json:"-" form:"-" query:"-"`
}

type AnalysisItem struct {
	ID           uint        `json:"id"`
	Type         string      `json:"type"`
	ProjectID    *uint       `json:"project_id,omitempty"`
	Input        JSONMap     `json:"input"`
	TaskID       string      `json:"task_id,omitempty"`
	Status       string      `json:"status"`
	Result       JSONMap     `json:"result,omitempty"`
	ErrorCode    string      `json:"error_code,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	CreditsUsed  int64       `json:"credits_used"`
	ExportPaths  []string    `json:"export_paths"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	User         UserSummary `json:"user"`
}

type AnalysisListResponse struct {
	Records []AnalysisItem `json:"records"`
	Meta    *Meta          `json:"meta"`
}

type AnalysisDetailResponse struct {
	Record AnalysisItem `json:"record"`
}

// TaskStatusResponse 是任务状态轮询接口的响应。Progress 仅在 processing 状态下
// 提供，是展示用的估算值，不参与状态判定。
type TaskStatusResponse struct {
	Status   string  `json:"status"`
	Progress *int    `json:"progress,omitempty"`
	Result   JSONMap `json:"result,omitempty"`
	Error    string  `json:"error,omitempty"`
}

type CancelTaskResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// AnalysisTypeInfo 描述目录中的一种分析类型。
type AnalysisTypeInfo struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Cost           int64  `json:"cost"`
	Async          bool   `json:"async"`
	SupportsCancel bool   `json:"supports_cancel"`
}

type AnalysisTypeListResponse struct {
	Types []AnalysisTypeInfo `json:"types"`
}

type ExportAnalysisRequest struct {
	Format string `json:"format"`
}

type ExportAnalysisResponse struct {
	Path string `json:"path"`
	URL  string `json:"url,omitempty"`
}

type ProjectCreateRequest struct {
	Name        string `json:"name" binding:"required"`
	Domain      string `json:"domain"`
	Description string `json:"description"`
}

type ProjectUpdateRequest struct {
	Name        *string `json:"name"`
	Domain      *string `json:"domain"`
	Description *string `json:"description"`
}

type ProjectListResponse struct {
	Projects []DbProject `json:"projects"`
}

type ProjectDetailResponse struct {
	Project DbProject `json:"project"`
}
