package entity

// UserUpdates 用户更新字段
type UserUpdates struct {
	DisplayName  *string
	Role         *string
	PasswordHash *string
	IsActive     *bool
}

// ToMap 转换为 GORM 更新 map（内部使用）
func (u UserUpdates) ToMap() map[string]interface{} {
	updates := make(map[string]interface{})
	if u.DisplayName != nil {
		updates["display_name"] = *u.DisplayName
	}
	if u.Role != nil {
		updates["role"] = *u.Role
	}
	if u.PasswordHash != nil {
		updates["password_hash"] = *u.PasswordHash
	}
	if u.IsActive != nil {
		updates["is_active"] = *u.IsActive
	}
	return updates
}

// IsEmpty 检查是否没有任何更新字段
func (u UserUpdates) IsEmpty() bool {
	return len(u.ToMap()) == 0
}

// AnalysisUpdates 分析记录更新字段
type AnalysisUpdates struct {
	TaskID       *string
	Status       *string
	Result       *JSONMap
	ErrorCode    *string
	ErrorMessage *string
	ExportPaths  *StringArray
}

// ToMap 转换为 GORM 更新 map（内部使用）
func (u AnalysisUpdates) ToMap() map[string]interface{} {
	updates := make(map[string]interface{})
	if u.TaskID != nil {
		updates["task_id"] = *u.TaskID
	}
	if u.Status != nil {
		updates["status"] = *u.Status
	}
	if u.Result != nil {
		updates["result"] = *u.Result
	}
	if u.ErrorCode != nil {
		updates["error_code"] = *u.ErrorCode
	}
	if u.ErrorMessage != nil {
		updates["error_message"] = *u.ErrorMessage
	}
	if u.ExportPaths != nil {
		updates["export_paths"] = *u.ExportPaths
	}
	return updates
}

// IsEmpty 检查是否没有任何更新字段
func (u AnalysisUpdates) IsEmpty() bool {
	return len(u.ToMap()) == 0
}

// ProjectUpdates 项目更新字段
type ProjectUpdates struct {
	Name        *string
	Domain      *string
	Description *string
}

// ToMap 转换为 GORM 更新 map（内部使用）
func (u ProjectUpdates) ToMap() map[string]interface{} {
	updates := make(map[string]interface{})
	if u.Name != nil {
		updates["name"] = *u.Name
	}
	if u.Domain != nil {
		updates["domain"] = *u.Domain
	}
	if u.Description != nil {
		updates["description"] = *u.Description
	}
	return updates
}

// IsEmpty 检查是否没有任何更新字段
func (u ProjectUpdates) IsEmpty() bool {
	return len(u.ToMap()) == 0
}
