package entity

// Re-export common types from the common package for backward compatibility.

import (
	"yourank/internal/entity/common"
)

// Type aliases for common types
type StringArray = common.StringArray
type JSONMap = common.JSONMap
type Meta = common.Meta
type BaseParams = common.BaseParams
