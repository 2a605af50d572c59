// Package catalog defines the analysis types the dashboard offers: their
// provider endpoint, credit cost, execution mode and input validation.
package catalog

import (
	"fmt"
	"strings"
	"time"
	"yourank/internal/entity"
)

// 分析类型标识。与 analysis_records.type 列的取值一致。
const (
	TypeKeywordResearch  = "keyword_research"
	TypeSerpAnalysis     = "serp_analysis"
	TypeBacklinksSummary = "backlinks_summary"
	TypeDomainOverview   = "domain_overview"
	TypeAppData          = "app_data"
	TypeMerchantProducts = "merchant_products"
	TypeOnPageAudit      = "onpage_audit"
)

// AnalysisType describes one catalog entry.
type AnalysisType struct {
	ID   string
	Name string

	// EndpointPath 是 DataForSEO 上的端点前缀。同步类型直接 POST，
	// 异步类型在其后拼接 task_post / task_get / force_stop。
	EndpointPath string

	Cost           int64
	Async          bool
	SupportsCancel bool

	// ExpectedDuration 仅用于进度估算，不影响超时判定。
	ExpectedDuration time.Duration

	Validate func(input entity.JSONMap) error
}

var registry = map[string]AnalysisType{
	TypeKeywordResearch: {
		ID:           TypeKeywordResearch,
		Name:         "Keyword Research",
		EndpointPath: "/keywords_data/google_ads/search_volume/live",
		Cost:         5,
		Validate:     requireNonEmptyList("keywords"),
	},
	TypeSerpAnalysis: {
		ID:           TypeSerpAnalysis,
		Name:         "SERP Analysis",
		EndpointPath: "/serp/google/organic/live/regular",
		Cost:         3,
		Validate:     requireStrings("keyword"),
	},
	TypeBacklinksSummary: {
		ID:           TypeBacklinksSummary,
		Name:         "Backlinks Summary",
		EndpointPath: "/backlinks/summary/live",
		Cost:         8,
		Validate:     requireStrings("target"),
	},
	TypeDomainOverview: {
		ID:           TypeDomainOverview,
		Name:         "Domain Overview",
		EndpointPath: "/dataforseo_labs/google/domain_rank_overview/live",
		Cost:         6,
		Validate:     requireStrings("target"),
	},
	TypeAppData: {
		ID:           TypeAppData,
		Name:         "App Store Data",
		EndpointPath: "/app_data/google/app_info/live",
		Cost:         4,
		Validate:     requireStrings("app_id"),
	},
	TypeMerchantProducts: {
		ID:           TypeMerchantProducts,
		Name:         "Merchant Products",
		EndpointPath: "/merchant/google/products/live",
		Cost:         4,
		Validate:     requireStrings("keyword"),
	},
	TypeOnPageAudit: {
		ID:               TypeOnPageAudit,
		Name:             "On-Page Audit",
		EndpointPath:     "/on_page",
		Cost:             20,
		Async:            true,
		SupportsCancel:   true,
		ExpectedDuration: 5 * time.Minute,
		Validate:         requireStrings("target"),
	},
}

// 列表展示顺序固定，map 遍历顺序不可依赖。
var listOrder = []string{
	TypeKeywordResearch,
	TypeSerpAnalysis,
	TypeBacklinksSummary,
	TypeDomainOverview,
	TypeAppData,
	TypeMerchantProducts,
	TypeOnPageAudit,
}

// Lookup returns the catalog entry for a type tag.
func Lookup(typeTag string) (AnalysisType, bool) {
	at, ok := registry[strings.TrimSpace(typeTag)]
	return at, ok
}

// List returns all catalog entries in display order.
func List() []AnalysisType {
	types := make([]AnalysisType, 0, len(listOrder))
	for _, id := range listOrder {
		types = append(types, registry[id])
	}
	return types
}

// ValidateInput checks the submitted input against the type's validator.
func ValidateInput(at AnalysisType, input entity.JSONMap) error {
	if at.Validate == nil {
		return nil
	}
	return at.Validate(input)
}

// requireStrings builds a validator demanding non-empty string fields.
func requireStrings(fields ...string) func(entity.JSONMap) error {
	return func(input entity.JSONMap) error {
		if input == nil {
			return fmt.Errorf("input is required")
		}
		for _, field := range fields {
			raw, ok := input[field]
			if !ok {
				return fmt.Errorf("missing required field %q", field)
			}
			value, ok := raw.(string)
			if !ok || strings.TrimSpace(value) == "" {
				return fmt.Errorf("field %q must be a non-empty string", field)
			}
		}
		return nil
	}
}

// requireNonEmptyList builds a validator demanding a non-empty array field.
func requireNonEmptyList(field string) func(entity.JSONMap) error {
	return func(input entity.JSONMap) error {
		if input == nil {
			return fmt.Errorf("input is required")
		}
		raw, ok := input[field]
		if !ok {
			return fmt.Errorf("missing required field %q", field)
		}
		list, ok := raw.([]interface{})
		if !ok || len(list) == 0 {
			return fmt.Errorf("field %q must be a non-empty array", field)
		}
		return nil
	}
}
