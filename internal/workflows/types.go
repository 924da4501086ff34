package workflows

import (
	"themeflow/internal/extraction"
)

type ThemeExtractionInput struct {
	RunID   string `json:"run_id"`
	Purpose string `json:"purpose"`
	// SourceIDs selects specific stored sources; empty means every source of
	// SourceType (or the whole store when that is empty too).
	SourceIDs       []string `json:"source_ids,omitempty"`
	SourceType      string   `json:"source_type,omitempty"`
	MinConfidence   *float64 `json:"min_confidence,omitempty"`
	MaxThemes       int      `json:"max_themes,omitempty"`
	EmbedProviders  int      `json:"embed_providers,omitempty"`
	CooldownSeconds int      `json:"cooldown_seconds,omitempty"`
}

// ExtractionProgress is the query-handler snapshot. Counters only ever grow.
type ExtractionProgress struct {
	RunID       string               `json:"run_id"`
	Status      string               `json:"status"`
	Stage       string               `json:"stage"`
	StageNumber int                  `json:"stage_number"`
	TotalStages int                  `json:"total_stages"`
	Percentage  float64              `json:"percentage"`
	Live        extraction.LiveStats `json:"live_stats"`
	ThemeCount  int                  `json:"theme_count"`
	Diagnosis   string               `json:"diagnosis,omitempty"`
}
