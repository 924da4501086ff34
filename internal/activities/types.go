package activities

import (
	"themeflow/internal/models"
)

type ListSourcesInput struct {
	SourceIDs  []string `json:"source_ids,omitempty"`
	SourceType string   `json:"source_type,omitempty"`
}

type ListSourcesOutput struct {
	Sources []models.Source `json:"sources"`
}

type MarkRunInput struct {
	RunID     string `json:"run_id"`
	Purpose   string `json:"purpose"`
	Status    string `json:"status"`
	Diagnosis string `json:"diagnosis,omitempty"`
	// Insert creates the row instead of updating it.
	Insert bool `json:"insert,omitempty"`
}

type FamiliarizeSourceInput struct {
	RunID         string        `json:"run_id"`
	Source        models.Source `json:"source"`
	ProviderIndex int           `json:"provider_index"`
}

type FamiliarizeSourceOutput struct {
	Embedding    models.SourceEmbedding `json:"embedding"`
	Codes        []models.Code          `json:"codes"`
	Words        int                    `json:"words"`
	FullText     bool                   `json:"full_text"`
	ProviderName string                 `json:"provider_name"`
	Model        string                 `json:"model"`
}

type GenerateCandidatesInput struct {
	RunID      string                   `json:"run_id"`
	Purpose    string                   `json:"purpose"`
	Sources    []models.Source          `json:"sources"`
	Codes      []models.Code            `json:"codes"`
	Embeddings []models.SourceEmbedding `json:"embeddings"`
}

type GenerateCandidatesOutput struct {
	Candidates []models.CandidateTheme `json:"candidates"`
	Algorithm  string                  `json:"algorithm"`
	Notices    []string                `json:"notices,omitempty"`
}

type ValidateThemesInput struct {
	Purpose    string                  `json:"purpose"`
	Candidates []models.CandidateTheme `json:"candidates"`
}

type ValidateThemesOutput struct {
	Accepted []models.CandidateTheme `json:"accepted"`
	Summary  models.RejectionSummary `json:"summary"`
}

type MergeThemesInput struct {
	Purpose       string                  `json:"purpose"`
	Sources       []models.Source         `json:"sources"`
	Accepted      []models.CandidateTheme `json:"accepted"`
	MinConfidence *float64                `json:"min_confidence,omitempty"`
	MaxThemes     int                     `json:"max_themes,omitempty"`
}

type MergeThemesOutput struct {
	Themes []models.UnifiedTheme `json:"themes"`
}

type PersistThemesInput struct {
	RunID  string                `json:"run_id"`
	Themes []models.UnifiedTheme `json:"themes"`
}

type SaveReportInput struct {
	RunID  string                      `json:"run_id"`
	Report models.MethodologyReport    `json:"report"`
	Stats  models.FamiliarizationStats `json:"stats"`
}

type SaveReportOutput struct {
	ArtifactPath string `json:"artifact_path"`
}

type LogProviderCallInput struct {
	Operation    string `json:"operation"`
	RunID        string `json:"run_id"`
	SourceID     string `json:"source_id,omitempty"`
	ProviderName string `json:"provider_name"`
	Model        string `json:"model,omitempty"`
	RequestID    string `json:"request_id"`
	Status       string `json:"status"`
	ErrorType    string `json:"error_type,omitempty"`
}
