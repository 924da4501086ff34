package models

import "time"

// SourceType is a case-sensitive lowercase token identifying where a source
// came from. Unknown values are rejected at the API boundary.
type SourceType string

const (
	SourcePaper   SourceType = "paper"
	SourceVideo   SourceType = "video"
	SourcePodcast SourceType = "podcast"
	SourceSocial  SourceType = "social"
)

func ValidSourceType(t SourceType) bool {
	switch t {
	case SourcePaper, SourceVideo, SourcePodcast, SourceSocial:
		return true
	}
	return false
}

type Source struct {
	SourceID  string            `json:"source_id"`
	Type      SourceType        `json:"type"`
	Title     string            `json:"title"`
	Content   string            `json:"content"`
	Keywords  []string          `json:"keywords,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at,omitempty"`
	UpdatedAt time.Time         `json:"updated_at,omitempty"`
}

// Code is an atomic unit of meaning extracted from one source. Never mutated
// after familiarization creates it.
type Code struct {
	CodeID    string    `json:"code_id"`
	SourceID  string    `json:"source_id"`
	Label     string    `json:"label"`
	Excerpts  []string  `json:"excerpts"`
	Keywords  []string  `json:"keywords,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
}

type SourceEmbedding struct {
	SourceID string    `json:"source_id"`
	Vector   []float32 `json:"vector"`
}

// CandidateTheme is a cluster of codes before validation. Metrics carries
// algorithm-specific quality numbers such as translation completeness or
// theoretical saturation.
type CandidateTheme struct {
	Label       string             `json:"label"`
	Description string             `json:"description,omitempty"`
	Codes       []Code             `json:"codes"`
	SourceIDs   []string           `json:"source_ids"`
	Keywords    []string           `json:"keywords"`
	Weight      float64            `json:"weight"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
}

type Citation struct {
	SourceID string `json:"source_id"`
	Title    string `json:"title"`
	DOI      string `json:"doi,omitempty"`
	URL      string `json:"url,omitempty"`
}

type Provenance struct {
	InfluenceByType map[string]float64 `json:"influence_by_type"`
	CitationChain   []Citation         `json:"citation_chain"`
}

type UnifiedTheme struct {
	ThemeID     string     `json:"theme_id"`
	Label       string     `json:"label"`
	Description string     `json:"description,omitempty"`
	Keywords    []string   `json:"keywords"`
	SourceIDs   []string   `json:"source_ids"`
	Confidence  float64    `json:"confidence"`
	Weight      float64    `json:"weight"`
	Provenance  Provenance `json:"provenance"`
	Embedding   []float32  `json:"embedding,omitempty"`
}

// FamiliarizationStats are the cumulative counters carried by every progress
// event and mirrored in the final response as the authoritative fallback.
type FamiliarizationStats struct {
	SourcesAnalyzed    int     `json:"sources_analyzed"`
	FullTextRead       int     `json:"full_text_read"`
	AbstractsRead      int     `json:"abstracts_read"`
	TotalWordsRead     int     `json:"total_words_read"`
	FailedSources      int     `json:"failed_sources"`
	EmbeddingMagMean   float64 `json:"embedding_magnitude_mean"`
	EmbeddingMagStdDev float64 `json:"embedding_magnitude_stddev"`
}

type StageTiming struct {
	Stage      string `json:"stage"`
	DurationMS int64  `json:"duration_ms"`
}

type RejectionSummary struct {
	Candidates        int `json:"candidates"`
	Accepted          int `json:"accepted"`
	MinSourceFails    int `json:"min_source_fails"`
	CoherenceFails    int `json:"coherence_fails"`
	DistinctFails     int `json:"distinctiveness_fails"`
	EvidenceFails     int `json:"evidence_fails"`
	SingletonClusters int `json:"singleton_clusters,omitempty"`
}

type MethodologyReport struct {
	Purpose                  string           `json:"purpose"`
	Algorithm                string           `json:"algorithm"`
	ValidationLevel          string           `json:"validation_level"`
	StageTimings             []StageTiming    `json:"stage_timings"`
	SourcesTotal             int              `json:"sources_total"`
	CodesGenerated           int              `json:"codes_generated"`
	CandidatesGeneratedCount int              `json:"candidates_generated_count"`
	ThemesAfterValidation    int              `json:"themes_after_validation"`
	ThemesAfterDedup         int              `json:"themes_after_dedup"`
	Rejections               RejectionSummary `json:"validation_rejections"`
	DegradationNotices       []string         `json:"degradation_notices,omitempty"`
	Diagnosis                string           `json:"diagnosis,omitempty"`
}

type ExtractionRun struct {
	RunID     string    `json:"run_id"`
	Purpose   string    `json:"purpose"`
	Status    string    `json:"status"`
	Diagnosis string    `json:"diagnosis,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ThemeSearchResult struct {
	ThemeID  string  `json:"theme_id"`
	RunID    string  `json:"run_id"`
	Label    string  `json:"label"`
	Keywords string  `json:"keywords"`
	Score    float64 `json:"score"`
}
