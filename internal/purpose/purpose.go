package purpose

import (
	"errors"
	"fmt"
	"math"
)

// Purpose selects the analysis mode. It parameterizes thresholds and target
// counts everywhere, and for two purposes it selects an entirely different
// candidate-generation algorithm.
type Purpose string

const (
	QMethodology         Purpose = "q_methodology"
	SurveyConstruction   Purpose = "survey_construction"
	QualitativeAnalysis  Purpose = "qualitative_analysis"
	LiteratureSynthesis  Purpose = "literature_synthesis"
	HypothesisGeneration Purpose = "hypothesis_generation"
)

var (
	ErrUnknownPurpose = errors.New("unknown research purpose")
	ErrInvalidConfig  = errors.New("invalid purpose configuration")
)

// QualityWeights blend the validator's per-gate scores into a theme
// confidence. Components must sum to 1.0.
type QualityWeights struct {
	Coherence       float64 `json:"coherence"`
	Distinctiveness float64 `json:"distinctiveness"`
	Evidence        float64 `json:"evidence"`
}

type ValidationLevel string

const (
	ValidationStandard ValidationLevel = "standard"
	ValidationStrict   ValidationLevel = "strict"
)

type Config struct {
	Purpose           Purpose         `json:"purpose"`
	TargetThemesMin   int             `json:"target_themes_min"`
	TargetThemesMax   int             `json:"target_themes_max"`
	MinConfidence     float64         `json:"min_confidence"`
	ValidationLevel   ValidationLevel `json:"validation_level"`
	MinSources        int             `json:"min_sources"`
	MinCoherence      float64         `json:"min_coherence"`
	ClusterSimilarity float64         `json:"cluster_similarity"`
	Weights           QualityWeights  `json:"weights"`
	RequiresFullText  bool            `json:"requires_full_text"`
}

var configs = map[Purpose]Config{
	QMethodology: {
		Purpose:           QMethodology,
		TargetThemesMin:   20,
		TargetThemesMax:   60,
		MinConfidence:     0.5,
		ValidationLevel:   ValidationStandard,
		MinSources:        2,
		MinCoherence:      0.55,
		ClusterSimilarity: 0.68,
		Weights:           QualityWeights{Coherence: 0.4, Distinctiveness: 0.35, Evidence: 0.25},
		RequiresFullText:  false,
	},
	SurveyConstruction: {
		Purpose:           SurveyConstruction,
		TargetThemesMin:   8,
		TargetThemesMax:   15,
		MinConfidence:     0.6,
		ValidationLevel:   ValidationStrict,
		MinSources:        3,
		MinCoherence:      0.65,
		ClusterSimilarity: 0.74,
		Weights:           QualityWeights{Coherence: 0.45, Distinctiveness: 0.3, Evidence: 0.25},
		RequiresFullText:  false,
	},
	QualitativeAnalysis: {
		Purpose:           QualitativeAnalysis,
		TargetThemesMin:   5,
		TargetThemesMax:   20,
		MinConfidence:     0.5,
		ValidationLevel:   ValidationStandard,
		MinSources:        2,
		MinCoherence:      0.6,
		ClusterSimilarity: 0.7,
		Weights:           QualityWeights{Coherence: 0.4, Distinctiveness: 0.3, Evidence: 0.3},
		RequiresFullText:  false,
	},
	LiteratureSynthesis: {
		Purpose:           LiteratureSynthesis,
		TargetThemesMin:   6,
		TargetThemesMax:   14,
		MinConfidence:     0.55,
		ValidationLevel:   ValidationStrict,
		MinSources:        3,
		MinCoherence:      0.6,
		ClusterSimilarity: 0.72,
		Weights:           QualityWeights{Coherence: 0.35, Distinctiveness: 0.3, Evidence: 0.35},
		RequiresFullText:  true,
	},
	HypothesisGeneration: {
		Purpose:           HypothesisGeneration,
		TargetThemesMin:   5,
		TargetThemesMax:   12,
		MinConfidence:     0.5,
		ValidationLevel:   ValidationStandard,
		MinSources:        2,
		MinCoherence:      0.55,
		ClusterSimilarity: 0.68,
		Weights:           QualityWeights{Coherence: 0.35, Distinctiveness: 0.35, Evidence: 0.3},
		RequiresFullText:  false,
	},
}

// All returns the five enumerated purposes in a stable order.
func All() []Purpose {
	return []Purpose{QMethodology, SurveyConstruction, QualitativeAnalysis, LiteratureSynthesis, HypothesisGeneration}
}

// Resolve maps a purpose to its pre-validated config. Side-effect-free and
// safe to call concurrently; the table is never mutated after init.
func Resolve(p Purpose) (Config, error) {
	cfg, ok := configs[p]
	if !ok {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownPurpose, p)
	}
	return cfg, nil
}

// ValidateConfigs is called once at process start and fails fast when any
// purpose's config is malformed.
func ValidateConfigs() error {
	for _, p := range All() {
		cfg, ok := configs[p]
		if !ok {
			return fmt.Errorf("%w: missing config for %q", ErrInvalidConfig, p)
		}
		if cfg.TargetThemesMin <= 0 || cfg.TargetThemesMin > cfg.TargetThemesMax {
			return fmt.Errorf("%w: %q theme count bounds [%d,%d]", ErrInvalidConfig, p, cfg.TargetThemesMin, cfg.TargetThemesMax)
		}
		if cfg.MinSources < 1 {
			return fmt.Errorf("%w: %q min sources %d", ErrInvalidConfig, p, cfg.MinSources)
		}
		if cfg.MinCoherence <= 0 || cfg.MinCoherence >= 1 {
			return fmt.Errorf("%w: %q min coherence %f", ErrInvalidConfig, p, cfg.MinCoherence)
		}
		sum := cfg.Weights.Coherence + cfg.Weights.Distinctiveness + cfg.Weights.Evidence
		if math.Abs(sum-1.0) > 1e-9 {
			return fmt.Errorf("%w: %q quality weights sum to %f, want 1.0", ErrInvalidConfig, p, sum)
		}
	}
	return nil
}
