package themegen

import (
	"context"
	"errors"
	"fmt"
	"log"

	"themeflow/internal/models"
	"themeflow/internal/providers"
	"themeflow/internal/purpose"
)

// ErrPipelineUnavailable marks a specialized generator that cannot run; the
// registry substitutes the default clustering generator instead of failing
// the extraction.
var ErrPipelineUnavailable = errors.New("specialized pipeline unavailable")

var specializedPurposes = map[purpose.Purpose]bool{
	purpose.LiteratureSynthesis:  true,
	purpose.HypothesisGeneration: true,
}

type Input struct {
	Sources    []models.Source
	Codes      []models.Code
	Embeddings []models.SourceEmbedding
	Config     purpose.Config
	// Labeler is optional; when nil, labels come from cluster keywords.
	Labeler providers.LLMProvider
}

// Generator is one candidate-theme construction strategy. Implementations
// are pure over their inputs apart from optional labeling calls.
type Generator interface {
	Name() string
	Generate(ctx context.Context, in Input) ([]models.CandidateTheme, error)
}

// Registry dispatches on purpose to a closed set of generator variants, three
// purposes sharing the default clustering strategy.
type Registry struct {
	fallback    Generator
	specialized map[purpose.Purpose]Generator
}

type Option func(*Registry)

// WithoutSpecialized drops a specialized pipeline from the registry. Used
// when a deployment disables one; extraction then degrades to clustering.
func WithoutSpecialized(p purpose.Purpose) Option {
	return func(r *Registry) {
		delete(r.specialized, p)
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		fallback: &ClusterGenerator{},
		specialized: map[purpose.Purpose]Generator{
			purpose.LiteratureSynthesis:  &SynthesisGenerator{},
			purpose.HypothesisGeneration: &GroundedGenerator{},
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Generate runs the generator selected by the input's purpose. When the
// specialized variant is missing or reports itself unavailable, the default
// clustering generator runs instead and the degradation notice is returned
// for the methodology report. Extraction never hard-fails solely because a
// specialized pipeline is absent.
func (r *Registry) Generate(ctx context.Context, in Input) ([]models.CandidateTheme, string, []string, error) {
	var notices []string
	gen, ok := r.specialized[in.Config.Purpose]
	if !ok {
		if specializedPurposes[in.Config.Purpose] {
			notices = append(notices, fmt.Sprintf("specialized pipeline for %s unavailable; using default clustering", in.Config.Purpose))
			log.Printf("themegen: specialized pipeline for %s unavailable, degrading to clustering", in.Config.Purpose)
		}
		gen = r.fallback
	}
	themes, err := gen.Generate(ctx, in)
	if errors.Is(err, ErrPipelineUnavailable) && gen != r.fallback {
		notices = append(notices, fmt.Sprintf("specialized pipeline for %s unavailable; using default clustering", in.Config.Purpose))
		log.Printf("themegen: %s pipeline unavailable, degrading to clustering", gen.Name())
		gen = r.fallback
		themes, err = gen.Generate(ctx, in)
	}
	if err != nil {
		return nil, gen.Name(), notices, err
	}
	return themes, gen.Name(), notices, nil
}

func sourceIDSet(codes []models.Code) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if _, ok := seen[c.SourceID]; ok {
			continue
		}
		seen[c.SourceID] = struct{}{}
		out = append(out, c.SourceID)
	}
	return out
}
