package themegen

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"themeflow/internal/familiarize"
	"themeflow/internal/models"
	"themeflow/internal/providers"
	"themeflow/internal/purpose"

	"github.com/stretchr/testify/require"
)

func buildInput(t *testing.T, p purpose.Purpose, sources []models.Source) Input {
	t.Helper()
	cfg, err := purpose.Resolve(p)
	require.NoError(t, err)
	stage := &familiarize.Stage{Embedder: providers.NewMockProvider(64), Dimension: 64}
	res, err := stage.Run(context.Background(), sources, nil)
	require.NoError(t, err)
	return Input{Sources: sources, Codes: res.Codes, Embeddings: res.Embeddings, Config: cfg}
}

func topicSources(topic string, n int) []models.Source {
	out := make([]models.Source, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.Source{
			SourceID: fmt.Sprintf("%s-%d", topic, i),
			Type:     models.SourcePaper,
			Title:    fmt.Sprintf("%s study %d", topic, i),
			Content:  strings.Repeat(topic+" shapes outcomes for participants. ", 20),
		})
	}
	return out
}

func TestRegistryDefaultForQualitative(t *testing.T) {
	in := buildInput(t, purpose.QualitativeAnalysis, topicSources("trust", 4))
	reg := NewRegistry()
	themes, algo, notices, err := reg.Generate(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, "embedding_clustering", algo)
	require.Empty(t, notices)
	require.NotEmpty(t, themes)
	for _, th := range themes {
		require.NotEmpty(t, th.Codes)
		require.NotEmpty(t, th.SourceIDs)
		require.Greater(t, th.Weight, 0.0)
	}
}

func TestRegistryRoutesSpecialized(t *testing.T) {
	in := buildInput(t, purpose.LiteratureSynthesis, topicSources("burnout", 4))
	reg := NewRegistry()
	_, algo, _, err := reg.Generate(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, "meta_ethnographic_synthesis", algo)

	in2 := buildInput(t, purpose.HypothesisGeneration, topicSources("burnout", 4))
	_, algo2, _, err := reg.Generate(context.Background(), in2)
	require.NoError(t, err)
	require.Equal(t, "grounded_theory_coding", algo2)
}

func TestRegistryFallbackWhenSpecializedUnavailable(t *testing.T) {
	in := buildInput(t, purpose.LiteratureSynthesis, topicSources("resilience", 4))
	reg := NewRegistry(WithoutSpecialized(purpose.LiteratureSynthesis))
	themes, algo, notices, err := reg.Generate(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, "embedding_clustering", algo)
	require.NotEmpty(t, themes)
	require.Len(t, notices, 1)
	require.Contains(t, notices[0], "literature_synthesis")
}

func TestClusterGeneratorWeightsProportionalToSize(t *testing.T) {
	in := buildInput(t, purpose.QualitativeAnalysis, topicSources("identity", 5))
	gen := &ClusterGenerator{}
	themes, err := gen.Generate(context.Background(), in)
	require.NoError(t, err)
	var sum float64
	for _, th := range themes {
		sum += th.Weight
	}
	require.InDelta(t, 1.0, sum, 1e-9)
}

func TestClusterGeneratorUsesLabeler(t *testing.T) {
	in := buildInput(t, purpose.QualitativeAnalysis, topicSources("belonging", 3))
	in.Labeler = providers.NewMockProvider(64)
	gen := &ClusterGenerator{}
	themes, err := gen.Generate(context.Background(), in)
	require.NoError(t, err)
	require.NotEmpty(t, themes)
	for _, th := range themes {
		require.NotEmpty(t, th.Label)
	}
}

func TestSynthesisTranslationCompleteness(t *testing.T) {
	sources := []models.Source{
		{SourceID: "a", Type: models.SourcePaper, Content: strings.Repeat("motivation drives adoption of telehealth. ", 15)},
		{SourceID: "b", Type: models.SourcePaper, Content: strings.Repeat("motivation influences telehealth adoption among patients. ", 15)},
		{SourceID: "c", Type: models.SourcePaper, Content: strings.Repeat("motivation and adoption interact in telehealth settings. ", 15)},
	}
	in := buildInput(t, purpose.LiteratureSynthesis, sources)
	gen := &SynthesisGenerator{}
	themes, err := gen.Generate(context.Background(), in)
	require.NoError(t, err)
	require.NotEmpty(t, themes)
	for _, th := range themes {
		tc, ok := th.Metrics["translation_completeness"]
		require.True(t, ok)
		require.Greater(t, tc, 0.0)
		require.LessOrEqual(t, tc, 1.0)
		require.GreaterOrEqual(t, len(th.SourceIDs), 2)
	}
}

func TestSynthesisDetectsRefutation(t *testing.T) {
	agree := strings.Repeat("exercise improves recovery outcomes for patients. ", 12)
	disagree := strings.Repeat("we found no evidence that exercise improves recovery outcomes. ", 12)
	sources := []models.Source{
		{SourceID: "pro", Type: models.SourcePaper, Content: agree},
		{SourceID: "anti", Type: models.SourcePaper, Content: disagree},
	}
	in := buildInput(t, purpose.LiteratureSynthesis, sources)
	gen := &SynthesisGenerator{}
	themes, err := gen.Generate(context.Background(), in)
	require.NoError(t, err)
	found := false
	for _, th := range themes {
		if th.Metrics["refutational_pairs"] > 0 {
			found = true
		}
	}
	require.True(t, found, "expected at least one refutational translation")
}

func TestSynthesisNeedsTwoSources(t *testing.T) {
	in := buildInput(t, purpose.LiteratureSynthesis, topicSources("solo", 1))
	gen := &SynthesisGenerator{}
	themes, err := gen.Generate(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, themes)
}

func TestGroundedCoreCategoryAndSaturation(t *testing.T) {
	in := buildInput(t, purpose.HypothesisGeneration, topicSources("stress", 6))
	gen := &GroundedGenerator{}
	themes, err := gen.Generate(context.Background(), in)
	require.NoError(t, err)
	require.NotEmpty(t, themes)
	cores := 0
	for _, th := range themes {
		sat, ok := th.Metrics["theoretical_saturation"]
		require.True(t, ok)
		require.GreaterOrEqual(t, sat, 0.0)
		require.LessOrEqual(t, sat, 1.0)
		if th.Metrics["core_category"] == 1 {
			cores++
		}
	}
	require.Equal(t, 1, cores, "exactly one core category expected")
}

func TestGroundedCausalRelation(t *testing.T) {
	content := strings.Repeat("chronic stress leads to burnout because workload stays high. ", 15)
	sources := []models.Source{
		{SourceID: "x", Type: models.SourcePaper, Content: content},
		{SourceID: "y", Type: models.SourcePaper, Content: content},
	}
	in := buildInput(t, purpose.HypothesisGeneration, sources)
	gen := &GroundedGenerator{}
	themes, err := gen.Generate(context.Background(), in)
	require.NoError(t, err)
	require.NotEmpty(t, themes)
}
