package dedupe

import (
	"math"
	"testing"

	"themeflow/internal/models"

	"github.com/stretchr/testify/require"
)

func theme(label string, weight float64, keywords, sourceIDs []string) models.CandidateTheme {
	return models.CandidateTheme{
		Label:       label,
		Description: "about " + label,
		Keywords:    keywords,
		SourceIDs:   sourceIDs,
		Weight:      weight,
		Metrics:     map[string]float64{"confidence": weight},
	}
}

func TestDeduplicateMergesOnKeywordOverlap(t *testing.T) {
	a := theme("remote collaboration", 0.6, []string{"remote", "team", "zoom", "slack"}, []string{"s1"})
	b := theme("distributed teams", 0.4, []string{"remote", "team", "zoom", "async"}, []string{"s2"})

	out := Deduplicate([]models.CandidateTheme{a, b})
	require.Len(t, out, 1)
	require.Equal(t, "remote collaboration", out[0].Label, "higher weight keeps the label")
	require.InDelta(t, 1.0, out[0].Weight, 1e-9)
	require.ElementsMatch(t, []string{"s1", "s2"}, out[0].SourceIDs)
	require.ElementsMatch(t, []string{"remote", "team", "zoom", "slack", "async"}, out[0].Keywords)
}

func TestDeduplicateMergesOnLabelOverlap(t *testing.T) {
	a := theme("student burnout during exams", 0.3, []string{"stress", "exams"}, []string{"s1"})
	b := theme("student burnout during finals exams", 0.5, []string{"sleep", "workload"}, []string{"s2"})

	out := Deduplicate([]models.CandidateTheme{a, b})
	require.Len(t, out, 1)
	require.Equal(t, "student burnout during finals exams", out[0].Label)
}

func TestDeduplicateKeepsDistinctThemes(t *testing.T) {
	a := theme("remote work", 0.5, []string{"remote", "office", "home"}, []string{"s1"})
	b := theme("food security", 0.5, []string{"nutrition", "supply", "farming"}, []string{"s2"})

	out := Deduplicate([]models.CandidateTheme{a, b})
	require.Len(t, out, 2)
}

func TestDeduplicateIdempotent(t *testing.T) {
	in := []models.CandidateTheme{
		theme("a", 0.4, []string{"alpha", "beta", "gamma"}, []string{"s1"}),
		theme("b", 0.3, []string{"alpha", "beta", "delta"}, []string{"s2"}),
		theme("c", 0.2, []string{"delta", "epsilon", "gamma"}, []string{"s3"}),
		theme("d", 0.1, []string{"other", "topic", "words"}, []string{"s4"}),
	}

	once := Deduplicate(in)
	twice := Deduplicate(once)
	require.Equal(t, once, twice)
}

func TestMergeFromSourcesProvenance(t *testing.T) {
	papers := SourceGroup{
		Type: models.SourcePaper,
		Themes: []models.CandidateTheme{
			theme("sleep quality", 0.5, []string{"sleep", "rest", "recovery"}, []string{"p1"}),
		},
	}
	videos := SourceGroup{
		Type: models.SourceVideo,
		Themes: []models.CandidateTheme{
			theme("sleep and rest", 0.3, []string{"sleep", "rest", "naps"}, []string{"v1"}),
		},
	}
	sources := map[string]models.Source{
		"p1": {SourceID: "p1", Title: "Sleep study", Metadata: map[string]string{"doi": "10.1/abc"}},
		"v1": {SourceID: "v1", Title: "Sleep talk", Metadata: map[string]string{"url": "https://example.com/v1"}},
	}

	out := MergeFromSources([]SourceGroup{papers, videos}, sources)
	require.Len(t, out, 1)

	sum := 0.0
	for _, share := range out[0].Provenance.InfluenceByType {
		sum += share
	}
	require.InDelta(t, 1.0, sum, 1e-9)
	require.InDelta(t, 0.5, out[0].Provenance.InfluenceByType["paper"], 1e-9)
	require.InDelta(t, 0.5, out[0].Provenance.InfluenceByType["video"], 1e-9)

	chain := out[0].Provenance.CitationChain
	require.Len(t, chain, 2)
	require.Equal(t, "p1", chain[0].SourceID, "DOI-bearing source ranks first")
	require.Equal(t, "v1", chain[1].SourceID)
	require.NotEmpty(t, out[0].ThemeID)
}

func TestMergeFromSourcesCitationChainCapped(t *testing.T) {
	ids := make([]string, 0, 15)
	sources := map[string]models.Source{}
	for i := 0; i < 15; i++ {
		id := string(rune('a' + i))
		ids = append(ids, id)
		sources[id] = models.Source{SourceID: id, Title: "Source " + id}
	}
	g := SourceGroup{
		Type:   models.SourcePaper,
		Themes: []models.CandidateTheme{theme("big theme", 1.0, []string{"one", "two"}, ids)},
	}

	out := MergeFromSources([]SourceGroup{g}, sources)
	require.Len(t, out, 1)
	require.Len(t, out[0].Provenance.CitationChain, 10)
}

func TestMergeFromSourcesKeepsDistinct(t *testing.T) {
	g := SourceGroup{
		Type: models.SourcePaper,
		Themes: []models.CandidateTheme{
			theme("remote work", 0.6, []string{"remote", "office"}, []string{"p1"}),
			theme("urban farming", 0.4, []string{"farming", "city"}, []string{"p2"}),
		},
	}
	out := MergeFromSources([]SourceGroup{g}, map[string]models.Source{})
	require.Len(t, out, 2)
	require.True(t, out[0].Weight >= out[1].Weight)
	for _, ut := range out {
		require.False(t, math.IsNaN(ut.Confidence))
	}
}
