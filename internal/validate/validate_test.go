package validate

import (
	"testing"

	"themeflow/internal/models"
	"themeflow/internal/purpose"

	"github.com/stretchr/testify/require"
)

func mustConfig(t *testing.T) purpose.Config {
	t.Helper()
	cfg, err := purpose.Resolve(purpose.QualitativeAnalysis)
	require.NoError(t, err)
	return cfg
}

func coherentCandidate(sourceIDs []string, keywords []string) models.CandidateTheme {
	codes := make([]models.Code, 0, len(sourceIDs))
	for i, sid := range sourceIDs {
		codes = append(codes, models.Code{
			CodeID:    sid + "-code",
			SourceID:  sid,
			Excerpts:  []string{"evidence excerpt " + sid},
			Embedding: []float32{1, float32(i) * 0.01},
		})
	}
	return models.CandidateTheme{
		Label:     "candidate",
		Codes:     codes,
		SourceIDs: sourceIDs,
		Keywords:  keywords,
		Weight:    float64(len(codes)),
	}
}

func TestMinSourceGateIndependentOfCoherence(t *testing.T) {
	cfg := mustConfig(t)
	// One source below the minimum: rejected no matter how coherent.
	cand := coherentCandidate([]string{"only"}, []string{"alpha"})
	res := Run([]models.CandidateTheme{cand}, cfg)
	require.Empty(t, res.Accepted)
	require.Equal(t, 1, res.Summary.MinSourceFails)
	require.Equal(t, 1, res.Summary.SingletonClusters)
}

func TestCoherenceGate(t *testing.T) {
	cfg := mustConfig(t)
	cand := models.CandidateTheme{
		Codes: []models.Code{
			{SourceID: "a", Excerpts: []string{"x"}, Embedding: []float32{1, 0}},
			{SourceID: "b", Excerpts: []string{"y"}, Embedding: []float32{0, 1}},
		},
		SourceIDs: []string{"a", "b"},
		Keywords:  []string{"alpha"},
	}
	res := Run([]models.CandidateTheme{cand}, cfg)
	require.Empty(t, res.Accepted)
	require.Equal(t, 1, res.Summary.CoherenceFails)
}

func TestDistinctivenessGateAgainstAccepted(t *testing.T) {
	cfg := mustConfig(t)
	strong := coherentCandidate([]string{"a", "b", "c"}, []string{"alpha", "beta", "gamma"})
	strong.Weight = 10
	nearDup := coherentCandidate([]string{"d", "e"}, []string{"alpha", "beta", "gamma"})
	nearDup.Weight = 1

	res := Run([]models.CandidateTheme{nearDup, strong}, cfg)
	require.Len(t, res.Accepted, 1)
	// The heavier candidate is gated first and wins.
	require.Equal(t, []string{"a", "b", "c"}, res.Accepted[0].SourceIDs)
	require.Equal(t, 1, res.Summary.DistinctFails)
}

func TestEvidenceQualityGate(t *testing.T) {
	cfg := mustConfig(t)
	cand := coherentCandidate([]string{"a", "b"}, []string{"alpha"})
	for i := range cand.Codes {
		cand.Codes[i].Excerpts = []string{"  "}
	}
	res := Run([]models.CandidateTheme{cand}, cfg)
	require.Empty(t, res.Accepted)
	require.Equal(t, 1, res.Summary.EvidenceFails)
}

func TestAcceptedCandidatesCarryConfidence(t *testing.T) {
	cfg := mustConfig(t)
	cand := coherentCandidate([]string{"a", "b"}, []string{"alpha", "beta"})
	res := Run([]models.CandidateTheme{cand}, cfg)
	require.Len(t, res.Accepted, 1)
	conf := res.Accepted[0].Metrics["confidence"]
	require.Greater(t, conf, 0.0)
	require.LessOrEqual(t, conf, 1.0)
	require.Greater(t, res.Accepted[0].Metrics["coherence"], cfg.MinCoherence)
}

func TestEvidenceQualityFraction(t *testing.T) {
	cand := models.CandidateTheme{Codes: []models.Code{
		{Excerpts: []string{"real"}},
		{Excerpts: []string{""}},
	}}
	require.InDelta(t, 0.5, EvidenceQuality(cand), 1e-9)
	require.Equal(t, 0.0, EvidenceQuality(models.CandidateTheme{}))
}
