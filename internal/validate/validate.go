package validate

import (
	"sort"
	"strings"

	"themeflow/internal/models"
	"themeflow/internal/purpose"
	"themeflow/internal/vector"
)

// Fixed gate thresholds; purpose configs vary only min-source and coherence.
const (
	MinDistinctiveness = 0.3
	MinEvidenceQuality = 0.5
)

type Result struct {
	Accepted []models.CandidateTheme
	Summary  models.RejectionSummary
}

// Run applies the validation gates to each candidate in order, rejecting (not
// raising) on the first failed gate. Candidates are considered
// weight-descending so the stronger of two near-duplicates is the one that
// survives the distinctiveness gate. Accepted candidates gain coherence,
// distinctiveness, evidence_quality and confidence metrics.
func Run(candidates []models.CandidateTheme, cfg purpose.Config) Result {
	ordered := make([]models.CandidateTheme, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Weight > ordered[j].Weight })

	res := Result{Summary: models.RejectionSummary{Candidates: len(candidates)}}
	acceptedSets := make([]map[string]struct{}, 0, len(ordered))

	for _, cand := range ordered {
		if len(cand.SourceIDs) < cfg.MinSources {
			res.Summary.MinSourceFails++
			if len(cand.SourceIDs) <= 1 {
				res.Summary.SingletonClusters++
			}
			continue
		}
		coh := Coherence(cand)
		if coh < cfg.MinCoherence {
			res.Summary.CoherenceFails++
			continue
		}
		candSet := keywordSet(cand.Keywords)
		dist := Distinctiveness(candSet, acceptedSets)
		if dist < MinDistinctiveness {
			res.Summary.DistinctFails++
			continue
		}
		ev := EvidenceQuality(cand)
		if ev < MinEvidenceQuality {
			res.Summary.EvidenceFails++
			continue
		}

		if cand.Metrics == nil {
			cand.Metrics = map[string]float64{}
		}
		cand.Metrics["coherence"] = coh
		cand.Metrics["distinctiveness"] = dist
		cand.Metrics["evidence_quality"] = ev
		cand.Metrics["confidence"] = cfg.Weights.Coherence*coh +
			cfg.Weights.Distinctiveness*dist +
			cfg.Weights.Evidence*ev

		res.Accepted = append(res.Accepted, cand)
		acceptedSets = append(acceptedSets, candSet)
	}
	res.Summary.Accepted = len(res.Accepted)
	return res
}

// Coherence is the average pairwise semantic similarity of the candidate's
// code embeddings.
func Coherence(cand models.CandidateTheme) float64 {
	vecs := make([][]float32, 0, len(cand.Codes))
	for _, c := range cand.Codes {
		vecs = append(vecs, c.Embedding)
	}
	return vector.MeanPairwiseCosine(vecs)
}

// Distinctiveness is 1 minus the maximum keyword-set similarity against any
// theme already accepted in this run.
func Distinctiveness(candSet map[string]struct{}, accepted []map[string]struct{}) float64 {
	maxSim := 0.0
	for _, other := range accepted {
		if sim := jaccard(candSet, other); sim > maxSim {
			maxSim = sim
		}
	}
	return 1 - maxSim
}

// EvidenceQuality is the fraction of the candidate's codes carrying at least
// one non-empty excerpt.
func EvidenceQuality(cand models.CandidateTheme) float64 {
	if len(cand.Codes) == 0 {
		return 0
	}
	evidenced := 0
	for _, c := range cand.Codes {
		for _, e := range c.Excerpts {
			if strings.TrimSpace(e) != "" {
				evidenced++
				break
			}
		}
	}
	return float64(evidenced) / float64(len(cand.Codes))
}

func keywordSet(keywords []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
