package themegen

import (
	"context"
	"sort"
	"strings"

	"themeflow/internal/coding"
	"themeflow/internal/models"
	"themeflow/internal/providers"
	"themeflow/internal/vector"
)

const clusterKeywords = 8

// ClusterGenerator is the default strategy shared by q_methodology,
// survey_construction and qualitative_analysis: greedy centroid-threshold
// clustering of code embeddings followed by term-frequency keyword coding.
type ClusterGenerator struct{}

func (g *ClusterGenerator) Name() string { return "embedding_clustering" }

type cluster struct {
	codes    []models.Code
	centroid []float32
}

func (g *ClusterGenerator) Generate(ctx context.Context, in Input) ([]models.CandidateTheme, error) {
	clusters := clusterCodes(in.Codes, in.Config.ClusterSimilarity)
	if len(clusters) == 0 {
		return nil, nil
	}

	total := len(in.Codes)
	themes := make([]models.CandidateTheme, 0, len(clusters))
	for _, cl := range clusters {
		freq := map[string]int{}
		for _, c := range cl.codes {
			freq = coding.MergeKeywordCounts(freq, coding.TermFrequency(strings.Join(c.Excerpts, " ")))
		}
		keywords := coding.TopTerms(freq, clusterKeywords)
		label := labelCluster(ctx, in.Labeler, keywords, cl.codes)
		themes = append(themes, models.CandidateTheme{
			Label:     label,
			Codes:     cl.codes,
			SourceIDs: sourceIDSet(cl.codes),
			Keywords:  keywords,
			Weight:    float64(len(cl.codes)) / float64(total),
		})
	}
	sort.SliceStable(themes, func(i, j int) bool { return themes[i].Weight > themes[j].Weight })
	return themes, nil
}

// clusterCodes assigns each code to the first cluster whose centroid clears
// the similarity threshold, otherwise opens a new cluster. Centroids are
// recomputed incrementally so a growing cluster stays representative.
func clusterCodes(codes []models.Code, threshold float64) []cluster {
	if threshold <= 0 {
		threshold = 0.7
	}
	clusters := make([]cluster, 0)
	for _, code := range codes {
		if len(code.Embedding) == 0 {
			continue
		}
		best := -1
		bestSim := threshold
		for i := range clusters {
			sim := vector.Cosine(code.Embedding, clusters[i].centroid)
			if sim >= bestSim {
				best = i
				bestSim = sim
			}
		}
		if best >= 0 {
			clusters[best].codes = append(clusters[best].codes, code)
			vecs := make([][]float32, 0, len(clusters[best].codes))
			for _, c := range clusters[best].codes {
				vecs = append(vecs, c.Embedding)
			}
			clusters[best].centroid = vector.Centroid(vecs)
			continue
		}
		clusters = append(clusters, cluster{codes: []models.Code{code}, centroid: code.Embedding})
	}
	return clusters
}

// labelCluster asks the LLM for a short label when one is configured and
// falls back to the top keywords otherwise. Labeling is best-effort: a
// provider failure never fails candidate generation.
func labelCluster(ctx context.Context, labeler providers.LLMProvider, keywords []string, codes []models.Code) string {
	fallback := keywordLabel(keywords, codes)
	if labeler == nil {
		return fallback
	}
	excerpts := make([]string, 0, 3)
	for _, c := range codes {
		if len(excerpts) == 3 {
			break
		}
		if len(c.Excerpts) > 0 {
			excerpts = append(excerpts, c.Excerpts[0])
		}
	}
	resp, _, err := labeler.Generate(ctx, providers.GenerateRequest{
		Operation: "theme_label",
		Prompt:    "Name this qualitative theme in at most five words. Keywords: " + strings.Join(keywords, ", "),
		Context:   excerpts,
	})
	if err != nil || strings.TrimSpace(resp.Text) == "" {
		return fallback
	}
	label := strings.TrimSpace(resp.Text)
	if idx := strings.IndexByte(label, '\n'); idx > 0 {
		label = label[:idx]
	}
	return label
}

func keywordLabel(keywords []string, codes []models.Code) string {
	if len(keywords) > 0 {
		n := len(keywords)
		if n > 3 {
			n = 3
		}
		return strings.Join(keywords[:n], " / ")
	}
	if len(codes) > 0 {
		return codes[0].Label
	}
	return "unlabeled theme"
}
