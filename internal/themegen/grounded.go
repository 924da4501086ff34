package themegen

import (
	"context"
	"sort"
	"strings"

	"themeflow/internal/coding"
	"themeflow/internal/models"
	"themeflow/internal/vector"
)

// GroundedGenerator implements grounded-theory coding for the
// hypothesis_generation purpose: open coding over the raw codes, axial
// grouping into categories with explicit relationships, then selective
// identification of one core category. Each axial category becomes a
// candidate theme carrying a theoretical-saturation metric.
type GroundedGenerator struct{}

func (g *GroundedGenerator) Name() string { return "grounded_theory_coding" }

type axialCategory struct {
	codes     []models.Code
	centroid  []float32
	keywords  []string
	relations []categoryRelation
}

type categoryRelation struct {
	target   int
	kind     string
	strength float64
}

var causalCues = []string{"because", "leads to", "results in", "causes", "due to", "therefore"}

const axialSimilarity = 0.62

func (g *GroundedGenerator) Generate(ctx context.Context, in Input) ([]models.CandidateTheme, error) {
	_ = ctx
	if len(in.Codes) == 0 {
		return nil, nil
	}

	// Open coding: every code is admitted as-is; grounded theory starts from
	// the raw incidents, not filtered summaries.
	categories := axialCoding(in.Codes)
	relateCategories(categories)
	core := selectiveCoding(categories)

	totalCodes := len(in.Codes)
	themes := make([]models.CandidateTheme, 0, len(categories))
	for idx, cat := range categories {
		metrics := map[string]float64{
			"theoretical_saturation": saturation(cat.codes, in.Sources),
			"relation_count":         float64(len(cat.relations)),
		}
		if idx == core {
			metrics["core_category"] = 1
		}
		desc := groundedDescription(cat, idx == core)
		themes = append(themes, models.CandidateTheme{
			Label:       keywordLabel(cat.keywords, cat.codes),
			Description: desc,
			Codes:       cat.codes,
			SourceIDs:   sourceIDSet(cat.codes),
			Keywords:    cat.keywords,
			Weight:      float64(len(cat.codes)) / float64(totalCodes),
			Metrics:     metrics,
		})
	}
	sort.SliceStable(themes, func(i, j int) bool { return themes[i].Weight > themes[j].Weight })
	return themes, nil
}

// axialCoding groups codes by embedding proximity into categories, the axial
// step of the method. The threshold is looser than default clustering since
// grounded categories deliberately span more variation.
func axialCoding(codes []models.Code) []*axialCategory {
	cats := make([]*axialCategory, 0)
	for _, code := range codes {
		if len(code.Embedding) == 0 {
			continue
		}
		best := -1
		bestSim := axialSimilarity
		for i, cat := range cats {
			if sim := vector.Cosine(code.Embedding, cat.centroid); sim >= bestSim {
				best = i
				bestSim = sim
			}
		}
		if best >= 0 {
			cats[best].codes = append(cats[best].codes, code)
			vecs := make([][]float32, 0, len(cats[best].codes))
			for _, c := range cats[best].codes {
				vecs = append(vecs, c.Embedding)
			}
			cats[best].centroid = vector.Centroid(vecs)
			continue
		}
		cats = append(cats, &axialCategory{codes: []models.Code{code}, centroid: code.Embedding})
	}
	for _, cat := range cats {
		freq := map[string]int{}
		for _, c := range cat.codes {
			freq = coding.MergeKeywordCounts(freq, coding.TermFrequency(strings.Join(c.Excerpts, " ")))
		}
		cat.keywords = coding.TopTerms(freq, clusterKeywords)
	}
	return cats
}

// relateCategories records explicit relationships between category pairs:
// causal when either side's excerpts carry causal cue phrases, associative
// when they merely share sources.
func relateCategories(cats []*axialCategory) {
	for i := range cats {
		srcI := map[string]struct{}{}
		for _, c := range cats[i].codes {
			srcI[c.SourceID] = struct{}{}
		}
		for j := range cats {
			if i == j {
				continue
			}
			shared := 0
			for _, c := range cats[j].codes {
				if _, ok := srcI[c.SourceID]; ok {
					shared++
				}
			}
			if shared == 0 {
				continue
			}
			kind := "associated_with"
			if hasCausalCue(cats[i].codes) || hasCausalCue(cats[j].codes) {
				kind = "causal"
			}
			cats[i].relations = append(cats[i].relations, categoryRelation{
				target:   j,
				kind:     kind,
				strength: float64(shared) / float64(len(cats[j].codes)),
			})
		}
	}
}

func hasCausalCue(codes []models.Code) bool {
	for _, c := range codes {
		text := strings.ToLower(strings.Join(c.Excerpts, " "))
		for _, cue := range causalCues {
			if strings.Contains(text, cue) {
				return true
			}
		}
	}
	return false
}

// selectiveCoding picks the core category: the one most connected to the
// rest, ties broken by size.
func selectiveCoding(cats []*axialCategory) int {
	best := -1
	bestScore := -1.0
	for i, cat := range cats {
		score := float64(len(cat.relations))*10 + float64(len(cat.codes))
		if score > bestScore {
			best = i
			bestScore = score
		}
	}
	return best
}

// saturation approximates theoretical saturation: the fraction of a
// category's codes contributed by the first two-thirds of the source list.
// Later sources adding little new material means the category is saturated.
func saturation(codes []models.Code, sources []models.Source) float64 {
	if len(codes) == 0 || len(sources) == 0 {
		return 0
	}
	order := map[string]int{}
	for i, s := range sources {
		if _, ok := order[s.SourceID]; !ok {
			order[s.SourceID] = i
		}
	}
	cut := (len(sources) * 2) / 3
	if cut == 0 {
		cut = 1
	}
	early := 0
	for _, c := range codes {
		if idx, ok := order[c.SourceID]; ok && idx < cut {
			early++
		}
	}
	return float64(early) / float64(len(codes))
}

func groundedDescription(cat *axialCategory, isCore bool) string {
	b := strings.Builder{}
	if isCore {
		b.WriteString("Core category. ")
	}
	b.WriteString("Axial category over ")
	b.WriteString(strings.Join(headConcepts(cat.keywords, 4), ", "))
	if len(cat.relations) > 0 {
		kinds := map[string]int{}
		for _, rel := range cat.relations {
			kinds[rel.kind]++
		}
		if kinds["causal"] > 0 {
			b.WriteString("; carries causal relationships to other categories")
		} else {
			b.WriteString("; associated with other categories through shared sources")
		}
	}
	b.WriteString(".")
	return b.String()
}
