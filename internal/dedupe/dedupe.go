package dedupe

import (
	"sort"
	"strings"

	"themeflow/internal/models"
	"themeflow/internal/vector"

	"github.com/google/uuid"
)

const (
	// Two themes merge at this keyword-set Jaccard overlap.
	KeywordMergeThreshold = 0.5
	// Or at this label-token Jaccard overlap.
	LabelMergeThreshold = 0.7

	citationChainLimit = 10
)

// keyedTheme precomputes the keyword and label token sets once per input
// theme so the pairwise comparison stays O(n*k) instead of re-deriving sets
// for every pair.
type keyedTheme struct {
	theme    models.CandidateTheme
	keywords map[string]struct{}
	label    map[string]struct{}
	// types of the constituent themes folded into this one, for provenance.
	types []models.SourceType
}

func newKeyedTheme(t models.CandidateTheme, st models.SourceType) keyedTheme {
	return keyedTheme{
		theme:    t,
		keywords: lowerSet(t.Keywords),
		label:    lowerSet(strings.Fields(t.Label)),
		types:    []models.SourceType{st},
	}
}

// Deduplicate collapses near-duplicate themes within one run. Merging never
// drops a source attribution: source ids are unioned, keywords are unioned,
// weights are summed, and the higher-weight constituent keeps the label and
// description. Passes repeat until a fixpoint so the result is idempotent.
func Deduplicate(themes []models.CandidateTheme) []models.CandidateTheme {
	keyed := make([]keyedTheme, 0, len(themes))
	for _, t := range themes {
		keyed = append(keyed, newKeyedTheme(t, ""))
	}
	merged := mergeToFixpoint(keyed)
	out := make([]models.CandidateTheme, 0, len(merged))
	for _, kt := range merged {
		out = append(out, kt.theme)
	}
	return out
}

type SourceGroup struct {
	Type      models.SourceType
	Themes    []models.CandidateTheme
	SourceIDs []string
}

// MergeFromSources merges themes across source-type groups into the final
// unified set with provenance: per-type influence shares normalized to 1.0
// and a citation chain of the top sources ordered DOI > URL > title-only.
func MergeFromSources(groups []SourceGroup, sources map[string]models.Source) []models.UnifiedTheme {
	keyed := make([]keyedTheme, 0)
	for _, g := range groups {
		for _, t := range g.Themes {
			keyed = append(keyed, newKeyedTheme(t, g.Type))
		}
	}
	merged := mergeToFixpoint(keyed)

	out := make([]models.UnifiedTheme, 0, len(merged))
	for _, kt := range merged {
		t := kt.theme
		vecs := make([][]float32, 0, len(t.Codes))
		for _, c := range t.Codes {
			vecs = append(vecs, c.Embedding)
		}
		out = append(out, models.UnifiedTheme{
			ThemeID:     uuid.NewString(),
			Label:       t.Label,
			Description: t.Description,
			Keywords:    t.Keywords,
			SourceIDs:   t.SourceIDs,
			Confidence:  t.Metrics["confidence"],
			Weight:      t.Weight,
			Provenance: models.Provenance{
				InfluenceByType: influenceByType(kt.types),
				CitationChain:   citationChain(t.SourceIDs, sources),
			},
			Embedding: vector.Centroid(vecs),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	return out
}

// mergeToFixpoint runs greedy merge passes until no pass merges anything,
// which makes Deduplicate idempotent even when a union grows a theme into
// overlap with a later one.
func mergeToFixpoint(keyed []keyedTheme) []keyedTheme {
	current := keyed
	for {
		next, changed := mergePass(current)
		if !changed {
			return next
		}
		current = next
	}
}

func mergePass(keyed []keyedTheme) ([]keyedTheme, bool) {
	accepted := make([]keyedTheme, 0, len(keyed))
	changed := false
	for _, kt := range keyed {
		target := -1
		for i := range accepted {
			if jaccard(kt.keywords, accepted[i].keywords) >= KeywordMergeThreshold ||
				jaccard(kt.label, accepted[i].label) >= LabelMergeThreshold {
				target = i
				break
			}
		}
		if target < 0 {
			accepted = append(accepted, kt)
			continue
		}
		accepted[target] = mergePair(accepted[target], kt)
		changed = true
	}
	return accepted, changed
}

func mergePair(a, b keyedTheme) keyedTheme {
	hi, lo := a, b
	if b.theme.Weight > a.theme.Weight {
		hi, lo = b, a
	}
	merged := hi.theme
	merged.Weight = a.theme.Weight + b.theme.Weight
	merged.Keywords = unionStrings(hi.theme.Keywords, lo.theme.Keywords)
	merged.SourceIDs = unionStrings(hi.theme.SourceIDs, lo.theme.SourceIDs)
	merged.Codes = append(append([]models.Code{}, hi.theme.Codes...), lo.theme.Codes...)
	if merged.Metrics == nil && lo.theme.Metrics != nil {
		merged.Metrics = lo.theme.Metrics
	}

	out := newKeyedTheme(merged, "")
	out.types = append(append([]models.SourceType{}, a.types...), b.types...)
	return out
}

func influenceByType(types []models.SourceType) map[string]float64 {
	counts := map[string]int{}
	total := 0
	for _, t := range types {
		if t == "" {
			continue
		}
		counts[string(t)]++
		total++
	}
	out := map[string]float64{}
	if total == 0 {
		return out
	}
	for t, c := range counts {
		out[t] = float64(c) / float64(total)
	}
	return out
}

// citationChain ranks a theme's sources DOI-first, then URL, then title-only,
// deduplicated, truncated to the top ten.
func citationChain(sourceIDs []string, sources map[string]models.Source) []models.Citation {
	seen := map[string]struct{}{}
	cites := make([]models.Citation, 0, len(sourceIDs))
	for _, sid := range sourceIDs {
		if _, ok := seen[sid]; ok {
			continue
		}
		seen[sid] = struct{}{}
		src, ok := sources[sid]
		if !ok {
			cites = append(cites, models.Citation{SourceID: sid})
			continue
		}
		cites = append(cites, models.Citation{
			SourceID: sid,
			Title:    src.Title,
			DOI:      src.Metadata["doi"],
			URL:      src.Metadata["url"],
		})
	}
	sort.SliceStable(cites, func(i, j int) bool {
		return citationRank(cites[i]) < citationRank(cites[j])
	})
	if len(cites) > citationChainLimit {
		cites = cites[:citationChainLimit]
	}
	return cites
}

func citationRank(c models.Citation) int {
	switch {
	case c.DOI != "":
		return 0
	case c.URL != "":
		return 1
	default:
		return 2
	}
}

func lowerSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		it = strings.ToLower(strings.TrimSpace(it))
		if it != "" {
			set[it] = struct{}{}
		}
	}
	return set
}

func unionStrings(a, b []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			key := strings.ToLower(s)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, s)
		}
	}
	return out
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
