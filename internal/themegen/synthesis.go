package themegen

import (
	"context"
	"sort"
	"strings"

	"themeflow/internal/coding"
	"themeflow/internal/models"
)

// SynthesisGenerator implements meta-ethnographic synthesis for the
// literature_synthesis purpose: reciprocal translation of concepts across
// sources, refutational-pair detection, and a line-of-argument grouping that
// becomes the candidate themes.
type SynthesisGenerator struct{}

func (g *SynthesisGenerator) Name() string { return "meta_ethnographic_synthesis" }

// translation is one row of the reciprocal translation table: a concept and
// the sources in which it appears, with the codes that evidence it.
type translation struct {
	concept   string
	sourceIDs []string
	codes     []models.Code
	// refutational is set when two sources take opposing stances on the
	// concept.
	refutational bool
}

var contradictionMarkers = []string{
	"not ", "no evidence", "fails", "failed", "contradict", "however",
	"in contrast", "refute", "disagree", "unlike", "counter to",
}

func (g *SynthesisGenerator) Generate(ctx context.Context, in Input) ([]models.CandidateTheme, error) {
	_ = ctx
	if len(in.Sources) < 2 {
		// Translation across sources needs at least two accounts.
		return nil, nil
	}

	table := buildTranslationTable(in.Codes)
	if len(table) == 0 {
		return nil, nil
	}
	markRefutational(table)

	groups := lineOfArgument(table)
	totalSources := len(in.Sources)
	totalCodes := len(in.Codes)

	themes := make([]models.CandidateTheme, 0, len(groups))
	for _, grp := range groups {
		var codes []models.Code
		seenCodes := map[string]struct{}{}
		concepts := make([]string, 0, len(grp))
		srcSet := map[string]struct{}{}
		refutations := 0
		for _, tr := range grp {
			concepts = append(concepts, tr.concept)
			if tr.refutational {
				refutations++
			}
			for _, sid := range tr.sourceIDs {
				srcSet[sid] = struct{}{}
			}
			for _, c := range tr.codes {
				if _, ok := seenCodes[c.CodeID]; ok {
					continue
				}
				seenCodes[c.CodeID] = struct{}{}
				codes = append(codes, c)
			}
		}
		sourceIDs := make([]string, 0, len(srcSet))
		for sid := range srcSet {
			sourceIDs = append(sourceIDs, sid)
		}
		sort.Strings(sourceIDs)
		sort.Strings(concepts)

		weight := 0.0
		if totalCodes > 0 {
			weight = float64(len(codes)) / float64(totalCodes)
		}
		themes = append(themes, models.CandidateTheme{
			Label:       strings.Join(headConcepts(concepts, 3), " / "),
			Description: synthesisDescription(concepts, refutations),
			Codes:       codes,
			SourceIDs:   sourceIDs,
			Keywords:    concepts,
			Weight:      weight,
			Metrics: map[string]float64{
				"translation_completeness": float64(len(sourceIDs)) / float64(totalSources),
				"refutational_pairs":       float64(refutations),
			},
		})
	}
	sort.SliceStable(themes, func(i, j int) bool { return themes[i].Weight > themes[j].Weight })
	return themes, nil
}

// buildTranslationTable maps each concept (code keyword) to the sources that
// express it. Concepts present in only one source translate nothing and are
// dropped.
func buildTranslationTable(codes []models.Code) []translation {
	byConcept := map[string]*translation{}
	for _, c := range codes {
		kws := c.Keywords
		if len(kws) == 0 {
			kws = coding.Keywords(strings.Join(c.Excerpts, " "), 5)
		}
		for _, kw := range kws {
			tr, ok := byConcept[kw]
			if !ok {
				tr = &translation{concept: kw}
				byConcept[kw] = tr
			}
			if !containsString(tr.sourceIDs, c.SourceID) {
				tr.sourceIDs = append(tr.sourceIDs, c.SourceID)
			}
			tr.codes = append(tr.codes, c)
		}
	}
	out := make([]translation, 0, len(byConcept))
	for _, tr := range byConcept {
		if len(tr.sourceIDs) < 2 {
			continue
		}
		sort.Strings(tr.sourceIDs)
		out = append(out, *tr)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].sourceIDs) != len(out[j].sourceIDs) {
			return len(out[i].sourceIDs) > len(out[j].sourceIDs)
		}
		return out[i].concept < out[j].concept
	})
	return out
}

// markRefutational flags concepts where one source's excerpts carry
// contradiction markers around the concept and another's do not, which is a
// direct disagreement on the same construct.
func markRefutational(table []translation) {
	for i := range table {
		stances := map[string]bool{}
		for _, c := range table[i].codes {
			text := strings.ToLower(strings.Join(c.Excerpts, " "))
			if !strings.Contains(text, table[i].concept) {
				continue
			}
			negated := false
			for _, marker := range contradictionMarkers {
				if strings.Contains(text, marker) {
					negated = true
					break
				}
			}
			if prev, ok := stances[c.SourceID]; ok && prev != negated {
				continue
			}
			stances[c.SourceID] = negated
		}
		sawAffirm, sawNegate := false, false
		for _, negated := range stances {
			if negated {
				sawNegate = true
			} else {
				sawAffirm = true
			}
		}
		table[i].refutational = sawAffirm && sawNegate
	}
}

// lineOfArgument groups translations whose supporting source sets overlap
// (Jaccard >= 0.5) into one higher-order argument, the candidate theme.
func lineOfArgument(table []translation) [][]translation {
	groups := make([][]translation, 0)
	groupSets := make([]map[string]struct{}, 0)
	for _, tr := range table {
		trSet := map[string]struct{}{}
		for _, sid := range tr.sourceIDs {
			trSet[sid] = struct{}{}
		}
		placed := false
		for gi := range groups {
			if jaccardSets(trSet, groupSets[gi]) >= 0.5 {
				groups[gi] = append(groups[gi], tr)
				for sid := range trSet {
					groupSets[gi][sid] = struct{}{}
				}
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []translation{tr})
			groupSets = append(groupSets, trSet)
		}
	}
	return groups
}

func jaccardSets(a, b map[string]struct{}) float64 {
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

func synthesisDescription(concepts []string, refutations int) string {
	b := strings.Builder{}
	b.WriteString("Line-of-argument synthesis across concepts: ")
	b.WriteString(strings.Join(headConcepts(concepts, 6), ", "))
	if refutations > 0 {
		b.WriteString(". Contains refutational translations between sources.")
	}
	return b.String()
}

func headConcepts(concepts []string, n int) []string {
	if len(concepts) > n {
		return concepts[:n]
	}
	return concepts
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
