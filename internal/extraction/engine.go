package extraction

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"themeflow/internal/dedupe"
	"themeflow/internal/familiarize"
	"themeflow/internal/models"
	"themeflow/internal/providers"
	"themeflow/internal/purpose"
	"themeflow/internal/themegen"
	"themeflow/internal/validate"
)

// Run statuses. Cancellation is a status, not an error: a cancelled run
// returns its partial stats with a nil error.
const (
	StatusComplete  = "complete"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

type Request struct {
	Purpose string          `json:"purpose"`
	Sources []models.Source `json:"sources"`
	// MinConfidence overrides the purpose default when non-nil.
	MinConfidence *float64 `json:"min_confidence,omitempty"`
	// MaxThemes caps the final set; 0 means the purpose default.
	MaxThemes int `json:"max_themes,omitempty"`
}

type Outcome struct {
	Status    string                      `json:"status"`
	Themes    []models.UnifiedTheme       `json:"themes"`
	Stats     models.FamiliarizationStats `json:"familiarization_stats"`
	Report    models.MethodologyReport    `json:"methodology_report"`
	Diagnosis string                      `json:"diagnosis,omitempty"`
}

// Engine runs the six-stage pipeline in process. The Temporal workflow wraps
// the same stage packages for durable runs; this path serves synchronous
// extraction and tests.
type Engine struct {
	Embedder  providers.EmbeddingProvider
	Labeler   providers.LLMProvider
	Registry  *themegen.Registry
	Dimension int
}

func NewEngine(embedder providers.EmbeddingProvider, labeler providers.LLMProvider, dim int) *Engine {
	return &Engine{
		Embedder:  embedder,
		Labeler:   labeler,
		Registry:  themegen.NewRegistry(),
		Dimension: dim,
	}
}

// Run executes configuration through reporting. emit may be nil. Validation
// failures reject themes, never the run; the run fails only on bad input or
// a wholly failed familiarization.
func (e *Engine) Run(ctx context.Context, req Request, emit func(Event)) (Outcome, error) {
	send := func(ev Event) {
		if emit != nil {
			emit(ev)
		}
	}
	timings := make([]models.StageTiming, 0, TotalStages)
	timed := func(stage string, start time.Time) {
		timings = append(timings, models.StageTiming{Stage: stage, DurationMS: time.Since(start).Milliseconds()})
	}

	// Stage 1: configuration.
	send(stageEvent(StageConfiguration))
	start := time.Now()
	cfg, err := e.configure(req)
	if err != nil {
		send(terminalEvent(StatusFailed, StageConfiguration))
		return Outcome{Status: StatusFailed}, err
	}
	timed(StageConfiguration, start)

	// Stage 2: familiarization.
	start = time.Now()
	fam := &familiarize.Stage{Embedder: e.Embedder, Dimension: e.Dimension}
	famRes, err := fam.Run(ctx, req.Sources, func(t familiarize.Tick) {
		send(familiarizeEvent(LiveStats{
			SourcesAnalyzed: t.Stats.SourcesAnalyzed,
			FullTextRead:    t.Stats.FullTextRead,
			AbstractsRead:   t.Stats.AbstractsRead,
			TotalWordsRead:  t.Stats.TotalWordsRead,
			CurrentArticle:  t.CurrentIndex,
			TotalArticles:   t.Total,
			ArticleTitle:    t.SourceTitle,
			ArticleType:     string(t.SourceType),
		}))
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			log.Printf("extraction: run cancelled after %d sources", famRes.Stats.SourcesAnalyzed)
			send(terminalEvent(StatusCancelled, StageFamiliarization))
			return Outcome{Status: StatusCancelled, Stats: famRes.Stats}, nil
		}
		send(terminalEvent(StatusFailed, StageFamiliarization))
		return Outcome{Status: StatusFailed, Stats: famRes.Stats}, err
	}
	timed(StageFamiliarization, start)

	// Stage 3: candidate generation. Pure over the familiarization output;
	// the optional labeler is the only external call left.
	send(stageEvent(StageCandidateGeneration))
	start = time.Now()
	candidates, algorithm, notices, err := e.Registry.Generate(ctx, themegen.Input{
		Sources:    req.Sources,
		Codes:      famRes.Codes,
		Embeddings: famRes.Embeddings,
		Config:     cfg,
		Labeler:    e.Labeler,
	})
	if err != nil {
		send(terminalEvent(StatusFailed, StageCandidateGeneration))
		return Outcome{Status: StatusFailed, Stats: famRes.Stats}, err
	}
	timed(StageCandidateGeneration, start)

	// Stage 4: validation.
	send(stageEvent(StageValidation))
	start = time.Now()
	valRes := validate.Run(candidates, cfg)
	timed(StageValidation, start)

	// Stage 5: deduplication and cross-source merge.
	send(stageEvent(StageDeduplication))
	start = time.Now()
	themes := Merge(req.Sources, valRes.Accepted)
	themes = Finalize(themes, cfg, req.MinConfidence, req.MaxThemes)
	timed(StageDeduplication, start)

	// Stage 6: reporting.
	send(stageEvent(StageReporting))
	start = time.Now()
	if notice := FullTextNotice(cfg, famRes.Stats); notice != "" {
		notices = append(notices, notice)
	}
	report := models.MethodologyReport{
		Purpose:                  string(cfg.Purpose),
		Algorithm:                algorithm,
		ValidationLevel:          string(cfg.ValidationLevel),
		SourcesTotal:             len(req.Sources),
		CodesGenerated:           len(famRes.Codes),
		CandidatesGeneratedCount: len(candidates),
		ThemesAfterValidation:    len(valRes.Accepted),
		ThemesAfterDedup:         len(themes),
		Rejections:               valRes.Summary,
		DegradationNotices:       notices,
	}
	diagnosis := ""
	if len(themes) == 0 {
		diagnosis = Diagnose(famRes.Stats, valRes.Summary, len(req.Sources))
		report.Diagnosis = diagnosis
	}
	timed(StageReporting, start)
	report.StageTimings = timings

	send(terminalEvent(StatusComplete, StageReporting))
	return Outcome{
		Status:    StatusComplete,
		Themes:    themes,
		Stats:     famRes.Stats,
		Report:    report,
		Diagnosis: diagnosis,
	}, nil
}

func (e *Engine) configure(req Request) (purpose.Config, error) {
	if len(req.Sources) == 0 {
		return purpose.Config{}, ErrNoSources
	}
	for _, src := range req.Sources {
		if !models.ValidSourceType(src.Type) {
			return purpose.Config{}, &InvalidSourceTypeError{SourceID: src.SourceID, Type: string(src.Type)}
		}
	}
	return purpose.Resolve(purpose.Purpose(req.Purpose))
}

// Merge groups accepted themes by the dominant source type of their evidence
// and folds them into unified themes with provenance. Shared with the
// workflow's merge activity.
func Merge(sources []models.Source, accepted []models.CandidateTheme) []models.UnifiedTheme {
	typeOf := make(map[string]models.SourceType, len(sources))
	srcByID := make(map[string]models.Source, len(sources))
	for _, s := range sources {
		typeOf[s.SourceID] = s.Type
		srcByID[s.SourceID] = s
	}

	grouped := map[models.SourceType]*dedupe.SourceGroup{}
	order := make([]models.SourceType, 0, 4)
	for _, t := range accepted {
		st := dominantType(t.SourceIDs, typeOf)
		g, ok := grouped[st]
		if !ok {
			g = &dedupe.SourceGroup{Type: st}
			grouped[st] = g
			order = append(order, st)
		}
		g.Themes = append(g.Themes, t)
		g.SourceIDs = append(g.SourceIDs, t.SourceIDs...)
	}

	groups := make([]dedupe.SourceGroup, 0, len(order))
	for _, st := range order {
		groups = append(groups, *grouped[st])
	}
	return dedupe.MergeFromSources(groups, srcByID)
}

// Finalize applies the confidence floor and the theme cap. Themes arrive
// weight-descending from the merge.
func Finalize(themes []models.UnifiedTheme, cfg purpose.Config, minConfidence *float64, maxOverride int) []models.UnifiedTheme {
	minConf := cfg.MinConfidence
	if minConfidence != nil {
		minConf = *minConfidence
	}
	maxThemes := cfg.TargetThemesMax
	if maxOverride > 0 {
		maxThemes = maxOverride
	}

	kept := themes[:0:0]
	for _, t := range themes {
		if t.Confidence >= minConf {
			kept = append(kept, t)
		}
	}
	if len(kept) > maxThemes {
		kept = kept[:maxThemes]
	}
	return kept
}

// FullTextNotice returns a degradation notice when a purpose that expects
// full-text sources was fed abstract-length ones. Empty when the purpose has
// no full-text requirement or every source qualified. Shared with the
// workflow's reporting step.
func FullTextNotice(cfg purpose.Config, stats models.FamiliarizationStats) string {
	if !cfg.RequiresFullText || stats.AbstractsRead == 0 {
		return ""
	}
	return fmt.Sprintf("%s expects full-text sources; %d of %d analyzed were abstract-length",
		cfg.Purpose, stats.AbstractsRead, stats.SourcesAnalyzed)
}

// Diagnose picks the single explanation for an empty theme set. Shortage of
// raw material is checked first, then evidence spread, then the catch-all.
func Diagnose(stats models.FamiliarizationStats, rej models.RejectionSummary, totalSources int) string {
	meanWords := 0.0
	if totalSources > 0 {
		meanWords = float64(stats.TotalWordsRead) / float64(totalSources)
	}
	if meanWords < 40 || dominates(rej.EvidenceFails, rej) {
		return DiagnosisContentTooShort
	}
	if dominates(rej.CoherenceFails, rej) || dominates(rej.MinSourceFails, rej) || rej.SingletonClusters*2 > rej.Candidates {
		return DiagnosisTopicsTooDiverse
	}
	return DiagnosisThresholdsTooStrict
}

// dominates reports whether one gate accounts for at least half of all
// rejections.
func dominates(fails int, rej models.RejectionSummary) bool {
	total := rej.MinSourceFails + rej.CoherenceFails + rej.DistinctFails + rej.EvidenceFails
	return total > 0 && fails*2 >= total && fails > 0
}

func dominantType(sourceIDs []string, typeOf map[string]models.SourceType) models.SourceType {
	counts := map[models.SourceType]int{}
	best := models.SourcePaper
	bestN := 0
	for _, sid := range sourceIDs {
		st, ok := typeOf[sid]
		if !ok {
			continue
		}
		counts[st]++
		if counts[st] > bestN {
			best, bestN = st, counts[st]
		}
	}
	return best
}
