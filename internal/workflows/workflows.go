package workflows

import (
	"fmt"
	"math"
	"time"

	"themeflow/internal/activities"
	"themeflow/internal/extraction"
	"themeflow/internal/familiarize"
	"themeflow/internal/models"
	"themeflow/internal/providers"
	"themeflow/internal/purpose"
	"themeflow/internal/vector"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const QueryGetExtractionProgress = "GetExtractionProgress"

type providerState struct {
	disabledUntil map[int]time.Time
	retries       map[string]int
}

func newProviderState() providerState {
	return providerState{disabledUntil: map[int]time.Time{}, retries: map[string]int{}}
}

// ThemeExtractionWorkflow is the durable form of the extraction pipeline.
// Familiarization runs as one activity per source so a crashed worker resumes
// mid-run without re-embedding finished sources; the remaining stages are
// single activities over the accumulated state. Progress is exposed through a
// query handler and cancellation lands the run in a terminal cancelled state
// rather than a workflow error.
func ThemeExtractionWorkflow(ctx workflow.Context, input ThemeExtractionInput) (string, error) {
	progress := ExtractionProgress{
		RunID:       input.RunID,
		Status:      "running",
		Stage:       extraction.StageConfiguration,
		StageNumber: 1,
		TotalStages: extraction.TotalStages,
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetExtractionProgress, func() (ExtractionProgress, error) {
		return progress, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	timings := make([]models.StageTiming, 0, extraction.TotalStages)
	stageStart := workflow.Now(ctx)
	endStage := func(stage string) {
		timings = append(timings, models.StageTiming{Stage: stage, DurationMS: workflow.Now(ctx).Sub(stageStart).Milliseconds()})
		stageStart = workflow.Now(ctx)
	}
	setStage := func(stage string) {
		progress.Stage = stage
		progress.StageNumber++
		progress.Percentage = float64(progress.StageNumber-1) / float64(extraction.TotalStages) * 100
	}

	_ = workflow.ExecuteActivity(ctx, "MarkRunActivity", activities.MarkRunInput{
		RunID: input.RunID, Purpose: input.Purpose, Status: "running", Insert: true,
	}).Get(ctx, nil)

	cfg, err := purpose.Resolve(purpose.Purpose(input.Purpose))
	if err != nil {
		return failRun(ctx, &progress, input, fmt.Sprintf("unknown research purpose %q", input.Purpose))
	}

	var listOut activities.ListSourcesOutput
	if err := workflow.ExecuteActivity(ctx, "ListSourcesActivity", activities.ListSourcesInput{
		SourceIDs:  input.SourceIDs,
		SourceType: input.SourceType,
	}).Get(ctx, &listOut); err != nil {
		return "", err
	}
	sources := listOut.Sources
	if len(sources) == 0 {
		return failRun(ctx, &progress, input, "extraction requires at least one source")
	}
	for _, s := range sources {
		if !models.ValidSourceType(s.Type) {
			return failRun(ctx, &progress, input, fmt.Sprintf("source %s has invalid type %q", s.SourceID, s.Type))
		}
	}
	endStage(extraction.StageConfiguration)

	setStage(extraction.StageFamiliarization)
	providerCount := input.EmbedProviders
	if providerCount <= 0 {
		providerCount = 1
	}
	cooldown := time.Duration(defaultSeconds(input.CooldownSeconds, 900)) * time.Second
	state := newProviderState()

	var (
		stats      models.FamiliarizationStats
		embeddings = make([]models.SourceEmbedding, 0, len(sources))
		codes      = make([]models.Code, 0, len(sources)*2)
		magSum     float64
		magSq      float64
	)
	for i, src := range sources {
		if ctx.Err() != nil {
			return cancelRun(ctx, &progress, input)
		}
		out, err := familiarizeWithFailover(ctx, &state, providerCount, cooldown, activities.FamiliarizeSourceInput{
			RunID:  input.RunID,
			Source: src,
		})
		if temporal.IsCanceledError(err) || ctx.Err() != nil {
			return cancelRun(ctx, &progress, input)
		}
		if err != nil {
			stats.FailedSources++
			words := familiarize.WordCount(src.Content)
			stats.TotalWordsRead += words
			// Classification does not depend on the embed outcome.
			if familiarize.IsFullText(words, src.Metadata["contentType"]) {
				stats.FullTextRead++
			} else {
				stats.AbstractsRead++
			}
		} else {
			embeddings = append(embeddings, out.Embedding)
			codes = append(codes, out.Codes...)
			mag := vector.Magnitude(out.Embedding.Vector)
			magSum += mag
			magSq += mag * mag
			stats.TotalWordsRead += out.Words
			if out.FullText {
				stats.FullTextRead++
			} else {
				stats.AbstractsRead++
			}
		}
		stats.SourcesAnalyzed++
		if n := len(embeddings); n > 0 {
			stats.EmbeddingMagMean = magSum / float64(n)
			if n > 1 {
				stats.EmbeddingMagStdDev = math.Sqrt(magSq/float64(n) - stats.EmbeddingMagMean*stats.EmbeddingMagMean)
			}
		}

		progress.Live = extraction.LiveStats{
			SourcesAnalyzed: stats.SourcesAnalyzed,
			FullTextRead:    stats.FullTextRead,
			AbstractsRead:   stats.AbstractsRead,
			TotalWordsRead:  stats.TotalWordsRead,
			CurrentArticle:  i + 1,
			TotalArticles:   len(sources),
			ArticleTitle:    src.Title,
			ArticleType:     string(src.Type),
		}
		progress.Percentage = 100.0/float64(extraction.TotalStages) +
			float64(i+1)/float64(len(sources))*100.0/float64(extraction.TotalStages)
	}
	endStage(extraction.StageFamiliarization)

	setStage(extraction.StageCandidateGeneration)
	var genOut activities.GenerateCandidatesOutput
	if err := workflow.ExecuteActivity(ctx, "GenerateCandidatesActivity", activities.GenerateCandidatesInput{
		RunID:      input.RunID,
		Purpose:    input.Purpose,
		Sources:    sources,
		Codes:      codes,
		Embeddings: embeddings,
	}).Get(ctx, &genOut); err != nil {
		if temporal.IsCanceledError(err) {
			return cancelRun(ctx, &progress, input)
		}
		return "", err
	}
	endStage(extraction.StageCandidateGeneration)

	setStage(extraction.StageValidation)
	var valOut activities.ValidateThemesOutput
	if err := workflow.ExecuteActivity(ctx, "ValidateThemesActivity", activities.ValidateThemesInput{
		Purpose:    input.Purpose,
		Candidates: genOut.Candidates,
	}).Get(ctx, &valOut); err != nil {
		return "", err
	}
	endStage(extraction.StageValidation)

	setStage(extraction.StageDeduplication)
	var mergeOut activities.MergeThemesOutput
	if err := workflow.ExecuteActivity(ctx, "MergeThemesActivity", activities.MergeThemesInput{
		Purpose:       input.Purpose,
		Sources:       sources,
		Accepted:      valOut.Accepted,
		MinConfidence: input.MinConfidence,
		MaxThemes:     input.MaxThemes,
	}).Get(ctx, &mergeOut); err != nil {
		return "", err
	}
	if err := workflow.ExecuteActivity(ctx, "PersistThemesActivity", activities.PersistThemesInput{
		RunID:  input.RunID,
		Themes: mergeOut.Themes,
	}).Get(ctx, nil); err != nil {
		return "", err
	}
	progress.ThemeCount = len(mergeOut.Themes)
	endStage(extraction.StageDeduplication)

	setStage(extraction.StageReporting)
	notices := genOut.Notices
	if notice := extraction.FullTextNotice(cfg, stats); notice != "" {
		notices = append(notices, notice)
	}
	report := models.MethodologyReport{
		Purpose:                  input.Purpose,
		Algorithm:                genOut.Algorithm,
		ValidationLevel:          string(cfg.ValidationLevel),
		SourcesTotal:             len(sources),
		CodesGenerated:           len(codes),
		CandidatesGeneratedCount: len(genOut.Candidates),
		ThemesAfterValidation:    len(valOut.Accepted),
		ThemesAfterDedup:         len(mergeOut.Themes),
		Rejections:               valOut.Summary,
		DegradationNotices:       notices,
	}
	if len(mergeOut.Themes) == 0 {
		progress.Diagnosis = extraction.Diagnose(stats, valOut.Summary, len(sources))
		report.Diagnosis = progress.Diagnosis
	}
	endStage(extraction.StageReporting)
	report.StageTimings = timings

	if err := workflow.ExecuteActivity(ctx, "SaveReportActivity", activities.SaveReportInput{
		RunID:  input.RunID,
		Report: report,
		Stats:  stats,
	}).Get(ctx, nil); err != nil {
		return "", err
	}
	_ = workflow.ExecuteActivity(ctx, "MarkRunActivity", activities.MarkRunInput{
		RunID:     input.RunID,
		Status:    extraction.StatusComplete,
		Diagnosis: progress.Diagnosis,
	}).Get(ctx, nil)

	progress.Status = extraction.StatusComplete
	progress.Percentage = 100
	return extraction.StatusComplete, nil
}

// familiarizeWithFailover rotates through embedding providers, honoring
// quota cooldowns and bounded retries on rate or transient errors. Every
// attempt is audited.
func familiarizeWithFailover(ctx workflow.Context, state *providerState, providerCount int, cooldown time.Duration, input activities.FamiliarizeSourceInput) (activities.FamiliarizeSourceOutput, error) {
	var lastErr error
	maxAttempts := providerCount * 4
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return activities.FamiliarizeSourceOutput{}, ctx.Err()
		}
		idx := attempt % providerCount
		if isProviderDisabled(ctx, state, idx) {
			continue
		}
		input.ProviderIndex = idx
		var out activities.FamiliarizeSourceOutput
		err := workflow.ExecuteActivity(ctx, "FamiliarizeSourceActivity", input).Get(ctx, &out)
		if err == nil {
			_ = workflow.ExecuteActivity(ctx, "LogProviderCallActivity", activities.LogProviderCallInput{
				Operation:    "familiarize_embed",
				RunID:        input.RunID,
				SourceID:     input.Source.SourceID,
				ProviderName: out.ProviderName,
				Model:        out.Model,
				RequestID:    fmt.Sprintf("familiarize-%s-%d", input.Source.SourceID, attempt),
				Status:       "ok",
			}).Get(ctx, nil)
			return out, nil
		}
		if temporal.IsCanceledError(err) {
			return activities.FamiliarizeSourceOutput{}, err
		}
		lastErr = err
		errType := providers.ClassifyError(err)
		_ = workflow.ExecuteActivity(ctx, "LogProviderCallActivity", activities.LogProviderCallInput{
			Operation:    "familiarize_embed",
			RunID:        input.RunID,
			SourceID:     input.Source.SourceID,
			ProviderName: fmt.Sprintf("provider-%d", idx),
			RequestID:    fmt.Sprintf("familiarize-%s-%d", input.Source.SourceID, attempt),
			Status:       "failed",
			ErrorType:    string(errType),
		}).Get(ctx, nil)
		key := fmt.Sprintf("fam-%d", idx)
		state.retries[key]++
		switch errType {
		case providers.ErrorQuota:
			disableProviderUntil(ctx, state, idx, cooldown)
		case providers.ErrorRate:
			if state.retries[key] <= 2 {
				workflow.Sleep(ctx, time.Duration(state.retries[key]*2)*time.Second)
				attempt--
			} else {
				disableProviderUntil(ctx, state, idx, 2*time.Minute)
			}
		case providers.ErrorTransient:
			if state.retries[key] <= 2 {
				workflow.Sleep(ctx, time.Duration(state.retries[key])*time.Second)
				attempt--
			}
		default:
			disableProviderUntil(ctx, state, idx, time.Minute)
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("all embed providers exhausted")
	}
	return activities.FamiliarizeSourceOutput{}, lastErr
}

// cancelRun records the terminal cancelled state through a disconnected
// context so the status write survives the cancellation itself.
func cancelRun(ctx workflow.Context, progress *ExtractionProgress, input ThemeExtractionInput) (string, error) {
	progress.Status = extraction.StatusCancelled
	dctx, _ := workflow.NewDisconnectedContext(ctx)
	dctx = workflow.WithActivityOptions(dctx, workflow.ActivityOptions{StartToCloseTimeout: time.Minute})
	_ = workflow.ExecuteActivity(dctx, "MarkRunActivity", activities.MarkRunInput{
		RunID:  input.RunID,
		Status: extraction.StatusCancelled,
	}).Get(dctx, nil)
	return extraction.StatusCancelled, nil
}

func failRun(ctx workflow.Context, progress *ExtractionProgress, input ThemeExtractionInput, reason string) (string, error) {
	progress.Status = extraction.StatusFailed
	_ = workflow.ExecuteActivity(ctx, "MarkRunActivity", activities.MarkRunInput{
		RunID:     input.RunID,
		Status:    extraction.StatusFailed,
		Diagnosis: reason,
	}).Get(ctx, nil)
	return extraction.StatusFailed, temporal.NewNonRetryableApplicationError(reason, "configuration", nil)
}

func isProviderDisabled(ctx workflow.Context, state *providerState, idx int) bool {
	until, ok := state.disabledUntil[idx]
	if !ok {
		return false
	}
	return workflow.Now(ctx).Before(until)
}

func disableProviderUntil(ctx workflow.Context, state *providerState, idx int, d time.Duration) {
	state.disabledUntil[idx] = workflow.Now(ctx).Add(d)
}

func defaultSeconds(n int, fallback int) int {
	if n <= 0 {
		return fallback
	}
	return n
}
