package workflows

import (
	"context"
	"errors"
	"strings"
	"testing"

	"themeflow/internal/activities"
	"themeflow/internal/extraction"
	"themeflow/internal/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func registerExtractionActivities(env *testsuite.TestWorkflowEnvironment) {
	registerActivityName(env, "MarkRunActivity", func(context.Context, activities.MarkRunInput) error { return nil })
	registerActivityName(env, "ListSourcesActivity", func(context.Context, activities.ListSourcesInput) (activities.ListSourcesOutput, error) {
		return activities.ListSourcesOutput{}, nil
	})
	registerActivityName(env, "FamiliarizeSourceActivity", func(context.Context, activities.FamiliarizeSourceInput) (activities.FamiliarizeSourceOutput, error) {
		return activities.FamiliarizeSourceOutput{}, nil
	})
	registerActivityName(env, "LogProviderCallActivity", func(context.Context, activities.LogProviderCallInput) error { return nil })
	registerActivityName(env, "GenerateCandidatesActivity", func(context.Context, activities.GenerateCandidatesInput) (activities.GenerateCandidatesOutput, error) {
		return activities.GenerateCandidatesOutput{}, nil
	})
	registerActivityName(env, "ValidateThemesActivity", func(context.Context, activities.ValidateThemesInput) (activities.ValidateThemesOutput, error) {
		return activities.ValidateThemesOutput{}, nil
	})
	registerActivityName(env, "MergeThemesActivity", func(context.Context, activities.MergeThemesInput) (activities.MergeThemesOutput, error) {
		return activities.MergeThemesOutput{}, nil
	})
	registerActivityName(env, "PersistThemesActivity", func(context.Context, activities.PersistThemesInput) error { return nil })
	registerActivityName(env, "SaveReportActivity", func(context.Context, activities.SaveReportInput) (activities.SaveReportOutput, error) {
		return activities.SaveReportOutput{}, nil
	})
}

func testSources() []models.Source {
	return []models.Source{
		{SourceID: "s1", Type: models.SourcePaper, Title: "Paper one", Content: "remote work flexibility study content"},
		{SourceID: "s2", Type: models.SourceVideo, Title: "Talk one", Content: "remote work flexibility talk transcript"},
	}
}

func TestThemeExtractionWorkflowSuccess(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ThemeExtractionWorkflow)
	registerExtractionActivities(env)

	candidate := models.CandidateTheme{Label: "remote flexibility", SourceIDs: []string{"s1", "s2"}, Weight: 1}
	theme := models.UnifiedTheme{ThemeID: "t1", Label: "remote flexibility", SourceIDs: []string{"s1", "s2"}, Confidence: 0.8, Weight: 1}

	env.OnActivity("MarkRunActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ListSourcesActivity", mock.Anything, mock.Anything).Return(activities.ListSourcesOutput{Sources: testSources()}, nil)
	env.OnActivity("FamiliarizeSourceActivity", mock.Anything, mock.Anything).Return(activities.FamiliarizeSourceOutput{
		Embedding:    models.SourceEmbedding{SourceID: "s1", Vector: []float32{0.5, 0.5}},
		Codes:        []models.Code{{CodeID: "c1", SourceID: "s1", Excerpts: []string{"excerpt"}}},
		Words:        120,
		ProviderName: "mock",
		Model:        "mock",
	}, nil)
	env.OnActivity("LogProviderCallActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("GenerateCandidatesActivity", mock.Anything, mock.Anything).Return(activities.GenerateCandidatesOutput{
		Candidates: []models.CandidateTheme{candidate},
		Algorithm:  "embedding_clustering",
	}, nil)
	env.OnActivity("ValidateThemesActivity", mock.Anything, mock.Anything).Return(activities.ValidateThemesOutput{
		Accepted: []models.CandidateTheme{candidate},
		Summary:  models.RejectionSummary{Candidates: 1, Accepted: 1},
	}, nil)
	env.OnActivity("MergeThemesActivity", mock.Anything, mock.Anything).Return(activities.MergeThemesOutput{Themes: []models.UnifiedTheme{theme}}, nil)
	env.OnActivity("PersistThemesActivity", mock.Anything, activities.PersistThemesInput{RunID: "run1", Themes: []models.UnifiedTheme{theme}}).Return(nil)
	var savedReport models.MethodologyReport
	env.OnActivity("SaveReportActivity", mock.Anything, mock.Anything).Return(func(_ context.Context, in activities.SaveReportInput) (activities.SaveReportOutput, error) {
		savedReport = in.Report
		return activities.SaveReportOutput{ArtifactPath: "/tmp/out.json"}, nil
	})

	env.ExecuteWorkflow(ThemeExtractionWorkflow, ThemeExtractionInput{RunID: "run1", Purpose: "qualitative_analysis", EmbedProviders: 1})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, extraction.StatusComplete, out)

	qr, err := env.QueryWorkflow(QueryGetExtractionProgress)
	require.NoError(t, err)
	var progress ExtractionProgress
	require.NoError(t, qr.Get(&progress))
	require.Equal(t, extraction.StatusComplete, progress.Status)
	require.Equal(t, extraction.TotalStages, progress.TotalStages)
	require.Equal(t, 2, progress.Live.SourcesAnalyzed)
	require.Equal(t, 1, progress.ThemeCount)
	require.InDelta(t, 100, progress.Percentage, 1e-9)
	require.Equal(t, "standard", savedReport.ValidationLevel)
}

func TestThemeExtractionWorkflowSourceFailureContinues(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ThemeExtractionWorkflow)
	registerExtractionActivities(env)

	env.OnActivity("MarkRunActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ListSourcesActivity", mock.Anything, mock.Anything).Return(activities.ListSourcesOutput{Sources: testSources()}, nil)
	env.OnActivity("FamiliarizeSourceActivity", mock.Anything, mock.Anything).Return(activities.FamiliarizeSourceOutput{}, errors.New("permanent provider error"))
	env.OnActivity("LogProviderCallActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("GenerateCandidatesActivity", mock.Anything, mock.Anything).Return(activities.GenerateCandidatesOutput{Algorithm: "embedding_clustering"}, nil)
	env.OnActivity("ValidateThemesActivity", mock.Anything, mock.Anything).Return(activities.ValidateThemesOutput{}, nil)
	env.OnActivity("MergeThemesActivity", mock.Anything, mock.Anything).Return(activities.MergeThemesOutput{}, nil)
	env.OnActivity("PersistThemesActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("SaveReportActivity", mock.Anything, mock.Anything).Return(activities.SaveReportOutput{}, nil)

	env.ExecuteWorkflow(ThemeExtractionWorkflow, ThemeExtractionInput{RunID: "run2", Purpose: "qualitative_analysis", EmbedProviders: 1})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, extraction.StatusComplete, out)

	qr, err := env.QueryWorkflow(QueryGetExtractionProgress)
	require.NoError(t, err)
	var progress ExtractionProgress
	require.NoError(t, qr.Get(&progress))
	require.Equal(t, 2, progress.Live.SourcesAnalyzed)
	require.NotEmpty(t, progress.Diagnosis, "zero themes carries a diagnosis")
}

func TestThemeExtractionWorkflowFailedFullTextSourceClassified(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ThemeExtractionWorkflow)
	registerExtractionActivities(env)

	// Well over the full-text word threshold; the embed failure must not
	// change how the source is classified in the live stats.
	longPaper := models.Source{
		SourceID: "long1",
		Type:     models.SourcePaper,
		Title:    "Long paper",
		Content:  strings.TrimSpace(strings.Repeat("telecommuting outcome evidence ", 1400)),
	}

	env.OnActivity("MarkRunActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ListSourcesActivity", mock.Anything, mock.Anything).Return(activities.ListSourcesOutput{Sources: []models.Source{longPaper}}, nil)
	env.OnActivity("FamiliarizeSourceActivity", mock.Anything, mock.Anything).Return(activities.FamiliarizeSourceOutput{}, errors.New("permanent provider error"))
	env.OnActivity("LogProviderCallActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("GenerateCandidatesActivity", mock.Anything, mock.Anything).Return(activities.GenerateCandidatesOutput{Algorithm: "embedding_clustering"}, nil)
	env.OnActivity("ValidateThemesActivity", mock.Anything, mock.Anything).Return(activities.ValidateThemesOutput{}, nil)
	env.OnActivity("MergeThemesActivity", mock.Anything, mock.Anything).Return(activities.MergeThemesOutput{}, nil)
	env.OnActivity("PersistThemesActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("SaveReportActivity", mock.Anything, mock.Anything).Return(activities.SaveReportOutput{}, nil)

	env.ExecuteWorkflow(ThemeExtractionWorkflow, ThemeExtractionInput{RunID: "run5", Purpose: "qualitative_analysis", EmbedProviders: 1})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	qr, err := env.QueryWorkflow(QueryGetExtractionProgress)
	require.NoError(t, err)
	var progress ExtractionProgress
	require.NoError(t, qr.Get(&progress))
	require.Equal(t, 1, progress.Live.SourcesAnalyzed)
	require.Equal(t, 1, progress.Live.FullTextRead)
	require.Zero(t, progress.Live.AbstractsRead)
	require.Greater(t, progress.Live.TotalWordsRead, 3500)
}

func TestThemeExtractionWorkflowUnknownPurposeFails(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ThemeExtractionWorkflow)
	registerExtractionActivities(env)

	env.OnActivity("MarkRunActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(ThemeExtractionWorkflow, ThemeExtractionInput{RunID: "run3", Purpose: "divination"})
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}

func TestThemeExtractionWorkflowNoSourcesFails(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ThemeExtractionWorkflow)
	registerExtractionActivities(env)

	env.OnActivity("MarkRunActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ListSourcesActivity", mock.Anything, mock.Anything).Return(activities.ListSourcesOutput{}, nil)

	env.ExecuteWorkflow(ThemeExtractionWorkflow, ThemeExtractionInput{RunID: "run4", Purpose: "qualitative_analysis"})
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}
