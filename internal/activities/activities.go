package activities

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"themeflow/internal/coding"
	"themeflow/internal/config"
	"themeflow/internal/extraction"
	"themeflow/internal/familiarize"
	"themeflow/internal/models"
	"themeflow/internal/providers"
	"themeflow/internal/purpose"
	"themeflow/internal/storage"
	"themeflow/internal/themegen"
	"themeflow/internal/util"
	"themeflow/internal/validate"
)

type Activities struct {
	cfg        config.Config
	sourceRepo *storage.SourceRepo
	runRepo    *storage.RunRepo
	themeRepo  *storage.ThemeRepo
	auditRepo  *storage.ProviderAuditRepo
	providers  *providers.Manager
	registry   *themegen.Registry
}

func New(cfg config.Config, db *storage.DB) (*Activities, error) {
	pm, err := providers.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	return &Activities{
		cfg:        cfg,
		sourceRepo: storage.NewSourceRepo(db),
		runRepo:    storage.NewRunRepo(db),
		themeRepo:  storage.NewThemeRepo(db),
		auditRepo:  storage.NewProviderAuditRepo(db),
		providers:  pm,
		registry:   themegen.NewRegistry(),
	}, nil
}

func (a *Activities) ListSourcesActivity(ctx context.Context, in ListSourcesInput) (ListSourcesOutput, error) {
	var (
		sources []models.Source
		err     error
	)
	if len(in.SourceIDs) > 0 {
		sources, err = a.sourceRepo.ListSourcesByIDs(ctx, in.SourceIDs)
	} else {
		sources, err = a.sourceRepo.ListSources(ctx, in.SourceType)
	}
	if err != nil {
		return ListSourcesOutput{}, err
	}
	return ListSourcesOutput{Sources: sources}, nil
}

func (a *Activities) MarkRunActivity(ctx context.Context, in MarkRunInput) error {
	if in.Insert {
		return a.runRepo.InsertRun(ctx, models.ExtractionRun{
			RunID:   in.RunID,
			Purpose: in.Purpose,
			Status:  in.Status,
		})
	}
	return a.runRepo.UpdateRunStatus(ctx, in.RunID, in.Status, in.Diagnosis)
}

// FamiliarizeSourceActivity embeds one source and its codes in a single
// batched provider call. Errors surface to the workflow so it can apply
// provider failover; the workflow decides whether a source is skipped.
func (a *Activities) FamiliarizeSourceActivity(ctx context.Context, in FamiliarizeSourceInput) (FamiliarizeSourceOutput, error) {
	src := in.Source
	words := familiarize.WordCount(src.Content)
	fullText := familiarize.IsFullText(words, src.Metadata["contentType"])
	codes := coding.BuildCodes(src)

	inputs := make([]string, 0, len(codes)+1)
	text := src.Content
	if text == "" {
		text = src.Title
	}
	if text == "" {
		text = src.SourceID
	}
	inputs = append(inputs, text)
	for _, c := range codes {
		inputs = append(inputs, c.Excerpts[0])
	}

	provider, _ := a.providers.EmbedProviderByIndex(in.ProviderIndex)
	vectors, info, err := provider.Embed(ctx, providers.EmbedRequest{
		Operation: "familiarize_embed",
		Inputs:    inputs,
		Dimension: a.cfg.EmbedDim,
	})
	if err != nil {
		return FamiliarizeSourceOutput{}, err
	}
	if len(vectors) == 0 {
		return FamiliarizeSourceOutput{}, fmt.Errorf("provider %s returned no vectors", info.Name)
	}
	for ci := range codes {
		if ci+1 < len(vectors) {
			codes[ci].Embedding = vectors[ci+1]
		} else {
			codes[ci].Embedding = vectors[0]
		}
	}
	return FamiliarizeSourceOutput{
		Embedding:    models.SourceEmbedding{SourceID: src.SourceID, Vector: vectors[0]},
		Codes:        codes,
		Words:        words,
		FullText:     fullText,
		ProviderName: info.Name,
		Model:        info.Model,
	}, nil
}

func (a *Activities) GenerateCandidatesActivity(ctx context.Context, in GenerateCandidatesInput) (GenerateCandidatesOutput, error) {
	cfg, err := purpose.Resolve(purpose.Purpose(in.Purpose))
	if err != nil {
		return GenerateCandidatesOutput{}, err
	}
	candidates, algorithm, notices, err := a.registry.Generate(ctx, themegen.Input{
		Sources:    in.Sources,
		Codes:      in.Codes,
		Embeddings: in.Embeddings,
		Config:     cfg,
		Labeler:    a.providers.FirstLLMProvider(),
	})
	if err != nil {
		return GenerateCandidatesOutput{}, err
	}
	return GenerateCandidatesOutput{Candidates: candidates, Algorithm: algorithm, Notices: notices}, nil
}

func (a *Activities) ValidateThemesActivity(ctx context.Context, in ValidateThemesInput) (ValidateThemesOutput, error) {
	_ = ctx
	cfg, err := purpose.Resolve(purpose.Purpose(in.Purpose))
	if err != nil {
		return ValidateThemesOutput{}, err
	}
	res := validate.Run(in.Candidates, cfg)
	return ValidateThemesOutput{Accepted: res.Accepted, Summary: res.Summary}, nil
}

func (a *Activities) MergeThemesActivity(ctx context.Context, in MergeThemesInput) (MergeThemesOutput, error) {
	_ = ctx
	cfg, err := purpose.Resolve(purpose.Purpose(in.Purpose))
	if err != nil {
		return MergeThemesOutput{}, err
	}
	themes := extraction.Merge(in.Sources, in.Accepted)
	themes = extraction.Finalize(themes, cfg, in.MinConfidence, in.MaxThemes)
	return MergeThemesOutput{Themes: themes}, nil
}

// PersistThemesActivity replaces the run's stored themes and mirrors them to a
// JSONL artifact for offline inspection.
func (a *Activities) PersistThemesActivity(ctx context.Context, in PersistThemesInput) error {
	if err := a.themeRepo.ReplaceThemesForRun(ctx, in.RunID, in.Themes); err != nil {
		return err
	}
	rows := make([]any, 0, len(in.Themes))
	for _, t := range in.Themes {
		rows = append(rows, t)
	}
	path := filepath.Join(a.cfg.DataOutRoot, "runs", in.RunID, "themes.jsonl")
	return util.WriteJSONLinesAtomic(path, rows)
}

// SaveReportActivity stores the report on the run row and mirrors it to a
// JSON artifact under the output root.
func (a *Activities) SaveReportActivity(ctx context.Context, in SaveReportInput) (SaveReportOutput, error) {
	if err := a.runRepo.SaveReport(ctx, in.RunID, in.Report, in.Stats); err != nil {
		return SaveReportOutput{}, err
	}
	path := filepath.Join(a.cfg.DataOutRoot, "runs", in.RunID, "methodology.json")
	if err := util.WriteJSONAtomic(path, map[string]any{
		"run_id":       in.RunID,
		"report":       in.Report,
		"stats":        in.Stats,
		"generated_at": time.Now().UTC(),
	}); err != nil {
		return SaveReportOutput{}, err
	}
	return SaveReportOutput{ArtifactPath: path}, nil
}

func (a *Activities) LogProviderCallActivity(ctx context.Context, in LogProviderCallInput) error {
	return a.auditRepo.Insert(ctx, storage.ProviderCallRecord{
		Operation:    in.Operation,
		RunID:        in.RunID,
		SourceID:     in.SourceID,
		ProviderName: in.ProviderName,
		Model:        in.Model,
		RequestID:    in.RequestID,
		Status:       in.Status,
		ErrorType:    in.ErrorType,
	})
}
