package extraction

// Stage names in pipeline order. Stage numbers are 1-based and never exceed
// TotalStages.
const (
	StageConfiguration       = "configuration"
	StageFamiliarization     = "familiarization"
	StageCandidateGeneration = "candidate_generation"
	StageValidation          = "validation"
	StageDeduplication       = "deduplication"
	StageReporting           = "reporting"

	TotalStages = 6
)

var stageNumbers = map[string]int{
	StageConfiguration:       1,
	StageFamiliarization:     2,
	StageCandidateGeneration: 3,
	StageValidation:          4,
	StageDeduplication:       5,
	StageReporting:           6,
}

// LiveStats rides along familiarization events only; other stages emit a nil
// LiveStats. Counters are cumulative and monotonic.
type LiveStats struct {
	SourcesAnalyzed int    `json:"sources_analyzed"`
	FullTextRead    int    `json:"full_text_read"`
	AbstractsRead   int    `json:"abstracts_read"`
	TotalWordsRead  int    `json:"total_words_read"`
	CurrentArticle  int    `json:"current_article"`
	TotalArticles   int    `json:"total_articles"`
	ArticleTitle    string `json:"article_title,omitempty"`
	ArticleType     string `json:"article_type,omitempty"`
}

type Event struct {
	Stage       string     `json:"stage"`
	StageNumber int        `json:"stage_number"`
	TotalStages int        `json:"total_stages"`
	Percentage  float64    `json:"percentage"`
	LiveStats   *LiveStats `json:"live_stats,omitempty"`
	// Status is set only on the final event of a run so consumers can close
	// their stream without polling the response.
	Status string `json:"status,omitempty"`
}

// stageEvent builds the event emitted at a stage boundary. Percentage is the
// overall pipeline completion at the start of the stage.
func stageEvent(stage string) Event {
	n := stageNumbers[stage]
	return Event{
		Stage:       stage,
		StageNumber: n,
		TotalStages: TotalStages,
		Percentage:  float64(n-1) / float64(TotalStages) * 100,
	}
}

// terminalEvent is the last event of a run. A completed run reads 100%; a
// cancelled or failed run keeps the percentage of the stage it stopped in.
func terminalEvent(status, stage string) Event {
	ev := stageEvent(stage)
	ev.Status = status
	if status == StatusComplete {
		ev.Percentage = 100
	}
	return ev
}

// familiarizeEvent interpolates percentage within stage 2 from the processed
// source index so per-source ticks advance the bar smoothly.
func familiarizeEvent(stats LiveStats) Event {
	ev := stageEvent(StageFamiliarization)
	if stats.TotalArticles > 0 {
		frac := float64(stats.CurrentArticle) / float64(stats.TotalArticles)
		ev.Percentage += frac / float64(TotalStages) * 100
	}
	ev.LiveStats = &stats
	return ev
}
