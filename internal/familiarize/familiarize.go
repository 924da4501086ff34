package familiarize

import (
	"context"
	"log"
	"math"
	"strings"

	"themeflow/internal/coding"
	"themeflow/internal/models"
	"themeflow/internal/providers"
	"themeflow/internal/vector"
)

const (
	// Word counts above this are always full text regardless of metadata.
	fullTextWordThreshold = 3500
	// Abstracts flagged as overflowing their venue limit count as full text
	// above this.
	overflowWordThreshold = 3000
)

// Tick is emitted after every processed source with cumulative counters so
// downstream progress stays monotonic even when a source fails.
type Tick struct {
	Stats        models.FamiliarizationStats
	CurrentIndex int
	Total        int
	SourceTitle  string
	SourceType   models.SourceType
	IsFullText   bool
}

type Result struct {
	Embeddings []models.SourceEmbedding
	Codes      []models.Code
	Stats      models.FamiliarizationStats
	Failed     []string
}

// IsFullText classifies a source as full-text versus abstract-length from its
// word count and the contentType hint. Pure function; the 3500-word cut is a
// hard boundary.
func IsFullText(wordCount int, contentType string) bool {
	switch contentType {
	case "full_text":
		return true
	case "abstract_overflow":
		if wordCount > overflowWordThreshold {
			return true
		}
	}
	return wordCount > fullTextWordThreshold
}

func WordCount(text string) int {
	return len(strings.Fields(text))
}

// Stage runs the familiarization loop. Sources are processed strictly
// sequentially so emitted ticks carry monotonically increasing counters.
type Stage struct {
	Embedder  providers.EmbeddingProvider
	Dimension int
}

// Run embeds every source (one batched provider call per source: the source
// text plus its coded excerpts), classifies it, and updates the cumulative
// accumulator. A failed embed call is logged and counted without aborting the
// run; the tick still fires so progress never goes backwards. The context is
// checked before each external call and a cancellation stops the loop before
// the next call is issued.
func (s *Stage) Run(ctx context.Context, sources []models.Source, emit func(Tick)) (Result, error) {
	res := Result{
		Embeddings: make([]models.SourceEmbedding, 0, len(sources)),
		Codes:      make([]models.Code, 0, len(sources)*2),
	}
	var magAcc welford

	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		words := WordCount(src.Content)
		fullText := IsFullText(words, src.Metadata["contentType"])
		codes := coding.BuildCodes(src)

		inputs := make([]string, 0, len(codes)+1)
		inputs = append(inputs, embedText(src))
		for _, c := range codes {
			inputs = append(inputs, c.Excerpts[0])
		}

		vectors, _, err := s.Embedder.Embed(ctx, providers.EmbedRequest{
			Operation: "familiarize_embed",
			Inputs:    inputs,
			Dimension: s.Dimension,
		})
		if err != nil || len(vectors) == 0 {
			if err != nil {
				log.Printf("familiarize: embed failed for source %s: %v", src.SourceID, err)
			}
			res.Failed = append(res.Failed, src.SourceID)
			res.Stats.FailedSources++
		} else {
			res.Embeddings = append(res.Embeddings, models.SourceEmbedding{SourceID: src.SourceID, Vector: vectors[0]})
			magAcc.add(vector.Magnitude(vectors[0]))
			for ci := range codes {
				if ci+1 < len(vectors) {
					codes[ci].Embedding = vectors[ci+1]
				} else {
					codes[ci].Embedding = vectors[0]
				}
			}
			res.Codes = append(res.Codes, codes...)
		}

		// Counters are cumulative and advance even on failure so the
		// processed index stays monotonic.
		res.Stats.SourcesAnalyzed++
		res.Stats.TotalWordsRead += words
		if fullText {
			res.Stats.FullTextRead++
		} else {
			res.Stats.AbstractsRead++
		}
		res.Stats.EmbeddingMagMean = magAcc.mean
		res.Stats.EmbeddingMagStdDev = magAcc.stdDev()

		if emit != nil {
			emit(Tick{
				Stats:        res.Stats,
				CurrentIndex: i + 1,
				Total:        len(sources),
				SourceTitle:  src.Title,
				SourceType:   src.Type,
				IsFullText:   fullText,
			})
		}
	}
	return res, nil
}

func embedText(src models.Source) string {
	text := strings.TrimSpace(src.Content)
	if text == "" {
		// Empty content is still embedded so the source keeps a vector slot;
		// the title is the only signal available.
		text = src.Title
	}
	if text == "" {
		text = src.SourceID
	}
	return text
}

// welford is the single-pass online mean/variance accumulator.
type welford struct {
	n    int
	mean float64
	m2   float64
}

func (w *welford) add(x float64) {
	w.n++
	delta := x - w.mean
	w.mean += delta / float64(w.n)
	w.m2 += delta * (x - w.mean)
}

func (w *welford) stdDev() float64 {
	if w.n < 2 {
		return 0
	}
	return math.Sqrt(w.m2 / float64(w.n))
}
