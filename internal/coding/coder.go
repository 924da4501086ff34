package coding

import (
	"fmt"
	"strings"

	"themeflow/internal/models"
	"themeflow/internal/util"
)

const (
	defaultExcerptSize = 400
	maxCodesPerSource  = 6
	keywordsPerCode    = 5
)

// BuildCodes derives the atomic coding units for one source: sanitized
// excerpt windows, each with a term-frequency keyword set and a label built
// from the leading keywords. Embeddings are attached by the familiarization
// stage, not here.
func BuildCodes(src models.Source) []models.Code {
	text := util.SanitizeText(src.Content)
	if text == "" {
		return nil
	}
	excerpts := SplitExcerpts(text, defaultExcerptSize, maxCodesPerSource)
	codes := make([]models.Code, 0, len(excerpts))
	for i, exc := range excerpts {
		kws := Keywords(exc, keywordsPerCode)
		label := labelFromKeywords(kws, exc)
		codes = append(codes, models.Code{
			CodeID:   util.SHA256Hex([]byte(fmt.Sprintf("%s:%d:%s", src.SourceID, i, util.SHA256Hex([]byte(exc))))),
			SourceID: src.SourceID,
			Label:    label,
			Excerpts: []string{exc},
			Keywords: kws,
		})
	}
	return codes
}

// SplitExcerpts windows text into at most maxParts excerpts of roughly size
// runes, preferring to break at sentence boundaries near the window end.
func SplitExcerpts(text string, size, maxParts int) []string {
	if size <= 0 {
		size = defaultExcerptSize
	}
	runes := []rune(text)
	out := make([]string, 0, maxParts)
	for i := 0; i < len(runes) && len(out) < maxParts; {
		end := i + size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = sentenceBreak(runes, i, end)
		}
		part := strings.TrimSpace(string(runes[i:end]))
		if part != "" {
			out = append(out, part)
		}
		i = end
	}
	return out
}

// sentenceBreak scans backwards from end for a terminator, falling back to
// the hard window edge when the excerpt would collapse below half the size.
func sentenceBreak(runes []rune, start, end int) int {
	for j := end; j > start+(end-start)/2; j-- {
		switch runes[j-1] {
		case '.', '!', '?', '\n':
			return j
		}
	}
	return end
}

func labelFromKeywords(kws []string, fallback string) string {
	if len(kws) > 0 {
		n := len(kws)
		if n > 3 {
			n = 3
		}
		return strings.Join(kws[:n], " ")
	}
	words := strings.Fields(fallback)
	if len(words) > 4 {
		words = words[:4]
	}
	return strings.Join(words, " ")
}
