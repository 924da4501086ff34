package coding

import (
	"strings"
	"testing"

	"themeflow/internal/models"

	"github.com/stretchr/testify/require"
)

func TestBuildCodesEmptyContent(t *testing.T) {
	codes := BuildCodes(models.Source{SourceID: "s1", Content: "   "})
	require.Empty(t, codes)
}

func TestBuildCodesCarriesExcerpts(t *testing.T) {
	src := models.Source{
		SourceID: "s1",
		Content:  "Remote collaboration changes how teams build trust. Trust grows slowly over video calls. Teams that meet in person report faster trust formation.",
	}
	codes := BuildCodes(src)
	require.NotEmpty(t, codes)
	for _, c := range codes {
		require.Equal(t, "s1", c.SourceID)
		require.NotEmpty(t, c.Excerpts)
		require.NotEmpty(t, c.Excerpts[0])
		require.NotEmpty(t, c.Label)
	}
}

func TestSplitExcerptsSentenceBoundary(t *testing.T) {
	text := strings.Repeat("First idea here. ", 40)
	parts := SplitExcerpts(text, 100, 10)
	require.NotEmpty(t, parts)
	for _, p := range parts[:len(parts)-1] {
		require.True(t, strings.HasSuffix(p, "."), "excerpt should end at sentence boundary: %q", p)
	}
}

func TestKeywordsSkipsStopwords(t *testing.T) {
	kws := Keywords("the trust and trust of the team team team", 2)
	require.Equal(t, []string{"team", "trust"}, kws)
}

func TestKeywordsStableTieBreak(t *testing.T) {
	kws := Keywords("alpha beta", 2)
	require.Equal(t, []string{"alpha", "beta"}, kws)
}
