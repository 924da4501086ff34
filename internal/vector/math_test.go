package vector

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	require.InDelta(t, 1.0, Cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	require.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	require.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	require.Equal(t, float64(0), Cosine([]float32{1}, []float32{1, 2}))
	require.Equal(t, float64(0), Cosine(nil, nil))
}

func TestCentroid(t *testing.T) {
	c := Centroid([][]float32{{1, 0}, {3, 2}, nil})
	require.Equal(t, []float32{2, 1}, c)
	require.Nil(t, Centroid(nil))
}

func TestMeanPairwiseCosine(t *testing.T) {
	require.Equal(t, float64(1), MeanPairwiseCosine([][]float32{{1, 0}}))
	got := MeanPairwiseCosine([][]float32{{1, 0}, {0, 1}})
	require.InDelta(t, 0.0, got, 1e-9)
	same := MeanPairwiseCosine([][]float32{{1, 1}, {2, 2}, {3, 3}})
	require.InDelta(t, 1.0, same, 1e-9)
}
