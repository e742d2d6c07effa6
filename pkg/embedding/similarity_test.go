package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosine_IdenticalVectors(t *testing.T) {
	v := []float32{0.5, 0.3, 0.8}
	assert.InDelta(t, 1.0, Cosine(v, v), 1e-9)
}

func TestCosine_OppositeVectors(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{-1, -2, -3}
	assert.InDelta(t, -1.0, Cosine(a, b), 1e-9)
}

func TestCosine_OrthogonalVectors(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	assert.InDelta(t, 0.0, Cosine(a, b), 1e-9)
}

func TestCosine_Symmetry(t *testing.T) {
	a := []float32{0.1, 0.9, 0.4}
	b := []float32{0.7, 0.2, 0.5}
	assert.Equal(t, Cosine(a, b), Cosine(b, a))
}

func TestCosine_LengthMismatch(t *testing.T) {
	a := []float32{1, 2}
	b := []float32{1, 2, 3}
	assert.Equal(t, 0.0, Cosine(a, b))
}

func TestCosine_ZeroMagnitude(t *testing.T) {
	a := []float32{0, 0, 0}
	b := []float32{1, 2, 3}
	assert.Equal(t, 0.0, Cosine(a, b))
}

func TestCosine_EmptyVectors(t *testing.T) {
	assert.Equal(t, 0.0, Cosine(nil, nil))
	assert.Equal(t, 0.0, Cosine([]float32{}, []float32{}))
}

func TestCosine_WithinRange(t *testing.T) {
	a := []float32{3.2, -1.5, 0.7, 9.1}
	b := []float32{-0.4, 2.2, 5.5, -3.3}
	score := Cosine(a, b)
	assert.GreaterOrEqual(t, score, -1.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestTruncate_ShortTextUnchanged(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 100))
}

func TestTruncate_LongTextCut(t *testing.T) {
	text := "abcdefghij"
	assert.Equal(t, "abcde", Truncate(text, 5))
}

func TestTruncate_MultiByteSafe(t *testing.T) {
	text := "ååååå"
	got := Truncate(text, 3)
	assert.Equal(t, "ååå", got)
}

func TestTruncate_NoLimit(t *testing.T) {
	assert.Equal(t, "text", Truncate("text", 0))
	assert.Equal(t, "text", Truncate("text", -1))
}
