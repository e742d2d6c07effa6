package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExtractor 是 TextExtractor 的测试替身。
type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) ExtractText(_ context.Context, _ []byte, _ string) (string, error) {
	return f.text, f.err
}

func TestParse_PlainText(t *testing.T) {
	p := New(&fakeExtractor{})

	parsed, err := p.Parse(context.Background(), []byte("the quick brown fox and the lazy dog in the yard"), "text/plain")
	require.NoError(t, err)
	assert.Contains(t, parsed.Text, "quick brown fox")
	assert.Equal(t, "en", parsed.Metadata["language"])
	assert.NotZero(t, parsed.Metadata["charCount"])
}

func TestParse_PDFViaExtractor(t *testing.T) {
	p := New(&fakeExtractor{text: "extracted pdf content"})

	parsed, err := p.Parse(context.Background(), []byte{0x25, 0x50, 0x44, 0x46}, "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "extracted pdf content", parsed.Text)
}

func TestParse_EmptyBinaryContent(t *testing.T) {
	p := New(&fakeExtractor{text: "never used"})

	_, err := p.Parse(context.Background(), nil, "application/pdf")
	require.Error(t, err)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "application/pdf", parseErr.MediaType)
}

func TestParse_ExtractorFailure(t *testing.T) {
	cause := errors.New("tika unavailable")
	p := New(&fakeExtractor{err: cause})

	_, err := p.Parse(context.Background(), []byte("binary"), "application/pdf")
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.ErrorIs(t, err, cause)
}

func TestParse_ExtractorReturnsBlankText(t *testing.T) {
	p := New(&fakeExtractor{text: "   \n\t  "})

	_, err := p.Parse(context.Background(), []byte("binary"), "application/pdf")
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestParse_UnknownMediaTypeBestEffort(t *testing.T) {
	p := New(&fakeExtractor{})

	parsed, err := p.Parse(context.Background(), []byte("some opaque content"), "application/octet-stream")
	require.NoError(t, err)
	assert.Equal(t, "some opaque content", parsed.Text)
}

func TestParse_InvalidUTF8Replaced(t *testing.T) {
	p := New(&fakeExtractor{})

	parsed, err := p.Parse(context.Background(), []byte{'a', 0xff, 'b'}, "text/plain")
	require.NoError(t, err)
	assert.Contains(t, parsed.Text, "a")
	assert.Contains(t, parsed.Text, "�")
	assert.Contains(t, parsed.Text, "b")
}

func TestDetectLanguage_Swedish(t *testing.T) {
	text := "Detta dokument är en policy för hantering av risker och som gäller på hela bolaget med omedelbar verkan"
	assert.Equal(t, "sv", DetectLanguage(text))
}

func TestDetectLanguage_English(t *testing.T) {
	text := "This document is the policy for risk management and it applies to the whole company effective immediately"
	assert.Equal(t, "en", DetectLanguage(text))
}

func TestDetectLanguage_ShortTextDefaultsToSwedish(t *testing.T) {
	assert.Equal(t, "sv", DetectLanguage("hi"))
}
