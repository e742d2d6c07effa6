package service

import (
	"context"
	"errors"
	"testing"

	"aifm-comply-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexedDoc(id, clientID string, vec []float32) *model.Document {
	return &model.Document{
		ID: id, ClientID: clientID, FileName: id + ".pdf",
		Status: model.DocStatusIndexed, ExtractedText: "innehåll för " + id,
		Embedding: vectorJSON(vec),
	}
}

func TestVectorSearch_RanksBySimilarity(t *testing.T) {
	docRepo := newFakeDocRepo(
		indexedDoc("doc-a", "c1", []float32{1, 0, 0}),
		indexedDoc("doc-b", "c1", []float32{0, 1, 0}),
		indexedDoc("doc-c", "c1", []float32{0.9, 0.1, 0}),
	)
	embedder := &fakeEmbedder{fallbackVector: []float32{1, 0, 0}}
	svc := NewSearchService(docRepo, embedder)

	results, err := svc.VectorSearch(context.Background(), "fråga", 10, model.SearchFilters{})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "doc-a", results[0].DocumentID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, "doc-c", results[1].DocumentID)
	assert.Equal(t, "doc-b", results[2].DocumentID)
}

func TestVectorSearch_QueryEmbeddedOnce(t *testing.T) {
	docRepo := newFakeDocRepo(
		indexedDoc("doc-a", "c1", []float32{1, 0, 0}),
		indexedDoc("doc-b", "c1", []float32{0, 1, 0}),
	)
	embedder := &fakeEmbedder{fallbackVector: []float32{1, 0, 0}}
	svc := NewSearchService(docRepo, embedder)

	_, err := svc.VectorSearch(context.Background(), "fråga", 10, model.SearchFilters{})
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.calls)
}

func TestVectorSearch_TieBreakByDocumentID(t *testing.T) {
	// 相同向量，得分完全一致，按 id 升序
	docRepo := newFakeDocRepo(
		indexedDoc("doc-z", "c1", []float32{1, 0, 0}),
		indexedDoc("doc-a", "c1", []float32{1, 0, 0}),
		indexedDoc("doc-m", "c1", []float32{1, 0, 0}),
	)
	embedder := &fakeEmbedder{fallbackVector: []float32{1, 0, 0}}
	svc := NewSearchService(docRepo, embedder)

	results, err := svc.VectorSearch(context.Background(), "fråga", 10, model.SearchFilters{})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "doc-a", results[0].DocumentID)
	assert.Equal(t, "doc-m", results[1].DocumentID)
	assert.Equal(t, "doc-z", results[2].DocumentID)
}

func TestVectorSearch_TopKLimits(t *testing.T) {
	docRepo := newFakeDocRepo(
		indexedDoc("doc-a", "c1", []float32{1, 0, 0}),
		indexedDoc("doc-b", "c1", []float32{0.5, 0.5, 0}),
		indexedDoc("doc-c", "c1", []float32{0, 0, 1}),
	)
	svc := NewSearchService(docRepo, &fakeEmbedder{fallbackVector: []float32{1, 0, 0}})

	results, err := svc.VectorSearch(context.Background(), "fråga", 2, model.SearchFilters{})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestVectorSearch_ClientFilter(t *testing.T) {
	docRepo := newFakeDocRepo(
		indexedDoc("doc-a", "c1", []float32{1, 0, 0}),
		indexedDoc("doc-b", "c2", []float32{1, 0, 0}),
	)
	svc := NewSearchService(docRepo, &fakeEmbedder{fallbackVector: []float32{1, 0, 0}})

	results, err := svc.VectorSearch(context.Background(), "fråga", 10, model.SearchFilters{ClientID: "c2"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-b", results[0].DocumentID)
}

func TestVectorSearch_EmptyCorpus(t *testing.T) {
	svc := NewSearchService(newFakeDocRepo(), &fakeEmbedder{fallbackVector: []float32{1, 0, 0}})

	results, err := svc.VectorSearch(context.Background(), "fråga", 10, model.SearchFilters{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestVectorSearch_EmbeddingFailure(t *testing.T) {
	svc := NewSearchService(newFakeDocRepo(), &fakeEmbedder{err: errors.New("quota exceeded")})

	_, err := svc.VectorSearch(context.Background(), "fråga", 10, model.SearchFilters{})
	require.Error(t, err)
}

func TestVectorSearch_CorruptVectorSkipped(t *testing.T) {
	good := indexedDoc("doc-a", "c1", []float32{1, 0, 0})
	bad := &model.Document{ID: "doc-b", ClientID: "c1", FileName: "b.pdf",
		Status: model.DocStatusIndexed, Embedding: "not-json"}
	svc := NewSearchService(newFakeDocRepo(good, bad), &fakeEmbedder{fallbackVector: []float32{1, 0, 0}})

	results, err := svc.VectorSearch(context.Background(), "fråga", 10, model.SearchFilters{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-a", results[0].DocumentID)
}
