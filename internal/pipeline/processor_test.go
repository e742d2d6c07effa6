package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"aifm-comply-go/internal/classifier"
	"aifm-comply-go/internal/model"
	"aifm-comply-go/internal/parser"
	"aifm-comply-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDocRepo struct {
	docs map[string]*model.Document
}

func (r *fakeDocRepo) Create(doc *model.Document) error {
	r.docs[doc.ID] = doc
	return nil
}

func (r *fakeDocRepo) FindByID(id string) (*model.Document, error) {
	doc, ok := r.docs[id]
	if !ok {
		return nil, fmt.Errorf("document not found: %s", id)
	}
	return doc, nil
}

func (r *fakeDocRepo) Save(doc *model.Document) error {
	r.docs[doc.ID] = doc
	return nil
}

func (r *fakeDocRepo) UpdateStatus(id, status, processingError string) error {
	doc, ok := r.docs[id]
	if !ok {
		return fmt.Errorf("document not found: %s", id)
	}
	doc.Status = status
	doc.ProcessingError = processingError
	return nil
}

func (r *fakeDocRepo) FindIndexed(model.SearchFilters) ([]model.Document, error)  { return nil, nil }
func (r *fakeDocRepo) FindByClient(string) ([]model.Document, error)              { return nil, nil }
func (r *fakeDocRepo) FindAllByStatus(string) ([]model.Document, error)           { return nil, nil }
func (r *fakeDocRepo) List(string, string, string) ([]model.Document, error)      { return nil, nil }
func (r *fakeDocRepo) Stats() (*model.DocumentStats, error)                       { return nil, nil }

type fakeAuditRepo struct {
	events []model.AuditLog
}

func (r *fakeAuditRepo) Record(event *model.AuditLog) error {
	r.events = append(r.events, *event)
	return nil
}

func (r *fakeAuditRepo) FindByRef(string) ([]model.AuditLog, error) { return nil, nil }

type fakeBlob struct {
	content []byte
	err     error
}

func (b *fakeBlob) GetFile(context.Context, string) ([]byte, error) {
	return b.content, b.err
}

type fakeTextIndex struct {
	indexed []model.EsDocument
	err     error
}

func (t *fakeTextIndex) Index(_ context.Context, doc model.EsDocument) error {
	if t.err != nil {
		return t.err
	}
	t.indexed = append(t.indexed, doc)
	return nil
}

type fakeLocker struct {
	denied   bool
	acquires int
	releases int
}

func (l *fakeLocker) Acquire(context.Context, string) (bool, error) {
	l.acquires++
	return !l.denied, nil
}

func (l *fakeLocker) Release(context.Context, string) error {
	l.releases++
	return nil
}

type fakeChecker struct {
	calls int
	err   error
}

func (c *fakeChecker) EvaluateAllPolicies(context.Context, string) ([]model.PolicyEvaluation, error) {
	c.calls++
	return nil, c.err
}

type fakeExtractor struct{}

func (fakeExtractor) ExtractText(context.Context, []byte, string) (string, error) {
	return "", errors.New("should not be called for text/plain")
}

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) CreateEmbedding(context.Context, string) ([]float32, error) {
	return f.vector, f.err
}

type fixture struct {
	processor *Processor
	docRepo   *fakeDocRepo
	auditRepo *fakeAuditRepo
	textIndex *fakeTextIndex
	locker    *fakeLocker
	checker   *fakeChecker
}

func newFixture(doc *model.Document, blob *fakeBlob, embedder *fakeEmbedder, autoCheck bool) *fixture {
	f := &fixture{
		docRepo:   &fakeDocRepo{docs: map[string]*model.Document{doc.ID: doc}},
		auditRepo: &fakeAuditRepo{},
		textIndex: &fakeTextIndex{},
		locker:    &fakeLocker{},
		checker:   &fakeChecker{},
	}
	f.processor = NewProcessor(
		parser.New(fakeExtractor{}),
		classifier.New(nil, false),
		embedder,
		f.docRepo,
		f.auditRepo,
		blob,
		f.textIndex,
		f.locker,
		f.checker,
		autoCheck,
	)
	return f
}

func pendingDoc() *model.Document {
	return &model.Document{
		ID: "doc-1", ClientID: "c1", FileName: "riskpolicy.txt",
		FileType: "text/plain", StorageKey: "c1/doc-1/riskpolicy.txt",
		Status: model.DocStatusPending,
	}
}

func indexTask() tasks.DocumentIndexTask {
	return tasks.DocumentIndexTask{DocumentID: "doc-1", ClientID: "c1",
		FileName: "riskpolicy.txt", StorageKey: "c1/doc-1/riskpolicy.txt"}
}

func TestProcess_HappyPath(t *testing.T) {
	blob := &fakeBlob{content: []byte("Detta är en policy för hantering av risk med signatur")}
	f := newFixture(pendingDoc(), blob, &fakeEmbedder{vector: []float32{0.1, 0.2, 0.3}}, false)

	err := f.processor.Process(context.Background(), indexTask())
	require.NoError(t, err)

	doc := f.docRepo.docs["doc-1"]
	assert.Equal(t, model.DocStatusIndexed, doc.Status)
	assert.NotEmpty(t, doc.ExtractedText)
	assert.NotEmpty(t, doc.Embedding)
	require.NotNil(t, doc.IndexedAt)
	assert.Equal(t, "policy", doc.DocumentType)
	assert.Equal(t, "risk", doc.Category)

	vec, err := doc.EmbeddingVector()
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)

	// 全文索引写入
	require.Len(t, f.textIndex.indexed, 1)
	assert.Equal(t, "doc-1", f.textIndex.indexed[0].DocumentID)

	// 状态迁移审计：PENDING->PROCESSING, PROCESSING->INDEXED
	require.Len(t, f.auditRepo.events, 2)
	assert.Equal(t, model.DocStatusPending, f.auditRepo.events[0].Before)
	assert.Equal(t, model.DocStatusProcessing, f.auditRepo.events[0].After)
	assert.Equal(t, model.DocStatusIndexed, f.auditRepo.events[1].After)

	// 锁配对释放
	assert.Equal(t, 1, f.locker.acquires)
	assert.Equal(t, 1, f.locker.releases)
}

func TestProcess_LockDeniedLeavesDocumentUntouched(t *testing.T) {
	blob := &fakeBlob{content: []byte("text")}
	f := newFixture(pendingDoc(), blob, &fakeEmbedder{vector: []float32{1}}, false)
	f.locker.denied = true

	err := f.processor.Process(context.Background(), indexTask())
	require.Error(t, err)
	assert.Equal(t, model.DocStatusPending, f.docRepo.docs["doc-1"].Status)
	assert.Zero(t, f.locker.releases)
}

func TestProcess_BlobFetchFailureMarksError(t *testing.T) {
	blob := &fakeBlob{err: errors.New("object not found")}
	f := newFixture(pendingDoc(), blob, &fakeEmbedder{vector: []float32{1}}, false)

	err := f.processor.Process(context.Background(), indexTask())
	require.Error(t, err)

	doc := f.docRepo.docs["doc-1"]
	assert.Equal(t, model.DocStatusError, doc.Status)
	assert.Contains(t, doc.ProcessingError, "object not found")
	assert.Equal(t, 1, f.locker.releases)
}

func TestProcess_LongErrorTruncatedOnRunes(t *testing.T) {
	// 多字节字符的长错误信息按 rune 截断，不能截出非法 UTF-8
	blob := &fakeBlob{err: errors.New(strings.Repeat("å", 600))}
	f := newFixture(pendingDoc(), blob, &fakeEmbedder{vector: []float32{1}}, false)

	err := f.processor.Process(context.Background(), indexTask())
	require.Error(t, err)

	doc := f.docRepo.docs["doc-1"]
	assert.Equal(t, model.DocStatusError, doc.Status)
	assert.True(t, utf8.ValidString(doc.ProcessingError))
	assert.Equal(t, 500, utf8.RuneCountInString(doc.ProcessingError))
}

func TestProcess_ParseFailureMarksError(t *testing.T) {
	doc := pendingDoc()
	doc.FileType = "application/pdf" // 走提取器，fakeExtractor 报错
	blob := &fakeBlob{content: []byte("binary")}
	f := newFixture(doc, blob, &fakeEmbedder{vector: []float32{1}}, false)

	err := f.processor.Process(context.Background(), indexTask())
	require.Error(t, err)
	var parseErr *parser.ParseError
	assert.ErrorAs(t, err, &parseErr)
	assert.Equal(t, model.DocStatusError, f.docRepo.docs["doc-1"].Status)
}

func TestProcess_EmbeddingFailureMarksError(t *testing.T) {
	blob := &fakeBlob{content: []byte("text content")}
	f := newFixture(pendingDoc(), blob, &fakeEmbedder{err: errors.New("quota exceeded")}, false)

	err := f.processor.Process(context.Background(), indexTask())
	require.Error(t, err)

	doc := f.docRepo.docs["doc-1"]
	assert.Equal(t, model.DocStatusError, doc.Status)
	assert.Contains(t, doc.ProcessingError, "quota exceeded")
	// 不做部分索引
	assert.Empty(t, doc.Embedding)
	assert.Nil(t, doc.IndexedAt)
	assert.Empty(t, f.textIndex.indexed)
}

func TestProcess_ReindexClearsPreviousError(t *testing.T) {
	doc := pendingDoc()
	doc.Status = model.DocStatusError
	doc.ProcessingError = "tidigare fel"
	blob := &fakeBlob{content: []byte("nytt innehåll")}
	f := newFixture(doc, blob, &fakeEmbedder{vector: []float32{1, 2}}, false)

	task := indexTask()
	task.Reindex = true
	err := f.processor.Process(context.Background(), task)
	require.NoError(t, err)

	got := f.docRepo.docs["doc-1"]
	assert.Equal(t, model.DocStatusIndexed, got.Status)
	assert.Empty(t, got.ProcessingError)
}

func TestProcess_AutoCheckRunsAfterIndexing(t *testing.T) {
	blob := &fakeBlob{content: []byte("text")}
	f := newFixture(pendingDoc(), blob, &fakeEmbedder{vector: []float32{1}}, true)

	require.NoError(t, f.processor.Process(context.Background(), indexTask()))
	assert.Equal(t, 1, f.checker.calls)
}

func TestProcess_AutoCheckFailureDoesNotAffectIndexing(t *testing.T) {
	blob := &fakeBlob{content: []byte("text")}
	f := newFixture(pendingDoc(), blob, &fakeEmbedder{vector: []float32{1}}, true)
	f.checker.err = errors.New("db unavailable")

	err := f.processor.Process(context.Background(), indexTask())
	require.NoError(t, err)
	assert.Equal(t, model.DocStatusIndexed, f.docRepo.docs["doc-1"].Status)
}

func TestProcess_TextIndexFailureDoesNotAffectStatus(t *testing.T) {
	blob := &fakeBlob{content: []byte("text")}
	f := newFixture(pendingDoc(), blob, &fakeEmbedder{vector: []float32{1}}, false)
	f.textIndex.err = errors.New("es down")

	err := f.processor.Process(context.Background(), indexTask())
	require.NoError(t, err)
	assert.Equal(t, model.DocStatusIndexed, f.docRepo.docs["doc-1"].Status)
}
