package usecase

import (
	"context"
	"errors"
	"hash/fnv"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
)

// writeFiles creates placeholder files so that os.Stat succeeds; content is
// served by textExtractorFake.
func writeFiles(t *testing.T, names ...string) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("placeholder"), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		paths = append(paths, path)
	}
	return dir, paths
}

type textExtractorFake struct {
	texts map[string]string
	errs  map[string]error
	calls []string
}

func (f *textExtractorFake) Extract(_ context.Context, path string) (string, error) {
	name := filepath.Base(path)
	f.calls = append(f.calls, name)
	if err, ok := f.errs[name]; ok {
		return "", err
	}
	return f.texts[name], nil
}

func newLoaderFake(texts map[string]string) (*DocumentLoader, *textExtractorFake) {
	fake := &textExtractorFake{texts: texts, errs: map[string]error{}}
	return NewDocumentLoader(map[domain.ContentType]ports.TextExtractor{
		domain.ContentTypePDF:   fake,
		domain.ContentTypeDOCX:  fake,
		domain.ContentTypeXLSX:  fake,
		domain.ContentTypeImage: fake,
	}, LoaderOptions{}), fake
}

type lineChunkerFake struct{}

func (lineChunkerFake) Split(text string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(part) != "" {
			out = append(out, strings.TrimSpace(part))
		}
	}
	return out
}

// hashEmbedderFake maps text onto a bag-of-words vector so that shared words
// produce higher cosine similarity.
type hashEmbedderFake struct {
	err    error
	query  string
	calls  int
	result [][]float32
}

func (f *hashEmbedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		out = append(out, bagOfWords(text))
	}
	return out, nil
}

func (f *hashEmbedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.query = text
	if f.err != nil {
		return nil, f.err
	}
	return bagOfWords(text), nil
}

func bagOfWords(text string) []float32 {
	vec := make([]float32, 64)
	for _, word := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%64]++
	}
	return vec
}

type memIndexFake struct {
	mu       sync.Mutex
	exists   bool
	chunks   []domain.Chunk
	vectors  [][]float32
	created  int
	added    int
	saved    int
	loadErr  error
	addErr   error
	lastK    int
	searchFn func() ([]domain.RetrievedChunk, error)
}

func (f *memIndexFake) Load(context.Context) (bool, error) {
	if f.loadErr != nil {
		return false, f.loadErr
	}
	return f.exists, nil
}

func (f *memIndexFake) Create(_ context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	f.exists = true
	f.chunks = append([]domain.Chunk(nil), chunks...)
	f.vectors = append([][]float32(nil), vectors...)
	return nil
}

func (f *memIndexFake) Add(_ context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.added++
	f.chunks = append(f.chunks, chunks...)
	f.vectors = append(f.vectors, vectors...)
	return nil
}

func (f *memIndexFake) Save(context.Context) error {
	f.saved++
	return nil
}

func (f *memIndexFake) Search(_ context.Context, vector []float32, limit int) ([]domain.RetrievedChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastK = limit
	if f.searchFn != nil {
		return f.searchFn()
	}
	out := make([]domain.RetrievedChunk, 0, len(f.chunks))
	for i, chunk := range f.chunks {
		out = append(out, domain.RetrievedChunk{Chunk: chunk, Score: cosine(vector, f.vectors[i])})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

type generatorFake struct {
	prompts []string
	opts    []domain.GenerateOptions
	replies []string
	err     error
	block   bool
}

func (f *generatorFake) GenerateFromPrompt(ctx context.Context, prompt string, opts domain.GenerateOptions) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, opts)
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "generated", nil
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply, nil
}

type sessionStoreFake struct {
	turns map[string][]domain.Turn
}

func newSessionStoreFake() *sessionStoreFake {
	return &sessionStoreFake{turns: map[string][]domain.Turn{}}
}

func (f *sessionStoreFake) Recent(_ context.Context, sessionID string, limit int) ([]domain.Turn, error) {
	turns := f.turns[sessionID]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return append([]domain.Turn(nil), turns...), nil
}

func (f *sessionStoreFake) Append(_ context.Context, sessionID string, turns ...domain.Turn) error {
	f.turns[sessionID] = append(f.turns[sessionID], turns...)
	return nil
}

func (f *sessionStoreFake) Close(_ context.Context, sessionID string) error {
	delete(f.turns, sessionID)
	return nil
}

type classifierFake struct {
	raw   string
	err   error
	query string
}

func (f *classifierFake) ClassifyIntent(_ context.Context, query string) (string, error) {
	f.query = query
	return f.raw, f.err
}

type rendererFake struct {
	sections []domain.Section
	err      error
}

func (f *rendererFake) Render(_ context.Context, sections []domain.Section) (*domain.Report, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sections = sections
	return &domain.Report{Data: []byte("%PDF-fake")}, nil
}

type pageReaderFake struct {
	pages map[int]string
	err   error
}

func (f *pageReaderFake) PageText(_ context.Context, _ string, page int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	text, ok := f.pages[page]
	if !ok {
		return "", domain.WrapError(domain.ErrLocatorOutOfRange, "read page", errors.New("no such page"))
	}
	return text, nil
}

type sheetReaderFake struct {
	sheets map[string][][]string
	first  string
	err    error
}

func (f *sheetReaderFake) SheetRows(_ context.Context, _ string, sheet string) ([][]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	if sheet == "" {
		sheet = f.first
	}
	rows, ok := f.sheets[sheet]
	if !ok {
		return nil, domain.WrapError(domain.ErrLocatorOutOfRange, "read sheet", errors.New("no such sheet"))
	}
	return rows, nil
}

type storageFake struct {
	savedKey  string
	savedBody string
	err       error
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	f.savedKey = key
	f.savedBody = string(raw)
	return filepath.Join("temp", key), nil
}

func (f *storageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

type queueFake struct {
	path string
	err  error
}

func (f *queueFake) PublishDocumentUploaded(_ context.Context, path string) error {
	if f.err != nil {
		return f.err
	}
	f.path = path
	return nil
}

func (f *queueFake) SubscribeDocumentUploaded(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}
