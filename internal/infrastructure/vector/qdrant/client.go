// Package qdrant implements the vector index on a Qdrant collection through
// its REST API. Chunk metadata travels as the point payload.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/resilience"
)

const defaultBatchSize = 256

// Client stores chunk vectors in one Qdrant collection.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor
	batchSize  int

	mu         sync.Mutex
	vectorSize int // 0 until the collection is known to exist
}

var _ ports.VectorIndex = (*Client)(nil)

type Option func(*Client)

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) { c.executor = executor }
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

// WithBatchSize caps the number of points sent per upsert request.
func WithBatchSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

func New(baseURL, collection string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		batchSize:  defaultBatchSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chunkPayload struct {
	ChunkID     string `json:"chunk_id"`
	Source      string `json:"source"`
	ContentType string `json:"content_type"`
	ChunkIndex  int    `json:"chunk_index"`
	Text        string `json:"text"`
}

type point struct {
	ID      string       `json:"id"`
	Vector  []float32    `json:"vector"`
	Payload chunkPayload `json:"payload"`
}

type scoredPoint struct {
	Score   float64      `json:"score"`
	Payload chunkPayload `json:"payload"`
}

type collectionInfo struct {
	Config struct {
		Params struct {
			Vectors struct {
				Size int `json:"size"`
			} `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
}

// StatusError is a non-2xx reply from Qdrant.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("qdrant %s: status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("qdrant %s: status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// Load reports whether the collection already exists.
func (c *Client) Load(ctx context.Context) (bool, error) {
	var info collectionInfo
	err := c.call(ctx, "get_collection", http.MethodGet, c.collectionPath(), nil, &info)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if size := info.Config.Params.Vectors.Size; size > 0 {
		c.setVectorSize(size)
	}
	return true, nil
}

// Create drops any existing collection and indexes the chunks into a fresh one.
func (c *Client) Create(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if err := checkLengths(chunks, vectors); err != nil {
		return err
	}
	if err := c.call(ctx, "delete_collection", http.MethodDelete, c.collectionPath(), nil, nil); err != nil && !isNotFound(err) {
		return err
	}
	c.setVectorSize(0)
	return c.upsert(ctx, chunks, vectors)
}

// Add upserts chunks into the collection, creating it when needed.
func (c *Client) Add(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if err := checkLengths(chunks, vectors); err != nil {
		return err
	}
	return c.upsert(ctx, chunks, vectors)
}

// Save is a no-op: upserts are sent with wait=true.
func (c *Client) Save(context.Context) error {
	return nil
}

func (c *Client) Search(ctx context.Context, queryVector []float32, limit int) ([]domain.RetrievedChunk, error) {
	if limit <= 0 {
		return []domain.RetrievedChunk{}, nil
	}
	req := struct {
		Vector      []float32 `json:"vector"`
		Limit       int       `json:"limit"`
		WithPayload bool      `json:"with_payload"`
	}{queryVector, limit, true}

	var hits []scoredPoint
	err := c.call(ctx, "search", http.MethodPost, c.collectionPath()+"/points/search", req, &hits)
	if isNotFound(err) {
		return []domain.RetrievedChunk{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]domain.RetrievedChunk, 0, len(hits))
	for _, hit := range hits {
		out = append(out, domain.RetrievedChunk{
			Chunk: domain.Chunk{
				ID:          hit.Payload.ChunkID,
				Source:      hit.Payload.Source,
				ContentType: domain.ContentType(hit.Payload.ContentType),
				Index:       hit.Payload.ChunkIndex,
				Text:        hit.Payload.Text,
			},
			Score: hit.Score,
		})
	}
	return out, nil
}

func (c *Client) upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	for start := 0; start < len(chunks); start += c.batchSize {
		end := min(start+c.batchSize, len(chunks))
		batch := make([]point, 0, end-start)
		for i := start; i < end; i++ {
			batch = append(batch, point{
				ID:     pointID(chunks[i].ID),
				Vector: vectors[i],
				Payload: chunkPayload{
					ChunkID:     chunks[i].ID,
					Source:      chunks[i].Source,
					ContentType: string(chunks[i].ContentType),
					ChunkIndex:  chunks[i].Index,
					Text:        chunks[i].Text,
				},
			})
		}
		body := struct {
			Points []point `json:"points"`
		}{batch}
		if err := c.call(ctx, "upsert", http.MethodPut, c.collectionPath()+"/points?wait=true", body, nil); err != nil {
			return fmt.Errorf("upsert points %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// ensureCollection creates the collection on first use. When it already
// exists its vector size must match the embedder's.
func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	if known := c.knownVectorSize(); known != 0 {
		if known != vectorSize {
			return fmt.Errorf("qdrant collection %q holds %d-dim vectors, got %d", c.collection, known, vectorSize)
		}
		return nil
	}

	req := map[string]any{
		"vectors": map[string]any{"size": vectorSize, "distance": "Cosine"},
	}
	err := c.call(ctx, "create_collection", http.MethodPut, c.collectionPath(), req, nil)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
		var info collectionInfo
		if err := c.call(ctx, "get_collection", http.MethodGet, c.collectionPath(), nil, &info); err != nil {
			return err
		}
		if size := info.Config.Params.Vectors.Size; size != 0 && size != vectorSize {
			return fmt.Errorf("qdrant collection %q holds %d-dim vectors, got %d", c.collection, size, vectorSize)
		}
	} else if err != nil {
		return err
	}
	c.setVectorSize(vectorSize)
	return nil
}

func (c *Client) knownVectorSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vectorSize
}

func (c *Client) setVectorSize(n int) {
	c.mu.Lock()
	c.vectorSize = n
	c.mu.Unlock()
}

func (c *Client) collectionPath() string {
	return "/collections/" + c.collection
}

// call sends one request and decodes the "result" member of the reply into
// out when out is non-nil.
func (c *Client) call(ctx context.Context, op, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal qdrant %s: %w", op, err)
		}
		body = raw
	}

	send := func(ctx context.Context) error {
		return c.send(ctx, op, method, path, body, out)
	}
	var err error
	if c.executor == nil {
		err = send(ctx)
	} else {
		err = c.executor.Execute(ctx, "qdrant."+op, send, isTransient)
	}
	return resilience.Temporary("qdrant "+op, err, isTransient)
}

func (c *Client) send(ctx context.Context, op, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build qdrant %s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{Operation: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	envelope := struct {
		Result json.RawMessage `json:"result"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode qdrant %s: %w", op, err)
	}
	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("decode qdrant %s result: %w", op, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

// isTransient marks overload and server errors, timeouts and dropped
// connections as worth retrying.
func isTransient(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func checkLengths(chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("qdrant: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	return nil
}

// pointID keeps UUID chunk ids and derives a stable UUID for anything else,
// since Qdrant only accepts UUIDs or integers.
func pointID(id string) string {
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}
