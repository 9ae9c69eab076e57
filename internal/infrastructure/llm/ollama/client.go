package ollama

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/resilience"
)

const classifierTemperature = 0.3

type Client struct {
	baseURL     string
	genModel    string
	embedModel  string
	visionModel string
	httpClient  *http.Client
	executor    *resilience.Executor
}

type Option func(*Client)

// WithExecutor routes every call through retry and circuit breaking.
func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

func WithVisionModel(model string) Option {
	return func(c *Client) {
		c.visionModel = strings.TrimSpace(model)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func New(baseURL, genModel, embedModel string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Embedder struct {
	client *Client
}

var _ ports.Embedder = (*Embedder)(nil)

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed returned %d vectors for %d inputs", len(response.Embeddings), len(texts))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

type Generator struct {
	client *Client
}

var _ ports.TextGenerator = (*Generator)(nil)

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

// GenerateFromPrompt returns the model output exactly as produced.
func (g *Generator) GenerateFromPrompt(ctx context.Context, prompt string, opts domain.GenerateOptions) (string, error) {
	reqBody := map[string]any{
		"model":   g.client.genModel,
		"prompt":  prompt,
		"stream":  false,
		"options": map[string]any{"temperature": opts.Temperature},
	}
	if opts.JSON {
		reqBody["format"] = "json"
	}
	return g.client.generate(ctx, reqBody)
}

// IntentClassifier asks the generation model whether a query wants an answer or a report.
type IntentClassifier struct {
	generator *Generator
}

var _ ports.IntentClassifier = (*IntentClassifier)(nil)

func NewIntentClassifier(client *Client) *IntentClassifier {
	return &IntentClassifier{generator: NewGenerator(client)}
}

func (c *IntentClassifier) ClassifyIntent(ctx context.Context, query string) (string, error) {
	label, err := c.generator.GenerateFromPrompt(ctx, buildIntentPrompt(query), domain.GenerateOptions{Temperature: classifierTemperature})
	return strings.TrimSpace(label), err
}

// OCR transcribes images with a multimodal model.
type OCR struct {
	client *Client
}

var _ ports.OCREngine = (*OCR)(nil)

func NewOCR(client *Client) *OCR {
	return &OCR{client: client}
}

func (o *OCR) Recognize(ctx context.Context, image []byte, _ string) (string, error) {
	if len(image) == 0 {
		return "", nil
	}
	model := o.client.visionModel
	if model == "" {
		model = o.client.genModel
	}
	reqBody := map[string]any{
		"model":   model,
		"prompt":  ocrPrompt,
		"stream":  false,
		"images":  []string{base64.StdEncoding.EncodeToString(image)},
		"options": map[string]any{"temperature": 0},
	}
	text, err := o.client.generate(ctx, reqBody)
	return strings.TrimSpace(text), err
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return response.Response, nil
}
