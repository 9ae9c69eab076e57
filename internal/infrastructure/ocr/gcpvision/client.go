package gcpvision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"

	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
)

type annotator interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error)
	Close() error
}

// Client runs DOCUMENT_TEXT_DETECTION against Google Cloud Vision.
type Client struct {
	api annotator
}

var _ ports.OCREngine = (*Client)(nil)

// ClientOptions turns a credentials setting into client options. Inline JSON
// and file paths are both accepted; empty means application default credentials.
func ClientOptions(credentials string) []option.ClientOption {
	creds := strings.TrimSpace(credentials)
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

func New(ctx context.Context, credentials string) (*Client, error) {
	api, err := vision.NewImageAnnotatorClient(ctx, ClientOptions(credentials)...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &Client{api: api}, nil
}

func newWithAnnotator(api annotator) *Client {
	return &Client{api: api}
}

func (c *Client) Close() error {
	if c == nil || c.api == nil {
		return nil
	}
	return c.api.Close()
}

func (c *Client) Recognize(ctx context.Context, image []byte, _ string) (string, error) {
	if len(image) == 0 {
		return "", nil
	}
	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: image},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
		}},
	}

	resp, err := c.api.BatchAnnotateImages(ctx, req)
	if err != nil {
		return "", fmt.Errorf("vision batch annotate: %w", err)
	}
	if resp == nil || len(resp.GetResponses()) == 0 {
		return "", nil
	}

	r0 := resp.GetResponses()[0]
	if r0.GetError() != nil && r0.GetError().GetMessage() != "" {
		return "", errors.New("vision annotate: " + r0.GetError().GetMessage())
	}
	return strings.TrimSpace(r0.GetFullTextAnnotation().GetText()), nil
}
