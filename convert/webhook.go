package convert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/thekamyabsagar/kamyabvcffile/usage"

	extErrors "github.com/pkg/errors"
)

// File is one uploaded card image forwarded to the OCR pipeline
type File struct {
	Name    string
	Content []byte
}

// WebhookOptions configures the external OCR endpoints. The pipeline is
// sidedness-aware, hence one URL per card type.
type WebhookOptions struct {
	SingleSidedURL string
	DoubleSidedURL string
	Timeout        time.Duration
}

// Webhook posts card images to the external contact-extraction pipeline and
// returns the generated VCF bytes. The pipeline is a black box to this
// service; only success or failure matters for accounting.
type Webhook struct {
	WebhookOptions
	client *http.Client
}

// NewWebhook returns a client for the external conversion pipeline
func NewWebhook(option WebhookOptions) (*Webhook, error) {
	if len(option.SingleSidedURL) == 0 || len(option.DoubleSidedURL) == 0 {
		return nil, fmt.Errorf("both webhook URLs are required")
	}
	if option.Timeout == 0 {
		option.Timeout = time.Minute * 2
	}
	return &Webhook{
		WebhookOptions: option,
		client: &http.Client{
			Timeout: option.Timeout,
		},
	}, nil
}

func (h *Webhook) urlFor(side usage.CardSide) string {
	if side == usage.DoubleSided {
		return h.DoubleSidedURL
	}
	return h.SingleSidedURL
}

// Convert forwards the images and returns the VCF payload on success
func (h *Webhook) Convert(ctx context.Context, side usage.CardSide, files []File) ([]byte, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := writer.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, extErrors.Wrap(err, "Cannot build upload body")
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, extErrors.Wrap(err, "Cannot build upload body")
		}
	}
	if err := writer.Close(); err != nil {
		return nil, extErrors.Wrap(err, "Cannot build upload body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.urlFor(side), &body)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot build webhook request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	res, err := h.client.Do(req)
	if err != nil {
		return nil, extErrors.Wrap(err, "Conversion webhook request failed")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("conversion webhook returned HTTP %d", res.StatusCode)
	}

	vcf, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot read webhook response")
	}
	return vcf, nil
}
