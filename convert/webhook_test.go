package convert

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/thekamyabsagar/kamyabvcffile/usage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookConvert(t *testing.T) {
	var gotFiles []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		for _, header := range r.MultipartForm.File["files"] {
			src, err := header.Open()
			require.NoError(t, err)
			content, err := io.ReadAll(src)
			src.Close()
			require.NoError(t, err)
			gotFiles = append(gotFiles, header.Filename+":"+string(content))
		}
		w.Write([]byte("BEGIN:VCARD\nEND:VCARD\n"))
	}))
	defer srv.Close()

	webhook, err := NewWebhook(WebhookOptions{
		SingleSidedURL: srv.URL,
		DoubleSidedURL: srv.URL,
	})
	require.NoError(t, err)

	vcf, err := webhook.Convert(context.Background(), usage.SingleSided, []File{
		{Name: "card1.jpg", Content: []byte("front")},
		{Name: "card2.jpg", Content: []byte("back")},
	})
	require.NoError(t, err)

	assert.Equal(t, "BEGIN:VCARD\nEND:VCARD\n", string(vcf))
	assert.Equal(t, []string{"card1.jpg:front", "card2.jpg:back"}, gotFiles)
}

func TestWebhookConvertUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	webhook, err := NewWebhook(WebhookOptions{
		SingleSidedURL: srv.URL,
		DoubleSidedURL: srv.URL,
	})
	require.NoError(t, err)

	_, err = webhook.Convert(context.Background(), usage.DoubleSided, []File{
		{Name: "card.jpg", Content: []byte("x")},
	})
	assert.Error(t, err)
}

func TestWebhookRequiresBothURLs(t *testing.T) {
	_, err := NewWebhook(WebhookOptions{SingleSidedURL: "http://localhost"})
	assert.Error(t, err)
}
