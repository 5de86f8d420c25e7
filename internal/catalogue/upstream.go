package catalogue

import (
	"context"
	"net/http"

	"github.com/jmylchreest/streamgate/internal/models"
	"github.com/jmylchreest/streamgate/pkg/httpclient"
)

// HTTPUpstream opens a channel's upstream URL over a resilient httpclient.Client,
// forwarding the caller's headers and satisfying relay.Upstream.
type HTTPUpstream struct {
	client *httpclient.Client
}

// NewHTTPUpstream creates an HTTPUpstream with the given client configuration.
func NewHTTPUpstream(cfg httpclient.Config) *HTTPUpstream {
	return &HTTPUpstream{client: httpclient.New(cfg)}
}

// Open implements relay.Upstream.
func (u *HTTPUpstream) Open(ctx context.Context, channel *models.StreamChannel, headers http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, channel.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header = headers.Clone()
	return u.client.DoWithContext(ctx, req)
}
