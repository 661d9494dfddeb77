// Package provision talks to the backend that spawns dedicated server instances.
package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/woozymasta/matchmaker/internal/models"
)

// CreatePath is the backend route that spawns a server.
const CreatePath = "/api/servers"

// ErrNoEndpoint is returned when the backend reports success without an endpoint.
var ErrNoEndpoint = errors.New("provisioning backend returned no endpoint")

// Client is an HTTP client of the provisioning backend.
type Client struct {
	rest *resty.Client
}

// New returns a client for the backend at baseURL. A non-empty token is sent as a bearer token.
func New(baseURL, token string, timeout time.Duration) *Client {
	rest := resty.New().
		SetHostURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		rest.SetAuthToken(token)
	}

	return &Client{rest: rest}
}

// CreateServer asks the backend for a new dedicated server instance.
// A refusal by the backend comes back as a response with Success unset and a nil error;
// transport and protocol failures come back as errors.
func (c *Client) CreateServer(ctx context.Context, req models.CreateServerRequest) (models.CreateServerResponse, error) {
	var out models.CreateServerResponse

	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post(CreatePath)
	if err != nil {
		return models.CreateServerResponse{}, fmt.Errorf("create server request: %w", err)
	}
	if resp.IsError() {
		return models.CreateServerResponse{}, fmt.Errorf("create server: backend returned %s", resp.Status())
	}
	if out.Success && out.RemoteEndpoint == "" {
		return models.CreateServerResponse{}, ErrNoEndpoint
	}

	return out, nil
}
