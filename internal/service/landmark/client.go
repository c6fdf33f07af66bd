package landmark

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"facecapture/internal/model"
)

const maxErrorBody = 1024

// Client extracts landmarks by posting JPEG frames to a face mesh sidecar.
type Client struct {
	endpoint   *url.URL
	opts       Options
	httpClient *http.Client
}

type extractResponse struct {
	Faces [][]model.Point `json:"faces"`
	Error string          `json:"error,omitempty"`
}

// NewClient validates the endpoint and returns a ready client.
func NewClient(endpoint string, opts Options, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "parse landmark endpoint %q", endpoint)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("landmark endpoint %q must be absolute", endpoint)
	}
	if opts.LandmarkCount <= 0 {
		opts.LandmarkCount = model.DefaultLandmarkCount
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	q := u.Query()
	for k, v := range opts.query() {
		q[k] = v
	}
	u.RawQuery = q.Encode()

	return &Client{endpoint: u, opts: opts, httpClient: httpClient}, nil
}

// Extract implements Extractor.
func (c *Client) Extract(ctx context.Context, frame model.Frame) (*model.LandmarkSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(frame.Data))
	if err != nil {
		return nil, errors.Wrap(err, "build landmark request")
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "landmark request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read landmark response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, errors.Errorf("landmark server error: %d - %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var decoded extractResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, errors.Wrap(err, "decode landmark response")
	}
	if decoded.Error != "" {
		return nil, errors.Errorf("landmark server: %s", decoded.Error)
	}

	if len(decoded.Faces) == 0 {
		return nil, nil
	}

	set, err := model.NewLandmarkSet(decoded.Faces[0], c.opts.LandmarkCount)
	if errors.Is(err, model.ErrShortLandmarkSet) {
		// An incomplete mesh counts as no detection.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &set, nil
}

// Close drops idle connections to the sidecar.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
