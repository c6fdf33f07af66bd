// Package classifier talks to the remote emotion classification endpoint.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"facecapture/internal/model"
)

const maxErrorBody = 4096

// Client posts landmark sets to the classifier and returns the detected label.
type Client struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
}

type classifyRequest struct {
	Landmarks []model.Point `json:"landmarks"`
}

type classifyResponse struct {
	Emotion *string `json:"emotion"`
	Error   string  `json:"error"`
}

// NewClient creates a client. A zero timeout means only the caller's
// context bounds each request.
func NewClient(endpoint string, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		endpoint:   endpoint,
		timeout:    timeout,
		httpClient: httpClient,
	}
}

// Classify sends one landmark set and waits for the label.
func (c *Client) Classify(ctx context.Context, set model.LandmarkSet) (model.Label, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(classifyRequest{Landmarks: set.Points()})
	if err != nil {
		return "", &Error{Kind: KindTransport, Err: errors.Wrap(err, "encode landmarks")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", &Error{Kind: KindTransport, Err: errors.Wrap(err, "build request")}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &Error{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Kind: KindTransport, Err: errors.Wrap(err, "read response")}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return "", &Error{
			Kind:       KindServer,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var decoded classifyResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", &Error{Kind: KindInvalidResponse, Err: errors.Wrap(err, "decode response")}
	}
	if decoded.Error != "" {
		return "", &Error{Kind: KindInvalidResponse, Err: errors.New(decoded.Error)}
	}
	if decoded.Emotion == nil || *decoded.Emotion == "" {
		return "", &Error{Kind: KindInvalidResponse, Err: errors.New("response has no emotion field")}
	}

	return model.Label(*decoded.Emotion), nil
}
