package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facecapture/internal/model"
)

func testSet(t *testing.T) model.LandmarkSet {
	t.Helper()

	points := make([]model.Point, model.DefaultLandmarkCount)
	for i := range points {
		points[i] = model.Point{X: float64(i) / 1000, Y: 0.5, Z: -0.02}
	}
	set, err := model.NewLandmarkSet(points, model.DefaultLandmarkCount)
	require.NoError(t, err)
	return set
}

func TestClassifySuccess(t *testing.T) {
	var got classifyRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"emotion": "happy"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", time.Second, server.Client())
	label, err := client.Classify(context.Background(), testSet(t))
	require.NoError(t, err)

	assert.Equal(t, model.Label("happy"), label)
	require.Len(t, got.Landmarks, model.DefaultLandmarkCount)
	assert.Equal(t, model.Point{X: 0.001, Y: 0.5, Z: -0.02}, got.Landmarks[1])
}

func TestClassifyRequestBodyShape(t *testing.T) {
	var raw map[string][]map[string]float64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		w.Write([]byte(`{"emotion": "sad"}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, 0, nil).Classify(context.Background(), testSet(t))
	require.NoError(t, err)

	require.Contains(t, raw, "landmarks")
	first := raw["landmarks"][0]
	assert.Len(t, first, 3)
	assert.Contains(t, first, "x")
	assert.Contains(t, first, "y")
	assert.Contains(t, first, "z")
}

func TestClassifyErrors(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantKind   Kind
		wantStatus int
		wantBody   string
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model crashed", http.StatusInternalServerError)
			},
			wantKind:   KindServer,
			wantStatus: http.StatusInternalServerError,
			wantBody:   "model crashed",
		},
		{
			name: "embedded error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"error": "expected 468 landmarks"}`))
			},
			wantKind: KindInvalidResponse,
		},
		{
			name: "missing emotion",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"label": "happy"}`))
			},
			wantKind: KindInvalidResponse,
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`<html>`))
			},
			wantKind: KindInvalidResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			label, err := NewClient(server.URL, time.Second, nil).Classify(context.Background(), testSet(t))
			require.Error(t, err)
			assert.Empty(t, label)

			var classifyErr *Error
			require.True(t, errors.As(err, &classifyErr))
			assert.Equal(t, tt.wantKind, classifyErr.Kind)
			assert.Equal(t, tt.wantStatus, classifyErr.StatusCode)
			assert.Equal(t, tt.wantBody, classifyErr.Body)
		})
	}
}

func TestClassifyTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewClient(url, time.Second, nil).Classify(context.Background(), testSet(t))

	var classifyErr *Error
	require.True(t, errors.As(err, &classifyErr))
	assert.Equal(t, KindTransport, classifyErr.Kind)
}

func TestClassifyHonoursContext(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	set := testSet(t)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := NewClient(server.URL, 0, nil).Classify(ctx, set)
		errCh <- err
	}()
	cancel()

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("classify did not return after cancel")
	}
}
