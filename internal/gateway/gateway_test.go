package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HasithaDilshan/agro-ai-copilot/internal/config"
	"github.com/HasithaDilshan/agro-ai-copilot/internal/metrics"
	"github.com/HasithaDilshan/agro-ai-copilot/internal/models"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestGateway(t *testing.T, handler http.HandlerFunc) (*Gateway, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	gw := New(Options{
		Endpoint:         config.EndpointConfig{Mode: config.ModeLocal, BaseURL: srv.URL},
		HTTPClient:       srv.Client(),
		Timeout:          2 * time.Second,
		TransportRetries: 1,
		RetryDelay:       time.Millisecond,
	})
	return gw, &hits
}

func TestHandleRejectsEmptyImageURL(t *testing.T) {
	gw, hits := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("downstream must not be called")
	})

	out, err := gw.Handle(context.Background(), models.ImageRequest{})

	assert.Nil(t, out)
	require.Error(t, err)
	assert.Equal(t, models.KindInvalidArgument, models.KindOf(err))
	assert.Equal(t, int32(0), hits.Load())
}

func TestHandleForwardsRequest(t *testing.T) {
	gw, hits := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/predict_plant_disease", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"imageUrl":"http://x/leaf.jpg"}`, string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"diagnosis":{"class_name":"Tomato___healthy","confidence":0.97},"diagnosisId":"diagnosis_leaf_jpg_1"}`)
	})

	out, err := gw.Handle(context.Background(), models.ImageRequest{ImageURL: "http://x/leaf.jpg"})

	require.NoError(t, err)
	assert.JSONEq(t, `{"diagnosis":{"class_name":"Tomato___healthy","confidence":0.97},"diagnosisId":"diagnosis_leaf_jpg_1"}`, string(out))
	assert.Equal(t, int32(1), hits.Load())
}

func TestHandlePassesThroughAnyJSON(t *testing.T) {
	for _, body := range []string{`[1,2,3]`, `"plain"`, `{"nested":{"a":[true,null]}}`, "  {\"x\": 1}\n"} {
		gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, body)
		})

		out, err := gw.Handle(context.Background(), models.ImageRequest{ImageURL: "http://x/a.jpg"})
		require.NoError(t, err)
		assert.JSONEq(t, body, string(out))
	}
}

func TestHandleNon2xxIsInternal(t *testing.T) {
	gw, hits := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "boom")
	})

	_, err := gw.Handle(context.Background(), models.ImageRequest{ImageURL: "http://x/a.jpg"})

	require.Error(t, err)
	gwErr := models.AsError(err)
	assert.Equal(t, models.KindInternal, gwErr.Kind)
	assert.Contains(t, gwErr.Message, "500")
	assert.Contains(t, gwErr.Message, "boom")
	assert.Equal(t, int32(1), hits.Load(), "status errors are not retried")
}

func TestHandleStatusCodesInMessage(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusNotFound, http.StatusBadGateway, http.StatusServiceUnavailable} {
		gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		})

		_, err := gw.Handle(context.Background(), models.ImageRequest{ImageURL: "http://x/a.jpg"})
		require.Error(t, err)
		assert.Equal(t, models.KindInternal, models.KindOf(err))
		assert.Contains(t, models.AsError(err).Message, strconv.Itoa(status))
	}
}

func TestHandleMalformedSuccessBody(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>not json</html>")
	})

	_, err := gw.Handle(context.Background(), models.ImageRequest{ImageURL: "http://x/a.jpg"})

	require.Error(t, err)
	assert.Equal(t, models.KindInternal, models.KindOf(err))
	var syntaxErr *json.SyntaxError
	assert.True(t, errors.As(err, &syntaxErr))
}

func TestHandleTruncatesLongErrorBody(t *testing.T) {
	long := make([]byte, 4096)
	for i := range long {
		long[i] = 'e'
	}
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write(long)
	})

	_, err := gw.Handle(context.Background(), models.ImageRequest{ImageURL: "http://x/a.jpg"})

	require.Error(t, err)
	assert.Less(t, len(models.AsError(err).Message), 600)
}

func TestHandleTruncatesOnRuneBoundary(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, strings.Repeat("a", maxErrorBody-1)+"ééé")
	})

	_, err := gw.Handle(context.Background(), models.ImageRequest{ImageURL: "http://x/a.jpg"})

	require.Error(t, err)
	msg := models.AsError(err).Message
	assert.True(t, utf8.ValidString(msg))
	assert.True(t, strings.HasSuffix(msg, strings.Repeat("a", maxErrorBody-1)+"..."))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("  short \n", 10))
	assert.Equal(t, "ab...", truncate("abé", 3))
	assert.Equal(t, "abé...", truncate("abéd", 4))
}

func TestHandleRetriesTransportFailureOnce(t *testing.T) {
	var calls atomic.Int32
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, errors.New("connection refused")
	})}
	reg := metrics.NewRegistry()
	gw := New(Options{
		Endpoint:         config.ResolveEndpoint(true, "agroai-phoenix", "us-central1"),
		HTTPClient:       client,
		TransportRetries: 1,
		RetryDelay:       time.Millisecond,
		Metrics:          reg,
	})

	_, err := gw.Handle(context.Background(), models.ImageRequest{ImageURL: "http://x/a.jpg"})

	require.Error(t, err)
	assert.Equal(t, models.KindInternal, models.KindOf(err))
	assert.Contains(t, models.AsError(err).Message, "connection refused")
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int64(1), reg.Value("gateway_calls_total", map[string]string{"outcome": "internal"}))
}

func TestHandleRecoversAfterTransportFailure(t *testing.T) {
	var calls atomic.Int32
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("connection reset by peer")
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{"ok":true}`)),
			Header:     make(http.Header),
		}, nil
	})}
	gw := New(Options{
		Endpoint:         config.EndpointConfig{BaseURL: "http://inference.local"},
		HTTPClient:       client,
		TransportRetries: 1,
		RetryDelay:       time.Millisecond,
	})

	out, err := gw.Handle(context.Background(), models.ImageRequest{ImageURL: "http://x/a.jpg"})

	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(out))
	assert.Equal(t, int32(2), calls.Load())
}

func TestHandleAttemptTimeout(t *testing.T) {
	release := make(chan struct{})
	gw, hits := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	t.Cleanup(func() { close(release) })
	gw.timeout = 50 * time.Millisecond
	gw.retries = 0

	_, err := gw.Handle(context.Background(), models.ImageRequest{ImageURL: "http://x/a.jpg"})

	require.Error(t, err)
	assert.Equal(t, models.KindInternal, models.KindOf(err))
	assert.Equal(t, int32(1), hits.Load())
}

func TestURL(t *testing.T) {
	gw := New(Options{Endpoint: config.ResolveEndpoint(false, "agroai-phoenix", "us-central1")})
	assert.Equal(t, "https://us-central1-agroai-phoenix.cloudfunctions.net/predict_plant_disease", gw.URL())
}
