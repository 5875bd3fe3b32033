package cloudevents

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HasithaDilshan/agro-ai-copilot/internal/store"
)

func testRecord() store.Record {
	return store.Record{
		ID:             "b7d9a1c2-0000-4000-8000-000000000001",
		ImageURL:       "http://x/pest.jpg",
		MockDiagnosis:  "Signs of pest infestation. Consider organic pest control.",
		MockConfidence: 0.85,
		Timestamp:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSendDiagnosisEventWithoutSink(t *testing.T) {
	c, err := NewClient("", "agro-ai/process-plant-image", "plant.diagnosis.created")
	require.NoError(t, err)

	id, err := c.SendDiagnosisEvent(context.Background(), testRecord())
	require.NoError(t, err)
	assert.Equal(t, "plant.diagnosis.created-b7d9a1c2-0000-4000-8000-000000000001", id)
}

func TestSendDiagnosisEventToSink(t *testing.T) {
	received := make(chan *http.Request, 1)
	bodies := make(chan string, 1)
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- r
		bodies <- string(body)
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(sink.Close)

	c, err := NewClient(sink.URL, "agro-ai/process-plant-image", "plant.diagnosis.created")
	require.NoError(t, err)

	id, err := c.SendDiagnosisEvent(context.Background(), testRecord())
	require.NoError(t, err)
	assert.Equal(t, "plant.diagnosis.created-b7d9a1c2-0000-4000-8000-000000000001", id)

	r := <-received
	assert.Equal(t, "plant.diagnosis.created", r.Header.Get("Ce-Type"))
	assert.Equal(t, "agro-ai/process-plant-image", r.Header.Get("Ce-Source"))
	assert.Equal(t, "diagnosis", r.Header.Get("Ce-Category"))
	assert.JSONEq(t, `{
		"diagnosisId": "b7d9a1c2-0000-4000-8000-000000000001",
		"imageUrl": "http://x/pest.jpg",
		"mockDiagnosis": "Signs of pest infestation. Consider organic pest control.",
		"mockConfidence": 0.85
	}`, <-bodies)
}

func TestSendDiagnosisEventRejected(t *testing.T) {
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(sink.Close)

	c, err := NewClient(sink.URL, "src", "plant.diagnosis.created")
	require.NoError(t, err)

	_, err = c.SendDiagnosisEvent(context.Background(), testRecord())
	assert.Error(t, err)
}
