package cloudevents

import (
	"context"
	"fmt"

	ce "github.com/cloudevents/sdk-go/v2"
	"github.com/cloudevents/sdk-go/v2/client"
	"github.com/rs/zerolog/log"

	"github.com/HasithaDilshan/agro-ai-copilot/internal/store"
)

type Client struct {
	ceClient  client.Client
	sinkURL   string
	source    string
	eventType string
}

// DiagnosisData is the payload of a diagnosis created event.
type DiagnosisData struct {
	DiagnosisID    string  `json:"diagnosisId"`
	ImageURL       string  `json:"imageUrl"`
	MockDiagnosis  string  `json:"mockDiagnosis"`
	MockConfidence float64 `json:"mockConfidence"`
}

// NewClient builds an HTTP CloudEvents client. With an empty sinkURL events
// are only logged.
func NewClient(sinkURL, source, eventType string) (*Client, error) {
	c := &Client{
		sinkURL:   sinkURL,
		source:    source,
		eventType: eventType,
	}
	if sinkURL == "" {
		return c, nil
	}

	log.Info().Str("sink", sinkURL).Msg("creating CloudEvents client")
	ceClient, err := ce.NewClientHTTP(ce.WithTarget(sinkURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create CloudEvents client: %w", err)
	}
	c.ceClient = ceClient
	return c, nil
}

// SendDiagnosisEvent publishes rec and returns the event id.
func (c *Client) SendDiagnosisEvent(ctx context.Context, rec store.Record) (string, error) {
	event := ce.NewEvent()
	eventID := fmt.Sprintf("%s-%s", c.eventType, rec.ID)
	event.SetID(eventID)
	event.SetSource(c.source)
	event.SetType(c.eventType)
	event.SetSubject(store.Collection + "/" + rec.ID)
	event.SetTime(rec.Timestamp)
	event.SetExtension("category", "diagnosis")

	if err := event.SetData(ce.ApplicationJSON, DiagnosisData{
		DiagnosisID:    rec.ID,
		ImageURL:       rec.ImageURL,
		MockDiagnosis:  rec.MockDiagnosis,
		MockConfidence: rec.MockConfidence,
	}); err != nil {
		return "", fmt.Errorf("failed to set event data: %w", err)
	}

	logger := log.Ctx(ctx)
	if c.ceClient == nil {
		logger.Info().Str("event_id", eventID).Str("type", c.eventType).Msg("no sink configured, event not sent")
		return eventID, nil
	}

	result := c.ceClient.Send(ctx, event)
	if ce.IsUndelivered(result) {
		return "", fmt.Errorf("failed to deliver event: %w", result)
	}
	if !ce.IsACK(result) {
		return "", fmt.Errorf("event rejected by sink: %w", result)
	}

	logger.Info().Str("event_id", eventID).Msg("successfully sent event")
	return eventID, nil
}
