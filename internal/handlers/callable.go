package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/HasithaDilshan/agro-ai-copilot/internal/models"
)

const maxRequestBody = 1 << 20

// Forwarder relays an image request to the inference function.
type Forwarder interface {
	Handle(ctx context.Context, req models.ImageRequest) (json.RawMessage, error)
}

// Diagnoser produces and stores a mock diagnosis.
type Diagnoser interface {
	Process(ctx context.Context, req models.ImageRequest) (models.ProcessResult, error)
}

type callFunc func(ctx context.Context, req models.ImageRequest) (any, error)

// CallableHandler speaks the callable function protocol: {"data": ...} in,
// {"result": ...} or {"error": {...}} out.
type CallableHandler struct {
	name string
	call callFunc
}

func NewOrchestratorHandler(f Forwarder) http.Handler {
	return &CallableHandler{
		name: "orchestrator",
		call: func(ctx context.Context, req models.ImageRequest) (any, error) {
			return f.Handle(ctx, req)
		},
	}
}

func NewMockHandler(d Diagnoser) http.Handler {
	return &CallableHandler{
		name: "mock",
		call: func(ctx context.Context, req models.ImageRequest) (any, error) {
			return d.Process(ctx, req)
		},
	}
}

func (h *CallableHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendJSONResponse(w, http.StatusMethodNotAllowed, models.CallableErrorResponse{
			Error: models.CallableError{
				Status:  models.KindInvalidArgument.Status(),
				Message: "Only POST method is allowed",
			},
		})
		return
	}

	req, err := decodeImageRequest(w, r)
	if err != nil {
		writeCallableError(w, r, models.InvalidArgument(fmt.Sprintf("Invalid request format: %s", err)))
		return
	}

	ctx := zerolog.Ctx(r.Context()).With().Str("function", h.name).Logger().WithContext(r.Context())
	result, err := h.call(ctx, req)
	if err != nil {
		writeCallableError(w, r, err)
		return
	}

	sendJSONResponse(w, http.StatusOK, models.CallableResponse{Result: result})
}

func decodeImageRequest(w http.ResponseWriter, r *http.Request) (models.ImageRequest, error) {
	var envelope models.CallableRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&envelope); err != nil {
		return models.ImageRequest{}, err
	}

	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return models.ImageRequest{ImageURL: envelope.ImageURL}, nil
	}

	var req models.ImageRequest
	if err := json.Unmarshal(envelope.Data, &req); err != nil {
		return models.ImageRequest{}, err
	}
	return req, nil
}

func writeCallableError(w http.ResponseWriter, r *http.Request, err error) {
	callErr := models.AsError(err)
	logger := zerolog.Ctx(r.Context())
	if callErr.Kind == models.KindInternal {
		logger.Error().Err(err).Msg("callable failed")
	} else {
		logger.Info().Str("kind", string(callErr.Kind)).Msg(callErr.Message)
	}

	sendJSONResponse(w, callErr.Kind.HTTPStatus(), models.CallableErrorResponse{
		Error: models.CallableError{
			Status:  callErr.Kind.Status(),
			Message: callErr.Message,
		},
	})
}

func IndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	fmt.Fprintf(w, "Plant diagnosis functions are running. POST to /processPlantImage with {\"data\":{\"imageUrl\":...}}")
}

func HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func sendJSONResponse(w http.ResponseWriter, statusCode int, resp any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}
