package models

import "encoding/json"

type ImageRequest struct {
	ImageURL string `json:"imageUrl"`
}

// CallableRequest is the body of a callable function invocation. Clients send
// {"data": {...}}; a bare {"imageUrl": "..."} body is accepted as well.
type CallableRequest struct {
	Data     json.RawMessage `json:"data,omitempty"`
	ImageURL string          `json:"imageUrl,omitempty"`
}

type CallableResponse struct {
	Result any `json:"result"`
}

type CallableErrorResponse struct {
	Error CallableError `json:"error"`
}

type CallableError struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type ProcessResult struct {
	DiagnosisID string `json:"diagnosisId"`
	Status      string `json:"status"`
}
