package config

import (
	"fmt"
	"strings"
)

// InferenceFunction is the path segment of the downstream inference function.
const InferenceFunction = "predict_plant_disease"

type Mode string

const (
	ModeLocal    Mode = "local"
	ModeDeployed Mode = "deployed"
)

// EndpointConfig describes where downstream functions live.
type EndpointConfig struct {
	Mode    Mode
	BaseURL string
}

// ResolveEndpoint picks the functions base URL for the emulator or for the
// deployed project.
func ResolveEndpoint(emulator bool, projectID, region string) EndpointConfig {
	if emulator {
		return EndpointConfig{
			Mode:    ModeLocal,
			BaseURL: fmt.Sprintf("http://localhost:5001/%s/%s", projectID, region),
		}
	}
	return EndpointConfig{
		Mode:    ModeDeployed,
		BaseURL: fmt.Sprintf("https://%s-%s.cloudfunctions.net", region, projectID),
	}
}

// Endpoint resolves the endpoint for this function config. An explicit
// InferenceBaseURL replaces the derived base but keeps the mode.
func (f FunctionConfig) Endpoint() EndpointConfig {
	ep := ResolveEndpoint(f.Emulator, f.ProjectID, f.Region)
	if base := strings.TrimSpace(f.InferenceBaseURL); base != "" {
		ep.BaseURL = base
	}
	return ep
}

func (e EndpointConfig) FunctionURL(name string) string {
	return strings.TrimRight(e.BaseURL, "/") + "/" + strings.TrimLeft(name, "/")
}
