// Package gateway builds and sends streaming chat completion requests through
// an API Management style gateway fronting an Azure OpenAI deployment.
package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultAPIVersion is the Azure OpenAI api-version used when none is set.
	DefaultAPIVersion = "2024-09-01-preview"

	// DefaultClientName is sent in the Client-Name header.
	DefaultClientName = "tokenprobe"

	// DefaultTimeout bounds a whole streaming request.
	DefaultTimeout = 5 * time.Minute
)

// ConfigurationError reports a missing or malformed gateway setting. It is
// raised before any request is sent.
type ConfigurationError struct {
	// Field is the name of the offending setting, e.g. "gateway url".
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Config describes one gateway target.
type Config struct {
	// GatewayURL is the gateway base URL, e.g. "https://apim-foo.azure-api.net".
	GatewayURL string

	// Deployment is the model deployment name that appears in the request path.
	Deployment string

	// APIVersion is the api-version query parameter.
	APIVersion string

	// SubscriptionKey is sent in the Ocp-Apim-Subscription-Key header.
	SubscriptionKey string

	// ClientName is sent in the Client-Name header.
	ClientName string

	// DebugAuthorization, when set, is sent in the Apim-Debug-Authorization
	// header to request gateway tracing.
	DebugAuthorization string

	// HTTPClient is used to send requests. A client with DefaultTimeout is
	// used when nil.
	HTTPClient *http.Client
}

// Validate checks that every required setting is present and well formed.
// The returned error is always a *ConfigurationError.
func (c Config) Validate() error {
	if strings.TrimSpace(c.GatewayURL) == "" {
		return &ConfigurationError{Field: "gateway url", Reason: "missing"}
	}

	u, err := url.Parse(c.GatewayURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ConfigurationError{Field: "gateway url", Reason: fmt.Sprintf("%q is not an absolute URL", c.GatewayURL)}
	}

	if strings.TrimSpace(c.Deployment) == "" {
		return &ConfigurationError{Field: "deployment", Reason: "missing"}
	}

	if strings.TrimSpace(c.SubscriptionKey) == "" {
		return &ConfigurationError{Field: "subscription key", Reason: "missing"}
	}

	return nil
}

// Endpoint returns the chat completions URL for the deployment.
func (c Config) Endpoint() string {
	version := c.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}

	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		strings.TrimRight(c.GatewayURL, "/"),
		url.PathEscape(c.Deployment),
		url.QueryEscape(version),
	)
}

// IsConfigurationError reports whether err is or wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
