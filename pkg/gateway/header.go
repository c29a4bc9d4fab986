package gateway

import (
	"net/http"

	"github.com/google/uuid"
)

// Header names sent to the gateway.
const (
	SubscriptionKeyHeader    = "Ocp-Apim-Subscription-Key"
	DebugAuthorizationHeader = "Apim-Debug-Authorization"
	RequestIDHeader          = "Request-ID"
	ClientNameHeader         = "Client-Name"
)

const redacted = "[REDACTED]"

// secretHeaders are never logged verbatim.
var secretHeaders = map[string]struct{}{
	SubscriptionKeyHeader:    {},
	DebugAuthorizationHeader: {},
	"Authorization":          {},
}

// setRequestHeaders sets the gateway headers on req and returns the generated
// request ID.
func (c Config) setRequestHeaders(req *http.Request) string {
	requestID := uuid.NewString()

	clientName := c.ClientName
	if clientName == "" {
		clientName = DefaultClientName
	}

	req.Header.Set(SubscriptionKeyHeader, c.SubscriptionKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set(ClientNameHeader, clientName)

	if c.DebugAuthorization != "" {
		req.Header.Set(DebugAuthorizationHeader, c.DebugAuthorization)
	}

	return requestID
}

// RedactHeaders flattens h for logging, masking secret values.
func RedactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		if _, secret := secretHeaders[http.CanonicalHeaderKey(k)]; secret {
			out[k] = redacted
			continue
		}
		out[k] = h.Get(k)
	}
	return out
}
