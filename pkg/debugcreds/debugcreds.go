package debugcreds

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/tokenprobe/pkg/logger"
)

const (
	// DefaultManagementURL is the Azure Resource Manager endpoint.
	DefaultManagementURL = "https://management.azure.com"

	managementAPIVersion = "2024-06-01-preview"

	// CredentialLifetime is the ISO 8601 duration requested for credentials.
	CredentialLifetime = "PT1H"

	azCLI = "az"
)

// ErrEmptyOutput is returned when a deployment query yields nothing.
var ErrEmptyOutput = errors.New("command produced no output")

// Deployment identifies the ARM deployment that created the gateway.
type Deployment struct {
	ResourceGroup string
	Name          string
}

// Outputs are the values read back from the deployment.
type Outputs struct {
	ServiceID  string
	GatewayURL string
}

// Credentials is everything needed to send a traced request.
type Credentials struct {
	Outputs

	// Token is the value for the Apim-Debug-Authorization header.
	Token string
}

// Client resolves deployment outputs and requests debug credentials.
type Client struct {
	runner        Runner
	httpClient    *http.Client
	managementURL string
	logger        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(c *Client) {
		c.runner = r
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.httpClient = h
	}
}

// WithManagementURL overrides the management endpoint.
func WithManagementURL(u string) Option {
	return func(c *Client) {
		c.managementURL = strings.TrimRight(u, "/")
	}
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.OrNop(l)
	}
}

// New returns a Client that shells out to the az CLI by default.
func New(opts ...Option) *Client {
	c := &Client{
		runner:        ExecRunner{},
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		managementURL: DefaultManagementURL,
		logger:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve reads the service id and gateway URL from the deployment outputs.
func (c *Client) Resolve(ctx context.Context, d Deployment) (Outputs, error) {
	if d.ResourceGroup == "" || d.Name == "" {
		return Outputs{}, errors.New("resource group and deployment name are required")
	}

	serviceID, err := c.query(ctx, d, "properties.outputResources[].id")
	if err != nil {
		return Outputs{}, fmt.Errorf("reading service id: %w", err)
	}

	// outputResources may list more than one resource; the service is first.
	serviceID, _, _ = strings.Cut(serviceID, "\n")
	serviceID = strings.TrimSpace(serviceID)

	gatewayURL, err := c.query(ctx, d, "properties.outputs.gatewayUrl.value")
	if err != nil {
		return Outputs{}, fmt.Errorf("reading gateway url: %w", err)
	}

	c.logger.Debug("resolved deployment outputs", "service_id", serviceID, "gateway_url", gatewayURL)

	return Outputs{ServiceID: serviceID, GatewayURL: gatewayURL}, nil
}

func (c *Client) query(ctx context.Context, d Deployment, query string) (string, error) {
	out, err := c.runner.Run(ctx, azCLI,
		"deployment", "group", "show",
		"--name", d.Name,
		"-g", d.ResourceGroup,
		"--query", query,
		"-o", "tsv",
	)
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyOutput, query)
	}
	return out, nil
}

// AccessToken returns a management plane bearer token from the az CLI.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	token, err := c.runner.Run(ctx, azCLI, "account", "get-access-token", "--query", "accessToken", "--output", "tsv")
	if err != nil {
		return "", fmt.Errorf("getting access token: %w", err)
	}
	if token == "" {
		return "", fmt.Errorf("getting access token: %w", ErrEmptyOutput)
	}
	return token, nil
}

type listDebugCredentialsRequest struct {
	CredentialsExpireAfter string   `json:"credentialsExpireAfter"`
	APIID                  string   `json:"apiId"`
	Purposes               []string `json:"purposes"`
}

type listDebugCredentialsResponse struct {
	Token string `json:"token"`
}

// ListDebugCredentials requests a tracing token for the service's openai API.
func (c *Client) ListDebugCredentials(ctx context.Context, serviceID, accessToken string) (string, error) {
	payload, err := json.Marshal(listDebugCredentialsRequest{
		CredentialsExpireAfter: CredentialLifetime,
		APIID:                  serviceID + "/apis/openai",
		Purposes:               []string{"tracing"},
	})
	if err != nil {
		return "", fmt.Errorf("encoding debug credentials request: %w", err)
	}

	endpoint := fmt.Sprintf("%s%s/gateways/managed/listDebugCredentials?api-version=%s",
		c.managementURL, serviceID, managementAPIVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating debug credentials request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	c.logger.Debug("requesting debug credentials", "endpoint", endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting debug credentials: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading debug credentials response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("debug credentials: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out listDebugCredentialsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decoding debug credentials response: %w", err)
	}
	if out.Token == "" {
		return "", errors.New("debug credentials response carried no token")
	}

	return out.Token, nil
}

// Acquire resolves the deployment, fetches an access token and requests debug
// credentials, in that order.
func (c *Client) Acquire(ctx context.Context, d Deployment) (*Credentials, error) {
	outputs, err := c.Resolve(ctx, d)
	if err != nil {
		return nil, err
	}

	accessToken, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	token, err := c.ListDebugCredentials(ctx, outputs.ServiceID, accessToken)
	if err != nil {
		return nil, err
	}

	return &Credentials{Outputs: outputs, Token: token}, nil
}
