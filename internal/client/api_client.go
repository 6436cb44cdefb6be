package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pathlearn/fedclient/internal/core/errs"
	"github.com/pathlearn/fedclient/internal/core/models"
	"github.com/pathlearn/fedclient/pkg/logger"
)

// TokenProvider supplies the bearer token for authenticated calls.
type TokenProvider func() (string, error)

// APIClient talks to the coordination server's federated endpoints.
type APIClient struct {
	baseURL    string
	token      TokenProvider
	httpClient *http.Client
}

func NewAPIClient(baseURL string, token TokenProvider) *APIClient {
	return &APIClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// GetLatestModel fetches metadata of the latest global model of the given
// type.
func (c *APIClient) GetLatestModel(ctx context.Context, modelType string) (*models.ModelMetadata, error) {
	url := fmt.Sprintf("%s/federated/model/%s/latest", c.baseURL, modelType)

	var metadata models.ModelMetadata
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &metadata); err != nil {
		return nil, err
	}
	return &metadata, nil
}

// GetModelWeights fetches the serialized weight records for a model. The
// body is a JSON array of {data, shape, dtype} records in layer order.
func (c *APIClient) GetModelWeights(ctx context.Context, modelID string) ([]models.WeightRecord, error) {
	url := fmt.Sprintf("%s/federated/model/%s/weights", c.baseURL, modelID)

	var weights []models.WeightRecord
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &weights); err != nil {
		return nil, err
	}
	return weights, nil
}

// RecordInteraction mirrors one interaction record to the server for
// central tracking. Callers treat failures as non-fatal.
func (c *APIClient) RecordInteraction(ctx context.Context, record models.InteractionRecord) error {
	url := fmt.Sprintf("%s/federated/interaction/record", c.baseURL)
	return c.doJSON(ctx, http.MethodPost, url, record, nil)
}

// SubmitUpdate posts a model update payload and returns the server's
// acknowledgment, which is opaque to the client.
func (c *APIClient) SubmitUpdate(ctx context.Context, payload models.ModelUpdatePayload) (map[string]interface{}, error) {
	url := fmt.Sprintf("%s/federated/update/submit", c.baseURL)

	var ack map[string]interface{}
	if err := c.doJSON(ctx, http.MethodPost, url, payload, &ack); err != nil {
		return nil, err
	}
	return ack, nil
}

func (c *APIClient) doJSON(ctx context.Context, method, url string, body, out interface{}) error {
	log := logger.WithComponent("api_client")

	token, err := c.token()
	if err != nil || token == "" {
		return errs.ErrAuthRequired
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &errs.NetworkError{Op: method + " request", URL: url, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return errs.ErrAuthRequired
	case resp.StatusCode != http.StatusOK:
		respBody, _ := io.ReadAll(resp.Body)
		log.Error().
			Int("status", resp.StatusCode).
			Str("url", url).
			Str("body", string(respBody)).
			Msg("Request failed")
		return &errs.NetworkError{
			Op:  method + " request",
			URL: url,
			Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &errs.NetworkError{Op: "decode response", URL: url, Err: err}
		}
	}
	return nil
}
