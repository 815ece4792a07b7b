package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stockflow_backend/export"
	"bitbucket.org/mmdatafocus/stockflow_backend/models"
	"bitbucket.org/mmdatafocus/stockflow_backend/utils"
)

const (
	defaultFetchTimeout  = 10 * time.Second
	defaultExportTimeout = 30 * time.Second
)

// ProviderClient talks to the upstream transaction provider. Export
// generation is slower than a plain fetch, so the export timeout is kept
// at no less than twice the fetch timeout.
type ProviderClient struct {
	BaseURL       string
	HTTPClient    *http.Client
	FetchTimeout  time.Duration
	ExportTimeout time.Duration
}

func NewProviderClient(baseURL string) *ProviderClient {
	fetch := durationFromEnv("PROVIDER_FETCH_TIMEOUT_SECONDS", defaultFetchTimeout)
	exp := durationFromEnv("PROVIDER_EXPORT_TIMEOUT_SECONDS", defaultExportTimeout)
	if exp < 2*fetch {
		exp = 2 * fetch
	}
	return &ProviderClient{
		BaseURL:       baseURL,
		HTTPClient:    &http.Client{},
		FetchTimeout:  fetch,
		ExportTimeout: exp,
	}
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}

// FetchTransactions pulls the raw collection payload for one kind within
// a window. The payload stays raw; canonicalization is the caller's job.
func (c *ProviderClient) FetchTransactions(ctx context.Context, kind models.TransactionKind, fromDate, toDate string) (any, error) {
	q := url.Values{}
	q.Set("kind", string(kind))
	q.Set("from", fromDate)
	q.Set("to", toDate)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/transactions?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, categorizeTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, categorizeResponse(resp)
	}
	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, utils.NewCategorizedError(utils.ErrorCategorySchemaMismatch,
			"provider returned a non-JSON payload", err)
	}
	return payload, nil
}

// RequestServerExport asks the provider to render the artifact remotely
// and returns the raw bytes. Callers treat a zero-byte body as a failure.
func (c *ProviderClient) RequestServerExport(ctx context.Context, req export.Request) ([]byte, error) {
	body, err := utils.MarshalToJSON(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/exports", strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, categorizeTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, categorizeResponse(resp)
	}
	return io.ReadAll(resp.Body)
}

// categorizeTransportError maps client-side failures. Only deadline and
// network timeouts become retryable; everything else is terminal.
func categorizeTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return utils.NewCategorizedError(utils.ErrorCategoryRemoteTimeout,
			"provider request timed out", err)
	}
	return utils.NewCategorizedError(utils.ErrorCategoryRemoteServer,
		"provider request failed", err)
}

type providerErrorBody struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
}

// categorizeResponse maps provider status codes onto error categories.
// Validation failures keep the provider's field errors verbatim.
func categorizeResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body providerErrorBody
	_ = json.Unmarshal(raw, &body)
	message := body.Message
	if message == "" {
		message = fmt.Sprintf("provider returned status %d", resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return &utils.CategorizedError{
			Category: utils.ErrorCategoryRemoteValidation,
			Message:  message,
			Detail:   body.Errors,
		}
	case resp.StatusCode == http.StatusNotFound:
		return utils.NewCategorizedError(utils.ErrorCategoryRemoteNotFound, message, nil)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return utils.NewCategorizedError(utils.ErrorCategoryRemoteTimeout, message, nil)
	default:
		return utils.NewCategorizedError(utils.ErrorCategoryRemoteServer, message, nil)
	}
}
