package cryptopay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"casino-payments-go/internal/models"
	"casino-payments-go/internal/store"

	"golang.org/x/net/http2"
)

const authHeader = "Crypto-Pay-API-Token"

// transientProviderCodes are provider error codes known to be retryable.
// Everything else the provider rejects is treated as definitive.
var transientProviderCodes = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
}

// Client is a stateless, typed wrapper over the CryptoBot HTTP API.
// Concurrent calls share one pooled transport.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(cfg models.ProviderConfig) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("missing required provider credential: CRYPTOBOT_API_TOKEN")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		return nil, fmt.Errorf("provider base URL cannot be empty")
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient, err := createCustomHttpClient(timeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	return &Client{
		baseURL:    baseURL,
		token:      cfg.Token,
		httpClient: httpClient,
	}, nil
}

func createCustomHttpClient(timeout time.Duration) (*http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: timeout,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, err
	}

	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

// apiEnvelope is the provider's uniform response wrapper.
type apiEnvelope struct {
	Ok     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  *apiError       `json:"error"`
}

type apiError struct {
	Code int    `json:"code"`
	Name string `json:"name"`
}

// call performs one provider request and unmarshals the result envelope into
// out. Transport failures wrap ErrProviderUnavailable; ok:false responses
// wrap ErrProviderRejected unless the code is known to be transient.
func (c *Client) call(ctx context.Context, method, endpoint string, query url.Values, body any, out any) error {
	var reqBody *bytes.Buffer
	if body != nil {
		reqBody = &bytes.Buffer{}
		if err := json.NewEncoder(reqBody).Encode(body); err != nil {
			return fmt.Errorf("encode %s request: %w", endpoint, err)
		}
	}

	reqURL := c.baseURL + "/" + endpoint
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var req *http.Request
	var err error
	if reqBody != nil {
		req, err = http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, reqURL, nil)
	}
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}

	req.Header.Set(authHeader, c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", store.ErrProviderUnavailable, endpoint, err)
	}
	defer resp.Body.Close()

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: %s: malformed response: %v", store.ErrProviderUnavailable, endpoint, err)
	}

	if !envelope.Ok {
		code, name := 0, "UNKNOWN"
		if envelope.Error != nil {
			code, name = envelope.Error.Code, envelope.Error.Name
		}
		if transientProviderCodes[code] {
			return fmt.Errorf("%w: %s: %d %s", store.ErrProviderUnavailable, endpoint, code, name)
		}
		return fmt.Errorf("%w: %s: %d %s", store.ErrProviderRejected, endpoint, code, name)
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", endpoint, err)
		}
	}

	return nil
}

// GetMe returns the provider app identity, used as a startup auth check.
func (c *Client) GetMe(ctx context.Context) (*models.AppIdentity, error) {
	var identity models.AppIdentity
	if err := c.call(ctx, http.MethodGet, "getMe", nil, nil, &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

// GetExchangeRates returns all source/target rate pairs the provider quotes.
func (c *Client) GetExchangeRates(ctx context.Context) ([]models.ExchangeRate, error) {
	var rates []models.ExchangeRate
	if err := c.call(ctx, http.MethodGet, "getExchangeRates", nil, nil, &rates); err != nil {
		return nil, err
	}
	return rates, nil
}

// CreateInvoiceParams carries the createInvoice request fields.
type CreateInvoiceParams struct {
	Asset         models.Asset
	Amount        string
	Description   string
	HiddenMessage string
	ExpiresIn     int
}

type createInvoiceRequest struct {
	Asset          string `json:"asset"`
	Amount         string `json:"amount"`
	Description    string `json:"description,omitempty"`
	HiddenMessage  string `json:"hidden_message,omitempty"`
	ExpiresIn      int    `json:"expires_in,omitempty"`
	AllowComments  bool   `json:"allow_comments"`
	AllowAnonymous bool   `json:"allow_anonymous"`
}

// CreateInvoice asks the provider for a new payment invoice.
func (c *Client) CreateInvoice(ctx context.Context, params CreateInvoiceParams) (*models.ProviderInvoice, error) {
	req := createInvoiceRequest{
		Asset:          string(params.Asset),
		Amount:         params.Amount,
		Description:    params.Description,
		HiddenMessage:  params.HiddenMessage,
		ExpiresIn:      params.ExpiresIn,
		AllowComments:  false,
		AllowAnonymous: false,
	}

	var invoice models.ProviderInvoice
	if err := c.call(ctx, http.MethodPost, "createInvoice", nil, req, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

type invoicePage struct {
	Items []models.ProviderInvoice `json:"items"`
}

// GetInvoices returns one page of provider invoices, optionally filtered by
// provider status ("active", "paid", "expired").
func (c *Client) GetInvoices(ctx context.Context, status string, offset, count int) ([]models.ProviderInvoice, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	query.Set("offset", strconv.Itoa(offset))
	query.Set("count", strconv.Itoa(count))

	var page invoicePage
	if err := c.call(ctx, http.MethodGet, "getInvoices", query, nil, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}
