package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sabbir-lite-0/repolens/utils"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/models/"

// Client issues single generateContent calls against the Gemini REST API.
// It is stateless: the credential is supplied per call, which is what lets
// the dispatcher walk a key pool without rebuilding clients.
type Client struct {
	model          string
	baseURL        string
	httpClient     *utils.HTTPClient
	logger         *utils.Logger
	temperature    float64
	maxTokens      int
	requestTimeout time.Duration
}

type ClientOptions struct {
	Model           string
	BaseURL         string
	Temperature     float64
	MaxOutputTokens int
	RequestTimeout  time.Duration
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []candidate    `json:"candidates"`
	Error      *errorResponse `json:"error,omitempty"`
}

type candidate struct {
	Content content `json:"content"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func NewClient(opts ClientOptions, logger *utils.Logger) *Client {
	if opts.Model == "" {
		opts.Model = "gemini-2.0-flash"
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.3
	}
	if opts.MaxOutputTokens == 0 {
		opts.MaxOutputTokens = 4096
	}
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = 45 * time.Second
	}

	return &Client{
		model:          opts.Model,
		baseURL:        opts.BaseURL,
		httpClient:     utils.NewHTTPClient(int(opts.RequestTimeout/time.Second) + 5),
		logger:         logger,
		temperature:    opts.Temperature,
		maxTokens:      opts.MaxOutputTokens,
		requestTimeout: opts.RequestTimeout,
	}
}

// Generate performs exactly one model call with the given credential and
// returns the response text or an *APIError. Retry and key selection are
// the caller's business.
func (c *Client) Generate(ctx context.Context, prompt, credential string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s%s:generateContent?key=%s", c.baseURL, c.model, url.QueryEscape(credential))

	requestBody := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     c.temperature,
			MaxOutputTokens: c.maxTokens,
		},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return "", &APIError{Kind: ErrUnknown, Err: err}
	}

	resp, err := c.httpClient.PostJSON(callCtx, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return "", classifyTransportError(callCtx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", classifyTransportError(callCtx, err)
	}

	var response generateResponse
	if err := json.Unmarshal(body, &response); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", classifyStatus(resp.StatusCode, "", http.StatusText(resp.StatusCode))
		}
		return "", &APIError{Kind: ErrUnknown, StatusCode: resp.StatusCode, Err: err}
	}

	if response.Error != nil {
		return "", classifyStatus(response.Error.Code, response.Error.Status, response.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode, "", http.StatusText(resp.StatusCode))
	}

	text := extractText(response)
	if strings.TrimSpace(text) == "" {
		return "", &APIError{Kind: ErrEmptyResponse, Message: "model returned no text"}
	}

	return text, nil
}

func extractText(response generateResponse) string {
	var builder strings.Builder
	for _, cand := range response.Candidates {
		for _, p := range cand.Content.Parts {
			builder.WriteString(p.Text)
		}
	}
	return builder.String()
}

func classifyTransportError(ctx context.Context, err error) *APIError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &APIError{Kind: ErrTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &APIError{Kind: ErrTimeout, Err: err}
	}
	return &APIError{Kind: ErrNetwork, Err: err}
}

// classifyStatus maps an HTTP/API status onto the error taxonomy. Status
// strings follow google.rpc.Code names.
func classifyStatus(code int, status, message string) *APIError {
	apiErr := &APIError{StatusCode: code, Message: message}

	switch status {
	case "UNAUTHENTICATED", "PERMISSION_DENIED":
		apiErr.Kind = ErrInvalidCredential
		return apiErr
	case "RESOURCE_EXHAUSTED":
		apiErr.Kind = ErrQuotaExceeded
		return apiErr
	case "UNAVAILABLE":
		apiErr.Kind = ErrServiceOverloaded
		return apiErr
	}

	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		apiErr.Kind = ErrInvalidCredential
	case http.StatusBadRequest:
		// Invalid keys come back as INVALID_ARGUMENT on this API.
		if strings.Contains(strings.ToLower(message), "api key") {
			apiErr.Kind = ErrInvalidCredential
		} else {
			apiErr.Kind = ErrUnknown
		}
	case http.StatusTooManyRequests:
		apiErr.Kind = ErrQuotaExceeded
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		apiErr.Kind = ErrServiceOverloaded
	default:
		apiErr.Kind = ErrUnknown
	}
	return apiErr
}
