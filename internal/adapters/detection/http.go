package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/okian/smileboard/internal/domain/model"
	"github.com/okian/smileboard/pkg/logger"
)

// Endpoint paths on the detection service.
const (
	DetectPath = "/api/detect"
	HealthPath = "/health"
)

// Default timeouts for HTTP operations.
const (
	DefaultTimeout         = 10 * time.Second
	DefaultConnectTimeout  = 5 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
)

// maxErrorBody bounds how much of a failed response is read.
const maxErrorBody = 4 << 10

// NewHTTPTransportClient creates an HTTP client with connection pooling and the given timeout.
func NewHTTPTransportClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DefaultConnectTimeout,
				KeepAlive: DefaultKeepAlive,
			}).DialContext,
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       DefaultIdleConnTimeout,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// HTTPClient posts images to the detection service.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	log     logger.Logger
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) {
		if c != nil {
			h.client = c
		}
	}
}

// WithTimeout sets the overall request timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(h *HTTPClient) {
		if d > 0 {
			h.client = NewHTTPTransportClient(d)
		}
	}
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(l logger.Logger) HTTPOption {
	return func(h *HTTPClient) {
		if l != nil {
			h.log = l
		}
	}
}

// NewHTTPClient creates a client for the service rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	h := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  NewHTTPTransportClient(DefaultTimeout),
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Detect uploads req.Image as multipart part "image" with field "user_id".
func (h *HTTPClient) Detect(ctx context.Context, req model.DetectionRequest) (model.DetectionResult, error) {
	body, contentType, err := multipartBody(req)
	if err != nil {
		return model.DetectionResult{}, serviceError("build request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+DetectPath, body)
	if err != nil {
		return model.DetectionResult{}, serviceError("build request", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if req.ID != "" {
		httpReq.Header.Set("X-Request-ID", req.ID)
	}

	start := time.Now()
	resp, err := h.client.Do(httpReq)
	if err != nil {
		return model.DetectionResult{}, serviceError("post", err)
	}
	defer resp.Body.Close()

	h.log.Debug(ctx, "detect response",
		logger.String("request_id", req.ID),
		logger.Int("status", resp.StatusCode),
		logger.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.DetectionResult{}, serviceError("post", readAPIError(resp))
	}

	var wire wireResult
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return model.DetectionResult{}, serviceError("decode", err)
	}
	if wire.Error != "" {
		return model.DetectionResult{}, serviceError("detect", &APIError{StatusCode: resp.StatusCode, Message: wire.Error})
	}
	return wire.DetectionResult, nil
}

// Health returns nil when GET /health answers 2xx.
func (h *HTTPClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+HealthPath, nil)
	if err != nil {
		return serviceError("health", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return serviceError("health", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return serviceError("health", readAPIError(resp))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func multipartBody(req model.DetectionRequest) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("user_id", req.UserID); err != nil {
		return nil, "", err
	}
	if req.ID != "" {
		if err := mw.WriteField("request_id", req.ID); err != nil {
			return nil, "", err
		}
	}

	name := req.Image.Name
	if name == "" {
		name = "frame.jpg"
	}
	ct := req.Image.ContentType
	if ct == "" {
		ct = ContentTypeJPEG
	}
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, name))
	hdr.Set("Content-Type", ct)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.Image.Data); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func readAPIError(resp *http.Response) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(raw))

	var body struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(raw, &body) == nil {
		switch {
		case body.Error != "":
			msg = body.Error
		case body.Detail != "":
			msg = body.Detail
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
