package detect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds a single detection request.
const DefaultTimeout = 5 * time.Second

type detectRequest struct {
	Image      string  `json:"image"`
	Confidence float64 `json:"confidence"`
}

// Health is the inference service's health report.
type Health struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// Classes is the label set the inference service knows.
type Classes struct {
	Classes map[string]string `json:"classes"`
	Count   int               `json:"count"`
}

// HTTPClient calls a remote inference service over JSON.
type HTTPClient struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	logger  *zap.SugaredLogger
}

// NewHTTPClient creates a client for the service at baseURL. A zero timeout uses DefaultTimeout.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.SugaredLogger) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client:  &http.Client{},
		logger:  logger,
	}
}

// Detect posts the still to /detect.
func (c *HTTPClient) Detect(ctx context.Context, jpeg []byte, threshold float64) (*Result, error) {
	body, err := json.Marshal(detectRequest{
		Image:      base64.StdEncoding.EncodeToString(jpeg),
		Confidence: threshold,
	})
	if err != nil {
		return nil, err
	}

	var res Result
	if err := c.do(ctx, http.MethodPost, "/detect", bytes.NewReader(body), &res); err != nil {
		return nil, err
	}
	if !res.Success {
		return &res, fmt.Errorf("%w: %s", ErrRemote, res.Error)
	}

	SortDetections(res.Detections)
	res.Count = len(res.Detections)
	c.logger.Debugw("detection complete", "count", res.Count)
	return &res, nil
}

// Health queries /health.
func (c *HTTPClient) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Classes queries /classes.
func (c *HTTPClient) Classes(ctx context.Context) (*Classes, error) {
	var cl Classes
	if err := c.do(ctx, http.MethodGet, "/classes", nil, &cl); err != nil {
		return nil, err
	}
	return &cl, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
