package detect

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiDetector asks a Gemini model to classify the sign in a still.
// The answer is restricted to the configured labels.
type GeminiDetector struct {
	c      *genai.Client
	model  string
	labels  map[string]string
	ids     []string
	timeout time.Duration
}

// NewGeminiDetector creates a detector. labels maps class id to display name.
// A zero timeout uses DefaultTimeout.
func NewGeminiDetector(ctx context.Context, apiKey, model string, labels map[string]string, timeout time.Duration) (*GeminiDetector, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	tr := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}
	cl, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Transport: tr},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}

	ids := make([]string, 0, len(labels))
	for id := range labels {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return &GeminiDetector{c: cl, model: model, labels: labels, ids: ids, timeout: timeout}, nil
}

type geminiAnswer struct {
	Detections []struct {
		ClassID    string  `json:"class_id"`
		Confidence float64 `json:"confidence"`
		X1         float64 `json:"x1"`
		Y1         float64 `json:"y1"`
		X2         float64 `json:"x2"`
		Y2         float64 `json:"y2"`
	} `json:"detections"`
}

// Detect sends the still with a response schema limited to the known class ids.
// Retries share one deadline; exceeding it returns ErrTimeout.
func (g *GeminiDetector) Detect(ctx context.Context, jpeg []byte, threshold float64) (*Result, error) {
	timeout := g.timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	parts := []*genai.Part{
		{Text: g.prompt()},
		{InlineData: &genai.Blob{Data: jpeg, MIMEType: "image/jpeg"}},
	}

	temp := float32(0)
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"detections": {
					Type: genai.TypeArray,
					Items: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"class_id":   {Type: genai.TypeString, Enum: g.ids},
							"confidence": {Type: genai.TypeNumber},
							"x1":         {Type: genai.TypeNumber},
							"y1":         {Type: genai.TypeNumber},
							"x2":         {Type: genai.TypeNumber},
							"y2":         {Type: genai.TypeNumber},
						},
						Required: []string{"class_id", "confidence"},
					},
				},
			},
			Required: []string{"detections"},
		},
		Temperature: &temp,
	}

	var lastErr error
	for i := 0; i < 2; i++ {
		resp, err := g.c.Models.GenerateContent(ctx, g.model, []*genai.Content{{Parts: parts}}, cfg)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctxErr(ctx)
			}
			lastErr = err
			if retriable(err) {
				select {
				case <-ctx.Done():
					return nil, ctxErr(ctx)
				case <-time.After(time.Duration(300*(i+1)) * time.Millisecond):
				}
				continue
			}
			return nil, fmt.Errorf("gemini: %w", err)
		}
		return g.parse(resp.Text(), threshold)
	}
	return nil, fmt.Errorf("gemini: %w", lastErr)
}

// ctxErr maps a finished context to ErrTimeout or the cancellation error.
func ctxErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ctx.Err()
}

func (g *GeminiDetector) prompt() string {
	var b strings.Builder
	b.WriteString("Identify the sign-language gesture shown by the person in the image. ")
	b.WriteString("Answer only with JSON listing detections with class_id, confidence between 0 and 1, ")
	b.WriteString("and a bounding box x1,y1,x2,y2 in pixels around the hands. Known classes:\n")
	for _, id := range g.ids {
		fmt.Fprintf(&b, "%s: %s\n", id, g.labels[id])
	}
	b.WriteString("Return an empty list if no known sign is visible.")
	return b.String()
}

func (g *GeminiDetector) parse(text string, threshold float64) (*Result, error) {
	var ans geminiAnswer
	if err := json.Unmarshal([]byte(text), &ans); err != nil {
		return nil, fmt.Errorf("gemini: decode answer: %w", err)
	}

	res := &Result{Success: true}
	for _, d := range ans.Detections {
		name, ok := g.labels[d.ClassID]
		if !ok || d.Confidence < threshold {
			continue
		}
		res.Detections = append(res.Detections, Detection{
			ClassID:    ClassID(d.ClassID),
			ClassName:  name,
			Confidence: d.Confidence,
			BBox:       BBox{X1: d.X1, Y1: d.Y1, X2: d.X2, Y2: d.Y2},
		})
	}
	SortDetections(res.Detections)
	res.Count = len(res.Detections)
	return res, nil
}

func retriable(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "unexpected EOF") ||
		strings.Contains(s, "RST_STREAM") ||
		strings.Contains(s, "connection reset")
}
