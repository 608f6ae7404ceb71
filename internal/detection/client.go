package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"peerprep/interview/internal/models"
)

const (
	DefaultTimeout = 5 * time.Second
	base64Path     = "/detect-cheating-base64"
)

var tracer = otel.Tracer("peerprep/interview/detection")

// Client calls the object-detection service, which classifies a single
// frame and reports whether a phone is visible.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type detectRequest struct {
	Image string `json:"image"`
}

type errorBody struct {
	Detail string `json:"detail"`
}

func (c *Client) Detect(ctx context.Context, imageBase64 string) (*models.DetectionResult, error) {
	ctx, span := tracer.Start(ctx, "detection.Detect")
	defer span.End()

	res, err := c.detect(ctx, imageBase64)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("detection.phone", res.PhoneDetected),
		attribute.Float64("detection.confidence", res.Confidence),
	)
	return res, nil
}

func (c *Client) detect(ctx context.Context, imageBase64 string) (*models.DetectionResult, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: detector url not configured", models.ErrDependencyUnavailable)
	}
	body, err := json.Marshal(detectRequest{Image: imageBase64})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+base64Path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrDependencyUnavailable, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		var eb errorBody
		_ = json.Unmarshal(data, &eb)
		reason := eb.Detail
		if reason == "" {
			reason = "image rejected by detector"
		}
		return nil, models.NewValidationError("image", reason)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: detector returned status %d", models.ErrDependencyUnavailable, resp.StatusCode)
	}

	var out models.DetectionResult
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: malformed detector response: %v", models.ErrDependencyUnavailable, err)
	}
	if out.DetectedObjects == nil {
		out.DetectedObjects = []string{}
	}
	return &out, nil
}

// Ping reports whether the detector answers at all. Used by the readiness check.
func (c *Client) Ping(ctx context.Context) error {
	if c.baseURL == "" {
		return errors.New("detector url not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("detector returned status %d", resp.StatusCode)
	}
	return nil
}
