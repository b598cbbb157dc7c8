package evaluation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	config "github.com/citywatch/backend/config/civic"
	"github.com/citywatch/backend/services/report/entity"
)

// Client calls the remote classification service. Text-only drafts go to the
// plain JSON endpoint; drafts with a representative image go to the multipart
// endpoint, matching the two routes the service exposes.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

type evaluateRequest struct {
	Text     string `json:"text"`
	Location string `json:"location,omitempty"`
}

func New(cfg *config.EvaluationConfig, log *slog.Logger) *Client {
	return &Client{
		baseURL: cfg.Url,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: log,
	}
}

// Evaluate classifies the draft and returns the severity verdict together
// with the opaque report payload echoed back on confirm.
func (c *Client) Evaluate(ctx context.Context, req *entity.EvaluateRequest) (*entity.Evaluation, error) {
	var (
		httpReq *http.Request
		err     error
	)
	if req.Image != nil && req.Image.Bytes() != nil {
		httpReq, err = c.multipartRequest(ctx, req)
	} else {
		httpReq, err = c.jsonRequest(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("evaluation request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("evaluation failed with status %d: %s", resp.StatusCode, body)
	}

	var result entity.Evaluation
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode evaluation response: %w", err)
	}
	if result.Level == "" {
		return nil, fmt.Errorf("evaluation response has no severity level")
	}

	c.log.Info("draft evaluated by remote service",
		slog.String("level", result.Level),
		slog.Float64("confidence", result.Confidence),
		slog.String("trigger", result.Trigger))
	return &result, nil
}

func (c *Client) jsonRequest(ctx context.Context, req *entity.EvaluateRequest) (*http.Request, error) {
	payload, err := json.Marshal(evaluateRequest{
		Text:     req.Text,
		Location: req.Location,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/evaluate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

func (c *Client) multipartRequest(ctx context.Context, req *entity.EvaluateRequest) (*http.Request, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("text", req.Text); err != nil {
		return nil, fmt.Errorf("failed to write form field: %w", err)
	}
	if req.Location != "" {
		if err := writer.WriteField("location", req.Location); err != nil {
			return nil, fmt.Errorf("failed to write form field: %w", err)
		}
	}

	part, err := writer.CreateFormFile("image", req.Image.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(req.Image.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/evaluate-with-image", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	return httpReq, nil
}
