package dispatch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	config "github.com/citywatch/backend/config/civic"
	"github.com/citywatch/backend/services/report/entity"
)

// Client sends confirmed reports downstream. The two channels deliberately
// take different shapes: the emergency endpoint accepts JSON with a single
// base64 image, the civic (311) endpoint accepts multipart with every
// attached image.
type Client struct {
	emergencyURL string
	civicURL     string
	httpClient   *http.Client
	log          *slog.Logger
}

type emergencyRequest struct {
	ReportData json.RawMessage `json:"report_data"`
	Image      string          `json:"image,omitempty"`
}

type receiptResponse struct {
	ReceiptID string `json:"receipt_id"`
	Message   string `json:"message"`
}

func New(cfg *config.DispatchConfig, log *slog.Logger) *Client {
	return &Client{
		emergencyURL: cfg.EmergencyUrl,
		civicURL:     cfg.CivicUrl,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: log,
	}
}

// DispatchEmergency posts the stored report payload to the 911 channel.
func (c *Client) DispatchEmergency(ctx context.Context, report *entity.Evaluation, image *entity.Image) (string, error) {
	body := emergencyRequest{ReportData: report.ReportData}
	if image != nil && image.Bytes() != nil {
		body.Image = base64.StdEncoding.EncodeToString(image.Bytes())
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.emergencyURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	receipt, err := c.do(req)
	if err != nil {
		return "", err
	}
	c.log.Info("emergency report dispatched", slog.String("receipt", receipt))
	return receipt, nil
}

// DispatchCivic posts the stored report payload and every attached image to
// the 311 channel.
func (c *Client) DispatchCivic(ctx context.Context, report *entity.Evaluation, images []*entity.Image) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("report_data", string(report.ReportData)); err != nil {
		return "", fmt.Errorf("failed to write form field: %w", err)
	}
	for _, img := range images {
		data := img.Bytes()
		if data == nil {
			continue
		}
		part, err := writer.CreateFormFile("images", img.Name)
		if err != nil {
			return "", fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := part.Write(data); err != nil {
			return "", fmt.Errorf("failed to write image data: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.civicURL, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	receipt, err := c.do(req)
	if err != nil {
		return "", err
	}
	c.log.Info("civic report dispatched",
		slog.String("receipt", receipt),
		slog.Int("images", len(images)))
	return receipt, nil
}

func (c *Client) do(req *http.Request) (string, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("dispatch request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("dispatch failed with status %d: %s", resp.StatusCode, body)
	}

	var parsed receiptResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode receipt: %w", err)
	}
	if parsed.ReceiptID == "" {
		return parsed.Message, nil
	}
	return parsed.ReceiptID, nil
}
