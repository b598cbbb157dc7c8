package evaluation

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/citywatch/backend/config/civic"
	"github.com/citywatch/backend/services/report/entity"
)

func newClient(url string) *Client {
	return New(&config.EvaluationConfig{Url: url, Timeout: time.Second},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

const verdict = `{
	"level": "NON_EMERGENCY",
	"confidence": 0.9,
	"reasoning": "property damage, no immediate danger",
	"recommended_action": "file a 311 report",
	"trigger": "311",
	"report_data": {"service_code": "graffiti"}
}`

func TestEvaluateTextOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/evaluate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "graffiti on the wall", body["text"])
		assert.Equal(t, "Main St", body["location"])

		w.Write([]byte(verdict))
	}))
	defer srv.Close()

	result, err := newClient(srv.URL).Evaluate(context.Background(), &entity.EvaluateRequest{
		Text:     "graffiti on the wall",
		Location: "Main St",
	})
	require.NoError(t, err)
	assert.Equal(t, "NON_EMERGENCY", result.Level)
	assert.Equal(t, "311", result.Trigger)
	assert.JSONEq(t, `{"service_code":"graffiti"}`, string(result.ReportData))
}

func TestEvaluateWithImage(t *testing.T) {
	img := entity.NewImage(uuid.New(), "wall.jpg", "image/jpeg", []byte{0xFF, 0xD8, 0xFF})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/evaluate-with-image", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "graffiti on the wall", r.FormValue("text"))
		assert.Equal(t, "Main St", r.FormValue("location"))

		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "wall.jpg", header.Filename)

		got, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, []byte{0xFF, 0xD8, 0xFF}, got)

		w.Write([]byte(verdict))
	}))
	defer srv.Close()

	result, err := newClient(srv.URL).Evaluate(context.Background(), &entity.EvaluateRequest{
		Text:     "graffiti on the wall",
		Location: "Main St",
		Image:    img,
	})
	require.NoError(t, err)
	assert.Equal(t, "NON_EMERGENCY", result.Level)
}

func TestEvaluateReleasedImageFallsBackToJSON(t *testing.T) {
	img := entity.NewImage(uuid.New(), "wall.jpg", "image/jpeg", []byte{1})
	require.NoError(t, img.Release())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/evaluate", r.URL.Path)
		w.Write([]byte(verdict))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).Evaluate(context.Background(), &entity.EvaluateRequest{
		Text:  "graffiti",
		Image: img,
	})
	require.NoError(t, err)
}

func TestEvaluateMissingLevel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"confidence": 0.5}`))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).Evaluate(context.Background(), &entity.EvaluateRequest{Text: "x"})
	assert.Error(t, err)
}

func TestEvaluateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).Evaluate(context.Background(), &entity.EvaluateRequest{Text: "x"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
