package dispatch

import (
	"context"
	"encoding/base64"
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

func newClient(emergencyURL, civicURL string) *Client {
	return New(&config.DispatchConfig{
		EmergencyUrl: emergencyURL,
		CivicUrl:     civicURL,
		Timeout:      time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func verdict() *entity.Evaluation {
	return &entity.Evaluation{
		Level:      "EMERGENCY",
		Trigger:    "911",
		ReportData: json.RawMessage(`{"service_code":"fire"}`),
	}
}

func TestDispatchEmergency(t *testing.T) {
	img := entity.NewImage(uuid.New(), "scene.jpg", "image/jpeg", []byte{9, 9, 9})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body struct {
			ReportData json.RawMessage `json:"report_data"`
			Image      string          `json:"image"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.JSONEq(t, `{"service_code":"fire"}`, string(body.ReportData))
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{9, 9, 9}), body.Image)

		w.Write([]byte(`{"receipt_id":"E-42"}`))
	}))
	defer srv.Close()

	receipt, err := newClient(srv.URL, "").DispatchEmergency(context.Background(), verdict(), img)
	require.NoError(t, err)
	assert.Equal(t, "E-42", receipt)
}

func TestDispatchEmergencyWithoutImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotContains(t, body, "image")
		w.Write([]byte(`{"receipt_id":"E-1"}`))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, "").DispatchEmergency(context.Background(), verdict(), nil)
	require.NoError(t, err)
}

func TestDispatchCivic(t *testing.T) {
	images := []*entity.Image{
		entity.NewImage(uuid.New(), "a.jpg", "image/jpeg", []byte{1}),
		entity.NewImage(uuid.New(), "b.jpg", "image/jpeg", []byte{2}),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.JSONEq(t, `{"service_code":"fire"}`, r.FormValue("report_data"))
		require.Len(t, r.MultipartForm.File["images"], 2)
		assert.Equal(t, "a.jpg", r.MultipartForm.File["images"][0].Filename)
		assert.Equal(t, "b.jpg", r.MultipartForm.File["images"][1].Filename)

		w.Write([]byte(`{"receipt_id":"C-7","message":"accepted"}`))
	}))
	defer srv.Close()

	receipt, err := newClient("", srv.URL).DispatchCivic(context.Background(), verdict(), images)
	require.NoError(t, err)
	assert.Equal(t, "C-7", receipt)
}

func TestDispatchCivicSkipsReleasedImages(t *testing.T) {
	released := entity.NewImage(uuid.New(), "gone.jpg", "image/jpeg", []byte{1})
	require.NoError(t, released.Release())
	kept := entity.NewImage(uuid.New(), "kept.jpg", "image/jpeg", []byte{2})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Len(t, r.MultipartForm.File["images"], 1)
		assert.Equal(t, "kept.jpg", r.MultipartForm.File["images"][0].Filename)
		w.Write([]byte(`{"receipt_id":"C-1"}`))
	}))
	defer srv.Close()

	_, err := newClient("", srv.URL).DispatchCivic(context.Background(), verdict(),
		[]*entity.Image{released, kept})
	require.NoError(t, err)
}

func TestDispatchMessageFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"queued"}`))
	}))
	defer srv.Close()

	receipt, err := newClient(srv.URL, "").DispatchEmergency(context.Background(), verdict(), nil)
	require.NoError(t, err)
	assert.Equal(t, "queued", receipt)
}

func TestDispatchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rejected", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, srv.URL).DispatchEmergency(context.Background(), verdict(), nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}
