package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	config "github.com/citywatch/backend/config/civic"
	"github.com/citywatch/backend/pkg/json"
	"github.com/citywatch/backend/services/report/consts"
	"github.com/citywatch/backend/services/report/entity"
	"github.com/citywatch/backend/services/report/storage"
	"github.com/citywatch/backend/services/report/usecase"
)

type Handler struct {
	usecase  usecase.Usecase
	cfg      *config.Config
	log      *slog.Logger
	validate *validator.Validate
	upgrader websocket.Upgrader
}

func New(uc usecase.Usecase, cfg *config.Config, log *slog.Logger) *Handler {
	return &Handler{
		usecase:  uc,
		cfg:      cfg,
		log:      log,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/drafts", h.CreateDraft)
	r.Route("/drafts/{draftID}", func(r chi.Router) {
		r.Get("/", h.GetDraft)
		r.Put("/description", h.SetDescription)
		r.Post("/images", h.AttachImage)
		r.Delete("/images/{imageID}", h.RemoveImage)
		r.Get("/recording", h.Recording)
		r.Post("/submit", h.Submit)
		r.Post("/confirm", h.Confirm)
		r.Post("/reset", h.Reset)
	})
}

type descriptionRequest struct {
	Description string `json:"description"`
}

type submitRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
}

type imageResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
}

type draftResponse struct {
	ID           string             `json:"id"`
	State        entity.State       `json:"state"`
	Description  string             `json:"description"`
	Address      string             `json:"address,omitempty"`
	Images       []imageResponse    `json:"images"`
	Steps        []entity.Step      `json:"steps,omitempty"`
	Result       *entity.Evaluation `json:"result,omitempty"`
	Confirmation string             `json:"confirmation,omitempty"`
}

func draftToResponse(d *entity.Draft) draftResponse {
	images := make([]imageResponse, 0)
	for _, img := range d.Images() {
		images = append(images, imageResponse{
			ID:          img.ID.String(),
			Name:        img.Name,
			ContentType: img.ContentType,
		})
	}
	return draftResponse{
		ID:           d.ID.String(),
		State:        d.State(),
		Description:  d.Description(),
		Address:      d.Address(),
		Images:       images,
		Steps:        d.Steps(),
		Result:       d.Result(),
		Confirmation: d.Confirmation(),
	}
}

func (h *Handler) CreateDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := h.usecase.CreateDraft(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusCreated, draftToResponse(draft))
}

func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	id, err := h.draftID(r)
	if err != nil {
		json.WriteError(w, http.StatusBadRequest, err)
		return
	}
	draft, err := h.usecase.GetDraft(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, draftToResponse(draft))
}

func (h *Handler) SetDescription(w http.ResponseWriter, r *http.Request) {
	id, err := h.draftID(r)
	if err != nil {
		json.WriteError(w, http.StatusBadRequest, err)
		return
	}
	var req descriptionRequest
	if err := json.ParseJSON(r, &req); err != nil {
		json.WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := h.usecase.SetDescription(r.Context(), id, req.Description); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AttachImage(w http.ResponseWriter, r *http.Request) {
	id, err := h.draftID(r)
	if err != nil {
		json.WriteError(w, http.StatusBadRequest, err)
		return
	}

	if err := r.ParseMultipartForm(int64(consts.MaxImageSize)); err != nil {
		json.WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid multipart form: %w", err))
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		json.WriteError(w, http.StatusBadRequest, fmt.Errorf("missing image file: %w", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, int64(consts.MaxImageSize)+1))
	if err != nil {
		json.WriteError(w, http.StatusBadRequest, fmt.Errorf("failed to read image: %w", err))
		return
	}
	if len(data) > consts.MaxImageSize {
		json.WriteError(w, http.StatusRequestEntityTooLarge,
			fmt.Errorf("image exceeds %d bytes", consts.MaxImageSize))
		return
	}

	img, err := h.usecase.AttachImage(r.Context(), id, header.Filename,
		header.Header.Get("Content-Type"), data)
	if err != nil {
		if errors.Is(err, storage.ErrDraftNotFound) {
			h.writeError(w, err)
			return
		}
		json.WriteError(w, http.StatusBadRequest, err)
		return
	}
	json.WriteJSON(w, http.StatusCreated, imageResponse{
		ID:          img.ID.String(),
		Name:        img.Name,
		ContentType: img.ContentType,
	})
}

func (h *Handler) RemoveImage(w http.ResponseWriter, r *http.Request) {
	draftID, err := h.draftID(r)
	if err != nil {
		json.WriteError(w, http.StatusBadRequest, err)
		return
	}
	imageID, err := uuid.Parse(chi.URLParam(r, "imageID"))
	if err != nil {
		json.WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid image id"))
		return
	}
	if err := h.usecase.RemoveImage(r.Context(), draftID, imageID); err != nil {
		if errors.Is(err, storage.ErrDraftNotFound) {
			h.writeError(w, err)
			return
		}
		json.WriteError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	id, err := h.draftID(r)
	if err != nil {
		json.WriteError(w, http.StatusBadRequest, err)
		return
	}
	var req submitRequest
	if err := json.ParseJSON(r, &req); err != nil {
		json.WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	// Coordinates are optional at the transport level: a submit without them
	// still runs so the attempt fails visibly through the step markers.
	if req.Latitude != nil || req.Longitude != nil {
		if err := h.validate.Struct(req); err != nil {
			json.WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid coordinates: %w", err))
			return
		}
	}

	draft, err := h.usecase.Submit(r.Context(), id, req.Latitude, req.Longitude)
	if err != nil {
		if draft != nil && (errors.Is(err, usecase.ErrNoLocation) || isEvaluationError(err)) {
			// The draft carries the error step markers; return it alongside
			// the failure so the caller can render both.
			json.WriteJSON(w, statusFor(err), struct {
				draftResponse
				Error string `json:"error"`
			}{draftToResponse(draft), err.Error()})
			return
		}
		h.writeError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, draftToResponse(draft))
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, err := h.draftID(r)
	if err != nil {
		json.WriteError(w, http.StatusBadRequest, err)
		return
	}
	draft, err := h.usecase.Confirm(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, draftToResponse(draft))
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	id, err := h.draftID(r)
	if err != nil {
		json.WriteError(w, http.StatusBadRequest, err)
		return
	}
	draft, err := h.usecase.Reset(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, draftToResponse(draft))
}

func (h *Handler) draftID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "draftID"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid draft id")
	}
	return id, nil
}

func isEvaluationError(err error) bool {
	return err != nil && !errors.Is(err, usecase.ErrSubmitInFlight) &&
		!errors.Is(err, storage.ErrDraftNotFound)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrDraftNotFound):
		return http.StatusNotFound
	case errors.Is(err, usecase.ErrNoLocation):
		return http.StatusBadRequest
	case errors.Is(err, usecase.ErrSubmitInFlight),
		errors.Is(err, usecase.ErrRecordingActive),
		errors.Is(err, usecase.ErrNotAwaitingConfirmation):
		return http.StatusConflict
	case errors.Is(err, usecase.ErrNoRecording):
		return http.StatusBadRequest
	case errors.Is(err, usecase.ErrUnknownSeverity):
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", slog.String("error", err.Error()))
	}
	json.WriteError(w, status, err)
}
