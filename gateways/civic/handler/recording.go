package handler

import (
	stdjson "encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/citywatch/backend/pkg/json"
	"github.com/citywatch/backend/services/report/consts"
	"github.com/citywatch/backend/services/report/usecase"
)

type recordingControl struct {
	Op string `json:"op"`
}

type recordingResult struct {
	Transcript  string `json:"transcript,omitempty"`
	Description string `json:"description,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Recording upgrades the connection and streams audio fragments into the
// draft's recording session. Binary messages are fragments; the text message
// {"op":"stop"} finalizes the recording and answers with the transcript.
// Any other disconnect aborts the session and discards the audio.
func (h *Handler) Recording(w http.ResponseWriter, r *http.Request) {
	draftID, err := h.draftID(r)
	if err != nil {
		json.WriteError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.usecase.StartRecording(r.Context(), draftID); err != nil {
		h.writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.usecase.AbortRecording(r.Context(), draftID)
		h.log.Warn("websocket upgrade failed",
			slog.String("draft_id", draftID.String()),
			slog.String("error", err.Error()))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(int64(consts.MaxAudioSize))

	log := h.log.With(slog.String("draft_id", draftID.String()))
	log.Info("recording started")

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			log.Warn("recording connection lost, discarding audio",
				slog.String("error", err.Error()))
			h.usecase.AbortRecording(r.Context(), draftID)
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if err := h.usecase.AppendFragment(r.Context(), draftID, data); err != nil {
				log.Error("failed to append fragment", slog.String("error", err.Error()))
				conn.WriteJSON(recordingResult{Error: err.Error()})
				h.usecase.AbortRecording(r.Context(), draftID)
				return
			}

		case websocket.TextMessage:
			var ctrl recordingControl
			if err := stdjson.Unmarshal(data, &ctrl); err != nil || ctrl.Op != "stop" {
				log.Warn("unexpected control message", slog.String("payload", string(data)))
				continue
			}

			transcript, err := h.usecase.StopRecording(r.Context(), draftID)
			if err != nil {
				if errors.Is(err, usecase.ErrNoRecording) {
					conn.WriteJSON(recordingResult{Error: err.Error()})
					return
				}
				log.Error("failed to finalize recording", slog.String("error", err.Error()))
				conn.WriteJSON(recordingResult{Error: err.Error()})
				return
			}

			draft, err := h.usecase.GetDraft(r.Context(), draftID)
			result := recordingResult{Transcript: transcript}
			if err == nil {
				result.Description = draft.Description()
			}
			log.Info("recording transcribed", slog.Int("transcript_length", len(transcript)))
			conn.WriteJSON(result)
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
