package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/citywatch/backend/pkg/audio"
)

// StartRecording opens a capture session for the draft. Start and stop are a
// mutually exclusive toggle: a second start while one is active is rejected.
func (u *usecase) StartRecording(ctx context.Context, draftID uuid.UUID) error {
	if _, err := u.storage.GetDraft(ctx, draftID); err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if _, active := u.recordings[draftID]; active {
		return ErrRecordingActive
	}
	u.recordings[draftID] = audio.NewSession()
	u.log.Info("recording started", slog.String("draft_id", draftID.String()))
	return nil
}

// AppendFragment buffers one audio fragment in arrival order.
func (u *usecase) AppendFragment(ctx context.Context, draftID uuid.UUID, fragment []byte) error {
	u.mu.Lock()
	session, active := u.recordings[draftID]
	u.mu.Unlock()
	if !active {
		return ErrNoRecording
	}
	return session.Append(fragment)
}

// StopRecording finalizes the session, re-encodes the recording as canonical
// 16-bit PCM WAV and sends it for transcription. The transcribed text is
// appended to the draft description, never replacing prior text. The session
// is torn down on every path, success or failure.
func (u *usecase) StopRecording(ctx context.Context, draftID uuid.UUID) (string, error) {
	u.mu.Lock()
	session, active := u.recordings[draftID]
	delete(u.recordings, draftID)
	u.mu.Unlock()
	if !active {
		return "", ErrNoRecording
	}

	blob := session.Stop()
	u.log.Info("recording stopped",
		slog.String("draft_id", draftID.String()),
		slog.Int("bytes", len(blob)))

	pcm, err := audio.Decode(blob)
	if err != nil {
		return "", fmt.Errorf("decode recording: %w", err)
	}
	wav, err := pcm.Encode()
	if err != nil {
		return "", fmt.Errorf("encode recording: %w", err)
	}

	text, err := u.transcriber.Transcribe(ctx, wav)
	if err != nil {
		// Non-fatal to the report: only the voice-to-text convenience is lost.
		return "", fmt.Errorf("transcription failed: %w", err)
	}

	draft, err := u.storage.GetDraft(ctx, draftID)
	if err != nil {
		return "", err
	}
	draft.AppendDescription(text)
	u.log.Info("transcript appended",
		slog.String("draft_id", draftID.String()),
		slog.Int("length", len(text)))
	return text, nil
}

// AbortRecording discards an in-flight session without transcribing, for
// connection drops and workflow resets. No-op when nothing is active.
func (u *usecase) AbortRecording(ctx context.Context, draftID uuid.UUID) {
	u.mu.Lock()
	session, active := u.recordings[draftID]
	delete(u.recordings, draftID)
	u.mu.Unlock()
	if !active {
		return
	}
	session.Stop()
	u.log.Info("recording aborted", slog.String("draft_id", draftID.String()))
}
