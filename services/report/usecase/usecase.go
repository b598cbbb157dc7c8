package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/citywatch/backend/pkg/audio"
	"github.com/citywatch/backend/pkg/gen"
	"github.com/citywatch/backend/services/report/consts"
	"github.com/citywatch/backend/services/report/entity"
	"github.com/citywatch/backend/services/report/storage"
)

var (
	// ErrNoLocation means the submit request carried no coordinates. Fatal to
	// the attempt; the user is told to enable location access.
	ErrNoLocation = errors.New("location required: enable location access and retry")

	// ErrSubmitInFlight rejects a second submission while one is outstanding.
	ErrSubmitInFlight = errors.New("submission already in flight")

	// ErrNotAwaitingConfirmation rejects confirm outside the review state.
	ErrNotAwaitingConfirmation = errors.New("draft is not awaiting confirmation")

	// ErrUnknownSeverity is returned when the evaluation service produces a
	// severity outside the three known categories.
	ErrUnknownSeverity = errors.New("evaluation returned an unrecognized severity")

	// ErrRecordingActive rejects a second recording for the same draft.
	ErrRecordingActive = errors.New("a recording is already active for this draft")

	// ErrNoRecording means stop or append arrived with no active recording.
	ErrNoRecording = errors.New("no active recording for this draft")
)

// Geocoder resolves coordinates to a human-readable address. Best effort:
// failures fall back to raw coordinates.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}

// Evaluator classifies a draft into one of the three severity levels.
type Evaluator interface {
	Evaluate(ctx context.Context, req *entity.EvaluateRequest) (*entity.Evaluation, error)
}

// Dispatcher sends a confirmed report to the appropriate downstream channel.
// The two payload shapes deliberately differ: the emergency endpoint takes
// JSON with a single base64 image, the civic endpoint takes multipart with
// every attached image.
type Dispatcher interface {
	DispatchEmergency(ctx context.Context, report *entity.Evaluation, image *entity.Image) (receipt string, err error)
	DispatchCivic(ctx context.Context, report *entity.Evaluation, images []*entity.Image) (receipt string, err error)
}

// Transcriber turns an encoded WAV recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

type Usecase interface {
	CreateDraft(ctx context.Context) (*entity.Draft, error)
	GetDraft(ctx context.Context, id uuid.UUID) (*entity.Draft, error)
	SetDescription(ctx context.Context, id uuid.UUID, text string) error
	AttachImage(ctx context.Context, id uuid.UUID, name, contentType string, data []byte) (*entity.Image, error)
	RemoveImage(ctx context.Context, draftID, imageID uuid.UUID) error

	StartRecording(ctx context.Context, draftID uuid.UUID) error
	AppendFragment(ctx context.Context, draftID uuid.UUID, fragment []byte) error
	StopRecording(ctx context.Context, draftID uuid.UUID) (transcript string, err error)
	AbortRecording(ctx context.Context, draftID uuid.UUID)

	Submit(ctx context.Context, draftID uuid.UUID, lat, lon *float64) (*entity.Draft, error)
	Confirm(ctx context.Context, draftID uuid.UUID) (*entity.Draft, error)
	Reset(ctx context.Context, draftID uuid.UUID) (*entity.Draft, error)
}

type usecase struct {
	storage     storage.Storage
	geocoder    Geocoder
	evaluator   Evaluator
	dispatcher  Dispatcher
	transcriber Transcriber
	uuids       gen.UUIDGenerator
	log         *slog.Logger

	mu         sync.Mutex
	recordings map[uuid.UUID]*audio.Session
}

func New(
	storage storage.Storage,
	geocoder Geocoder,
	evaluator Evaluator,
	dispatcher Dispatcher,
	transcriber Transcriber,
	uuids gen.UUIDGenerator,
	log *slog.Logger,
) Usecase {
	return &usecase{
		storage:     storage,
		geocoder:    geocoder,
		evaluator:   evaluator,
		dispatcher:  dispatcher,
		transcriber: transcriber,
		uuids:       uuids,
		log:         log,
		recordings:  make(map[uuid.UUID]*audio.Session),
	}
}

func (u *usecase) CreateDraft(ctx context.Context) (*entity.Draft, error) {
	draft, err := u.storage.CreateDraft(ctx)
	if err != nil {
		return nil, err
	}
	u.log.Info("draft created", slog.String("draft_id", draft.ID.String()))
	return draft, nil
}

func (u *usecase) GetDraft(ctx context.Context, id uuid.UUID) (*entity.Draft, error) {
	return u.storage.GetDraft(ctx, id)
}

func (u *usecase) SetDescription(ctx context.Context, id uuid.UUID, text string) error {
	draft, err := u.storage.GetDraft(ctx, id)
	if err != nil {
		return err
	}
	draft.SetDescription(text)
	return nil
}

func (u *usecase) AttachImage(ctx context.Context, id uuid.UUID, name, contentType string, data []byte) (*entity.Image, error) {
	draft, err := u.storage.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image payload is empty")
	}
	if len(data) > consts.MaxImageSize {
		return nil, fmt.Errorf("image exceeds %d bytes", consts.MaxImageSize)
	}
	img := entity.NewImage(u.uuids.Next(), name, contentType, data)
	draft.AddImage(img)
	u.log.Info("image attached",
		slog.String("draft_id", id.String()),
		slog.String("image_id", img.ID.String()),
		slog.Int("size", len(data)))
	return img, nil
}

func (u *usecase) RemoveImage(ctx context.Context, draftID, imageID uuid.UUID) error {
	draft, err := u.storage.GetDraft(ctx, draftID)
	if err != nil {
		return err
	}
	if err := draft.RemoveImage(imageID); err != nil {
		return err
	}
	u.log.Info("image removed",
		slog.String("draft_id", draftID.String()),
		slog.String("image_id", imageID.String()))
	return nil
}

// Submit runs the linear submission sequence: locate, evaluate, store result.
// Any fatal failure flips the remaining step markers to error and returns the
// draft to the compose state with all user input intact.
func (u *usecase) Submit(ctx context.Context, draftID uuid.UUID, lat, lon *float64) (*entity.Draft, error) {
	draft, err := u.storage.GetDraft(ctx, draftID)
	if err != nil {
		return nil, err
	}

	release, err := draft.BeginSubmit()
	if err != nil {
		return nil, ErrSubmitInFlight
	}
	defer release()

	if lat == nil || lon == nil {
		u.log.Warn("submit without coordinates", slog.String("draft_id", draftID.String()))
		draft.FailSubmit()
		return draft, ErrNoLocation
	}

	address, err := u.geocoder.Reverse(ctx, *lat, *lon)
	if err != nil {
		// Geocoding is best effort: fall back to raw coordinates.
		u.log.Warn("reverse geocoding failed, using raw coordinates",
			slog.String("draft_id", draftID.String()),
			slog.String("error", err.Error()))
		address = fmt.Sprintf("%.6f, %.6f", *lat, *lon)
	}
	draft.SetLocation(*lat, *lon, address)
	draft.AdvanceStep(0, entity.StateEvaluating)

	result, err := u.evaluator.Evaluate(ctx, &entity.EvaluateRequest{
		Text:     draft.Description(),
		Location: address,
		Image:    draft.FirstImage(),
	})
	if err != nil {
		u.log.Error("evaluation failed",
			slog.String("draft_id", draftID.String()),
			slog.String("error", err.Error()))
		draft.FailSubmit()
		return draft, fmt.Errorf("evaluation failed: %w", err)
	}

	draft.StoreResult(result)
	u.log.Info("draft evaluated",
		slog.String("draft_id", draftID.String()),
		slog.String("level", result.Level),
		slog.Float64("confidence", result.Confidence),
		slog.String("trigger", result.Trigger))
	return draft, nil
}

// Confirm dispatches the stored report to the channel selected by its
// severity. The three categories are exhaustive; anything else fails loudly
// rather than dead-ending silently. A dispatch failure leaves the draft in
// the awaiting state so the action can be safely re-triggered.
func (u *usecase) Confirm(ctx context.Context, draftID uuid.UUID) (*entity.Draft, error) {
	draft, err := u.storage.GetDraft(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if draft.State() != entity.StateAwaitingConfirmation {
		return nil, ErrNotAwaitingConfirmation
	}
	result := draft.Result()
	if result == nil {
		return nil, ErrNotAwaitingConfirmation
	}

	switch result.Level {
	case consts.LevelEmergency:
		receipt, err := u.dispatcher.DispatchEmergency(ctx, result, draft.FirstImage())
		if err != nil {
			u.log.Error("emergency dispatch failed",
				slog.String("draft_id", draftID.String()),
				slog.String("error", err.Error()))
			return draft, fmt.Errorf("emergency dispatch failed: %w", err)
		}
		u.log.Info("report dispatched",
			slog.String("draft_id", draftID.String()),
			slog.String("channel", consts.Trigger911),
			slog.String("receipt", receipt))
		draft.CompleteConfirm(consts.Confirmation911, entity.StateConfirmed)

	case consts.LevelNonEmergency:
		receipt, err := u.dispatcher.DispatchCivic(ctx, result, draft.Images())
		if err != nil {
			u.log.Error("civic dispatch failed",
				slog.String("draft_id", draftID.String()),
				slog.String("error", err.Error()))
			return draft, fmt.Errorf("civic dispatch failed: %w", err)
		}
		u.log.Info("report dispatched",
			slog.String("draft_id", draftID.String()),
			slog.String("channel", consts.Trigger311),
			slog.String("receipt", receipt))
		draft.CompleteConfirm(consts.Confirmation311, entity.StateConfirmed)

	case consts.LevelNoConcern:
		// No downstream call for the no-concern branch: plain close.
		draft.CompleteConfirm(consts.ConfirmationNoConcern, entity.StateClosed)

	default:
		u.log.Error("unrecognized severity",
			slog.String("draft_id", draftID.String()),
			slog.String("level", result.Level))
		return draft, ErrUnknownSeverity
	}

	return draft, nil
}

// Reset closes the workflow, releases every remaining image handle exactly
// once, clears all accumulated input and returns the draft to composing.
func (u *usecase) Reset(ctx context.Context, draftID uuid.UUID) (*entity.Draft, error) {
	draft, err := u.storage.GetDraft(ctx, draftID)
	if err != nil {
		return nil, err
	}
	u.AbortRecording(ctx, draftID)
	draft.Reset()
	u.log.Info("draft reset", slog.String("draft_id", draftID.String()))
	return draft, nil
}
