package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/citywatch/backend/services/report/consts"
)

// ErrImageReleased reports a second release of the same image handle.
var ErrImageReleased = errors.New("image already released")

type State string

const (
	StateComposing            State = "COMPOSING"
	StateLocating             State = "LOCATING"
	StateEvaluating           State = "EVALUATING"
	StateAwaitingConfirmation State = "AWAITING_CONFIRMATION"
	StateConfirmed            State = "CONFIRMED"
	StateClosed               State = "CLOSED"
)

type StepStatus string

const (
	StepWaiting    StepStatus = "waiting"
	StepProcessing StepStatus = "processing"
	StepCompleted  StepStatus = "completed"
	StepError      StepStatus = "error"
)

// Step is one stage marker in the submission progress indicator.
type Step struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
}

// Evaluation is the classification returned by the evaluation service.
// ReportData is opaque to the gateway; it is echoed back on confirm.
type Evaluation struct {
	Level             string          `json:"level"`
	Confidence        float64         `json:"confidence"`
	Reasoning         string          `json:"reasoning"`
	RecommendedAction string          `json:"recommended_action"`
	Trigger           string          `json:"trigger"`
	ReportData        json.RawMessage `json:"report_data"`
}

// EvaluateRequest is what the workflow hands to the evaluation client.
type EvaluateRequest struct {
	Text     string
	Location string
	Image    *Image // at most one representative image
}

// Image is an in-memory attachment owned exclusively by one draft. Its bytes
// must be released exactly once, either on individual removal or on reset.
type Image struct {
	ID          uuid.UUID
	Name        string
	ContentType string

	mu       sync.Mutex
	data     []byte
	released bool
}

func NewImage(id uuid.UUID, name, contentType string, data []byte) *Image {
	return &Image{
		ID:          id,
		Name:        name,
		ContentType: contentType,
		data:        data,
	}
}

// Bytes returns the image payload, or nil after release.
func (img *Image) Bytes() []byte {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.data
}

// Released reports whether the handle has been released.
func (img *Image) Released() bool {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.released
}

// Release frees the payload. A second call is an error, never a crash.
func (img *Image) Release() error {
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.released {
		return ErrImageReleased
	}
	img.released = true
	img.data = nil
	return nil
}

// Draft is the user's in-progress issue report. All mutation goes through
// methods holding the draft mutex; workflow network calls happen outside it.
type Draft struct {
	ID        uuid.UUID
	CreatedAt time.Time

	mu           sync.Mutex
	state        State
	description  string
	images       []*Image
	latitude     *float64
	longitude    *float64
	address      string
	result       *Evaluation
	steps        []*Step
	confirmation string
	submitting   bool
}

func NewDraft(id uuid.UUID) *Draft {
	return &Draft{
		ID:        id,
		CreatedAt: time.Now(),
		state:     StateComposing,
	}
}

func (d *Draft) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Draft) Description() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.description
}

func (d *Draft) SetDescription(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.description = text
}

// AppendDescription adds transcribed text space-separated after any existing
// text, never replacing it.
func (d *Draft) AppendDescription(text string) {
	if text == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.description == "" {
		d.description = text
		return
	}
	d.description += " " + text
}

func (d *Draft) AddImage(img *Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.images = append(d.images, img)
}

// RemoveImage detaches the image and releases its handle.
func (d *Draft) RemoveImage(imageID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, img := range d.images {
		if img.ID == imageID {
			d.images = append(d.images[:i], d.images[i+1:]...)
			return img.Release()
		}
	}
	return fmt.Errorf("image %s not attached", imageID)
}

func (d *Draft) Images() []*Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Image, len(d.images))
	copy(out, d.images)
	return out
}

// FirstImage returns the representative image for evaluation, or nil.
func (d *Draft) FirstImage() *Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.images) == 0 {
		return nil
	}
	return d.images[0]
}

func (d *Draft) SetLocation(lat, lon float64, address string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.latitude = &lat
	d.longitude = &lon
	d.address = address
}

func (d *Draft) Address() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.address
}

func (d *Draft) Location() (lat, lon *float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latitude, d.longitude
}

func (d *Draft) Result() *Evaluation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.result
}

func (d *Draft) Confirmation() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.confirmation
}

// Steps returns a snapshot of the progress markers.
func (d *Draft) Steps() []Step {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Step, len(d.steps))
	for i, s := range d.steps {
		out[i] = *s
	}
	return out
}

// BeginSubmit guards against a concurrent submission for the same draft and
// initializes the fixed ordered step list with the first step processing.
// The returned release function clears the in-flight flag.
func (d *Draft) BeginSubmit() (release func(), err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.submitting {
		return nil, errors.New("submission already in flight")
	}
	if d.state != StateComposing {
		return nil, fmt.Errorf("cannot submit from state %s", d.state)
	}
	d.submitting = true
	d.confirmation = ""
	d.result = nil
	d.steps = []*Step{
		{Title: consts.StepLocationTitle, Description: consts.StepLocationDescription, Status: StepProcessing},
		{Title: consts.StepEvaluationTitle, Description: consts.StepEvaluationDescription, Status: StepWaiting},
		{Title: consts.StepReviewTitle, Description: consts.StepReviewDescription, Status: StepWaiting},
	}
	d.state = StateLocating
	return func() {
		d.mu.Lock()
		d.submitting = false
		d.mu.Unlock()
	}, nil
}

// AdvanceStep marks step i completed and, when another step follows, flips it
// to processing. Statuses only move forward.
func (d *Draft) AdvanceStep(i int, next State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < len(d.steps) {
		d.steps[i].Status = StepCompleted
	}
	if i+1 < len(d.steps) {
		d.steps[i+1].Status = StepProcessing
	}
	d.state = next
}

// FailSubmit flips every step that has not completed to error and returns the
// draft to the compose state. User text, images and location stay intact.
func (d *Draft) FailSubmit() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.steps {
		if s.Status != StepCompleted {
			s.Status = StepError
		}
	}
	d.state = StateComposing
}

// StoreResult records the evaluation and moves to awaiting confirmation.
func (d *Draft) StoreResult(result *Evaluation) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.result = result
	if len(d.steps) > 1 {
		d.steps[1].Status = StepCompleted
	}
	if len(d.steps) > 2 {
		d.steps[2].Status = StepProcessing
	}
	d.state = StateAwaitingConfirmation
}

// CompleteConfirm records the confirmation message after a successful
// dispatch, or a plain close when no dispatch was required.
func (d *Draft) CompleteConfirm(message string, final State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.confirmation = message
	if len(d.steps) > 2 {
		d.steps[2].Status = StepCompleted
	}
	d.state = final
}

// Reset releases all remaining image handles exactly once and clears
// everything back to a fresh compose state.
func (d *Draft) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = StateClosed
	for _, img := range d.images {
		_ = img.Release()
	}
	d.images = nil
	d.description = ""
	d.latitude = nil
	d.longitude = nil
	d.address = ""
	d.result = nil
	d.steps = nil
	d.confirmation = ""
	d.state = StateComposing
}

// ReleaseImages frees attachments without touching the rest of the draft.
// The store calls it when an abandoned draft expires.
func (d *Draft) ReleaseImages() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, img := range d.images {
		_ = img.Release()
	}
	d.images = nil
}
