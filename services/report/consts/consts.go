package consts

const (
	// Severity levels returned by the evaluation service
	LevelEmergency    = "EMERGENCY"
	LevelNonEmergency = "NON_EMERGENCY"
	LevelNoConcern    = "NO_CONCERN"

	// Dispatch triggers
	Trigger911  = "911"
	Trigger311  = "311"
	TriggerNone = "NONE"

	// Confirmation messages shown to the user
	Confirmation911       = "Report sent to 911 services."
	Confirmation311       = "Report sent to 311 services."
	ConfirmationNoConcern = "No action required."

	// Progress step markers
	StepLocationTitle         = "Location"
	StepLocationDescription   = "Resolving the report location"
	StepEvaluationTitle       = "Evaluation"
	StepEvaluationDescription = "Classifying the reported issue"
	StepReviewTitle           = "Review"
	StepReviewDescription     = "Awaiting your confirmation"

	// Upload limits
	MaxImageSize = 10 * 1024 * 1024 // 10MB
	MaxAudioSize = 25 * 1024 * 1024 // 25MB
)
