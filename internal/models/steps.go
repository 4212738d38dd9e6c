package models

// Campaign step kinds.
const (
	StepMessage = "message"
	StepAudio   = "audio"
	StepImage   = "image"
	StepVideo   = "video"
	StepPDF     = "pdf"
	StepButtons = "buttons"
)

// Flow-only step kinds.
const (
	StepAIResponse = "ai_response"
	StepMenu       = "menu"
)

var campaignStepKinds = map[string]bool{
	StepMessage: true,
	StepAudio:   true,
	StepImage:   true,
	StepVideo:   true,
	StepPDF:     true,
	StepButtons: true,
}

var flowStepKinds = map[string]bool{
	StepMessage:    true,
	StepAudio:      true,
	StepImage:      true,
	StepVideo:      true,
	StepAIResponse: true,
	StepMenu:       true,
}

func ValidCampaignStepKind(kind string) bool {
	return campaignStepKinds[kind]
}

func ValidFlowStepKind(kind string) bool {
	return flowStepKinds[kind]
}

// MediaStepKind reports whether a step of this kind carries a media
// attachment that must resolve at send time.
func MediaStepKind(kind string) bool {
	switch kind {
	case StepAudio, StepImage, StepVideo, StepPDF:
		return true
	}
	return false
}

// StepRequiresContent reports whether a step of this kind must have
// non-empty content before its flow or campaign can go live.
func StepRequiresContent(kind string) bool {
	return kind == StepMessage || kind == StepAIResponse
}
