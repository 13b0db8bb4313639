// Package dialogue runs the reservation conversation: a fixed sequence of
// questions driven one finalized utterance at a time.
package dialogue

import (
	"fmt"
	"time"
)

// Step is the conversation's position in the question sequence.
type Step int

const (
	StepGreeting Step = iota
	StepAskGuests
	StepAskDate
	StepAskTime
	StepAskCuisine
	StepAskSpecial
	StepWeatherCheck
	StepSeatingSuggestion
	StepConfirmation
	StepSave
	StepComplete
)

var stepNames = [...]string{
	StepGreeting:          "GREETING",
	StepAskGuests:         "ASK_GUESTS",
	StepAskDate:           "ASK_DATE",
	StepAskTime:           "ASK_TIME",
	StepAskCuisine:        "ASK_CUISINE",
	StepAskSpecial:        "ASK_SPECIAL",
	StepWeatherCheck:      "WEATHER_CHECK",
	StepSeatingSuggestion: "SEATING_SUGGESTION",
	StepConfirmation:      "CONFIRMATION",
	StepSave:              "SAVE",
	StepComplete:          "COMPLETE",
}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return fmt.Sprintf("Step(%d)", int(s))
	}
	return stepNames[s]
}

func (s Step) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(stepNames) {
		return nil, fmt.Errorf("unknown step %d", int(s))
	}
	return []byte(stepNames[s]), nil
}

func (s *Step) UnmarshalText(b []byte) error {
	for i, name := range stepNames {
		if name == string(b) {
			*s = Step(i)
			return nil
		}
	}
	return fmt.Errorf("unknown step %q", b)
}

// Sender identifies who spoke a turn.
type Sender string

const (
	SenderAgent Sender = "agent"
	SenderUser  Sender = "user"
)

// Turn is one line of the transcript.
type Turn struct {
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
