// Package models defines session types to avoid circular imports.
package models

import "time"

// Step represents the current position of a user in the report conversation.
type Step string

// Step constants for the report conversation.
const (
	StepAnimalType          Step = "animal-type"
	StepPhoto               Step = "photo"
	StepImageDescription    Step = "image-description"
	StepActionCategory      Step = "action-category"
	StepActionQuestion      Step = "action-question"
	StepActionDetailConfirm Step = "action-detail-confirm"
	StepDateTime            Step = "datetime"
	StepLocation            Step = "location"
	StepConfirm             Step = "confirm"
	StepPhoneNumber         Step = "phone-number"
	StepComplete            Step = "complete"
)

// IsValidStep checks if the given step is part of the conversation.
func IsValidStep(s Step) bool {
	switch s {
	case StepAnimalType, StepPhoto, StepImageDescription, StepActionCategory,
		StepActionQuestion, StepActionDetailConfirm, StepDateTime, StepLocation,
		StepConfirm, StepPhoneNumber, StepComplete:
		return true
	default:
		return false
	}
}

// ReportImage is one uploaded photo attached to the session.
type ReportImage struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// Location is the sighting position collected during the conversation.
type Location struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Address      string  `json:"address,omitempty"`
	LandmarkName string  `json:"landmark_name,omitempty"`
}

// Landmark is a named point near the sighting location.
type Landmark struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Category       string  `json:"category,omitempty"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	DistanceMeters int     `json:"distance_meters"`
}

// ReportDraft is the AI-polished summary shown to the user before submission.
type ReportDraft struct {
	When      string `json:"when"`
	Where     string `json:"where"`
	What      string `json:"what"`
	Situation string `json:"situation"`
}

// SessionState is the accumulating report payload. It is serialized as JSON
// into the session store, so every field must round-trip through encoding/json.
// Handlers treat it as a value: copy, modify, save.
type SessionState struct {
	AnimalType               string           `json:"animalType,omitempty"`
	Images                   []ReportImage    `json:"images,omitempty"`
	ImageAnalysisDescription string           `json:"imageAnalysisDescription,omitempty"`
	ImageRejectionCount      int              `json:"imageRejectionCount,omitempty"`
	Situation                string           `json:"situation,omitempty"`
	ActionCategory           string           `json:"actionCategory,omitempty"`
	ActionQuestionAnswers    []QuestionAnswer `json:"actionQuestionAnswers,omitempty"`
	ActionQuestionCount      int              `json:"actionQuestionCount,omitempty"`
	CurrentQuestion          *QuestionCard    `json:"currentQuestion,omitempty"`
	QuestionQueue            []QuestionCard   `json:"questionQueue,omitempty"`
	ActionDetail             string           `json:"actionDetail,omitempty"`
	DateTime                 *time.Time       `json:"dateTime,omitempty"`
	Location                 *Location        `json:"location,omitempty"`
	NearbyLandmarks          []Landmark       `json:"nearbyLandmarks,omitempty"`
	ReportDraft              *ReportDraft     `json:"reportDraft,omitempty"`
	PhoneNumber              string           `json:"phoneNumber,omitempty"`
}

// NewSessionState returns the empty intake state for a fresh conversation.
func NewSessionState() SessionState {
	return SessionState{}
}

// Session binds one user to their position in the conversation.
// An expired session is treated as absent everywhere.
type Session struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Step      Step         `json:"step"`
	State     SessionState `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Expired reports whether the session's TTL has elapsed.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
