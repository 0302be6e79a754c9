package models

// ChoiceType distinguishes single-select from multi-select question cards.
type ChoiceType string

const (
	ChoiceTypeSingle   ChoiceType = "single"
	ChoiceTypeMultiple ChoiceType = "multiple"
)

// QuestionChoice is one selectable option on a question card.
type QuestionChoice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// QuestionCard is an AI-generated follow-up question about the animal's
// behavior. Rationale is for debugging only and is never rendered to users.
type QuestionCard struct {
	QuestionID   string           `json:"questionId"`
	QuestionText string           `json:"questionText"`
	Choices      []QuestionChoice `json:"choices"`
	ChoiceType   ChoiceType       `json:"choiceType"`
	AllowOther   bool             `json:"allowOther,omitempty"`
	AllowUnknown bool             `json:"allowUnknown,omitempty"`
	CaptureKey   string           `json:"captureKey,omitempty"`
	Rationale    string           `json:"rationale,omitempty"`
}

// QuestionAnswer records the user's selection for one question card.
type QuestionAnswer struct {
	QuestionID           string   `json:"questionId"`
	QuestionText         string   `json:"questionText"`
	SelectedChoiceIDs    []string `json:"selectedChoiceIds"`
	SelectedChoiceLabels []string `json:"selectedChoiceLabels"`
	OtherText            string   `json:"otherText,omitempty"`
	CaptureKey           string   `json:"captureKey,omitempty"`
}
