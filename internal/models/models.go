// Package models defines the core data structures for FaunaLine.
//
// It includes session and report types shared across modules, plus the
// master data for animal types and action categories.
package models

import (
	"errors"
	"time"
)

// Validation constants for report input validation
const (
	// MaxDescriptionLength defines the maximum allowed length for a report description
	MaxDescriptionLength = 4096
	// MaxImagesPerReport defines the maximum number of images attached to one report
	MaxImagesPerReport = 10
)

// Error variables for better error handling and testability
var (
	ErrEmptyUserID        = errors.New("user id cannot be empty")
	ErrInvalidStep        = errors.New("invalid conversation step")
	ErrEmptyAnimalType    = errors.New("animal type cannot be empty")
	ErrMissingLocation    = errors.New("location is required for report submission")
	ErrDescriptionTooLong = errors.New("report description exceeds maximum length")
	ErrTooManyImages      = errors.New("report exceeds maximum image count")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSubmissionFailed   = errors.New("report submission failed")
)

// Report represents a persisted wildlife sighting report.
type Report struct {
	ID          string    `json:"id"`
	AnimalType  string    `json:"animal_type"`
	Description string    `json:"description"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Address     string    `json:"address,omitempty"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	ImageURLs   []string  `json:"image_urls,omitempty"`
	ReportedAt  time.Time `json:"reported_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateReportInput carries the fields required to persist a new report.
type CreateReportInput struct {
	AnimalType  string
	Description string
	Latitude    float64
	Longitude   float64
	Address     string
	PhoneNumber string
	ImageURLs   []string
	ReportedAt  time.Time
}

// Validate performs validation on a CreateReportInput structure.
func (in *CreateReportInput) Validate() error {
	if in.AnimalType == "" {
		return ErrEmptyAnimalType
	}
	if in.Latitude == 0 && in.Longitude == 0 {
		return ErrMissingLocation
	}
	if len(in.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	if len(in.ImageURLs) > MaxImagesPerReport {
		return ErrTooManyImages
	}
	return nil
}
