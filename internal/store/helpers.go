package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/tsukinowa-lab/FaunaLine/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// marshalState serializes session state for the state_data column.
func marshalState(state models.SessionState) (string, error) {
	b, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session state: %w", err)
	}
	return string(b), nil
}

// marshalImageURLs serializes report image URLs for the image_urls column.
func marshalImageURLs(urls []string) (string, error) {
	if urls == nil {
		urls = []string{}
	}
	b, err := json.Marshal(urls)
	if err != nil {
		return "", fmt.Errorf("failed to marshal image urls: %w", err)
	}
	return string(b), nil
}

// scanSessionRow scans a Session from a single sql.Row.
func scanSessionRow(row *sql.Row) (*models.Session, error) {
	var sess models.Session
	var step, stateJSON string
	err := row.Scan(&sess.UserID, &sess.ID, &step, &stateJSON,
		&sess.CreatedAt, &sess.UpdatedAt, &sess.ExpiresAt)
	if err != nil {
		return nil, err
	}
	sess.Step = models.Step(step)
	if err := json.Unmarshal([]byte(stateJSON), &sess.State); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session state: %w", err)
	}
	return &sess, nil
}

// scanReport scans a Report from sql.Rows.
func scanReport(rows *sql.Rows) (models.Report, error) {
	var r models.Report
	var address, phoneNumber sql.NullString
	var imagesJSON string
	err := rows.Scan(&r.ID, &r.AnimalType, &r.Description, &r.Latitude, &r.Longitude,
		&address, &phoneNumber, &imagesJSON, &r.ReportedAt, &r.CreatedAt)
	if err != nil {
		return r, fmt.Errorf("scan report failed: %w", err)
	}
	r.Address = address.String
	r.PhoneNumber = phoneNumber.String
	if err := json.Unmarshal([]byte(imagesJSON), &r.ImageURLs); err != nil {
		return r, fmt.Errorf("failed to unmarshal image urls: %w", err)
	}
	return r, nil
}
