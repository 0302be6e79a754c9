// Package report persists completed conversations as sighting reports.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tsukinowa-lab/FaunaLine/internal/models"
	"github.com/tsukinowa-lab/FaunaLine/internal/store"
)

// Opts holds configuration options for the report service.
type Opts struct {
	AppBaseURL string // public base URL for edit/map links; empty disables them
}

// Option defines a configuration option for the report service.
type Option func(*Opts)

// WithAppBaseURL sets the public base URL used in completion links.
func WithAppBaseURL(u string) Option {
	return func(o *Opts) {
		o.AppBaseURL = u
	}
}

// Submitter persists one finished conversation as a report. It is
// invoked exactly once per completed conversation.
type Submitter interface {
	Submit(ctx context.Context, sess *models.Session) (*models.Report, error)
}

// Service is the store-backed Submitter.
type Service struct {
	reports store.ReportStore
	baseURL string
}

// NewService creates a report service on top of a ReportStore.
func NewService(reports store.ReportStore, opts ...Option) *Service {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Service{reports: reports, baseURL: cfg.AppBaseURL}
}

// Submit assembles the description block from the session state and
// persists the report. Failures wrap models.ErrSubmissionFailed so the
// dispatcher can recognize the one fatal error class.
func (s *Service) Submit(ctx context.Context, sess *models.Session) (*models.Report, error) {
	state := sess.State

	var lat, lng float64
	var address string
	if state.Location != nil {
		lat = state.Location.Latitude
		lng = state.Location.Longitude
		address = state.Location.Address
	}
	reportedAt := time.Now()
	if state.DateTime != nil {
		reportedAt = *state.DateTime
	}
	var imageURLs []string
	for _, img := range state.Images {
		imageURLs = append(imageURLs, img.URL)
	}

	in := models.CreateReportInput{
		AnimalType:  state.AnimalType,
		Description: BuildDescription(state),
		Latitude:    lat,
		Longitude:   lng,
		Address:     address,
		PhoneNumber: state.PhoneNumber,
		ImageURLs:   imageURLs,
		ReportedAt:  reportedAt,
	}
	r, err := s.reports.CreateReport(in)
	if err != nil {
		slog.Error("report.Service.Submit failed", "error", err, "userID", sess.UserID)
		return nil, fmt.Errorf("%w: %v", models.ErrSubmissionFailed, err)
	}
	slog.Info("report.Service.Submit succeeded", "reportID", r.ID, "animalType", r.AnimalType)
	return r, nil
}

// EditURL builds the post-submission edit link, or "" when no base URL
// is configured.
func (s *Service) EditURL(r *models.Report) string {
	if s.baseURL == "" || r == nil {
		return ""
	}
	return fmt.Sprintf("%s/report?id=%s", s.baseURL, r.ID)
}

// MapURL builds the map link centered on the sighting with a one-month
// window, or "" when no base URL is configured.
func (s *Service) MapURL(r *models.Report) string {
	if s.baseURL == "" || r == nil {
		return ""
	}
	end := time.Now().In(jst)
	start := end.AddDate(0, -1, 0)
	return fmt.Sprintf("%s/map?lat=%f&lng=%f&zoom=18&startDate=%s&endDate=%s",
		s.baseURL, r.Latitude, r.Longitude,
		start.Format("2006-01-02"), end.Format("2006-01-02"))
}

// BuildDescription renders the いつ/どこで/何が/状況 block shown to the
// responding staff.
func BuildDescription(state models.SessionState) string {
	desc := fmt.Sprintf("いつ: %s\nどこで: %s\n何が: %s",
		FormatDateTimeJa(state.DateTime),
		FormatLocation(state.Location),
		models.AnimalTypeLabel(state.AnimalType))
	if state.Situation != "" {
		desc += fmt.Sprintf("\n状況: %s", state.Situation)
	}
	return desc
}

var jst = time.FixedZone("Asia/Tokyo", 9*60*60)

// FormatDateTimeJa renders a timestamp in Japanese date style (JST), or
// 不明 when absent.
func FormatDateTimeJa(t *time.Time) string {
	if t == nil {
		return "不明"
	}
	return t.In(jst).Format("2006年1月2日 15:04")
}

// FormatLocation renders the address with the selected landmark, or 不明
// when absent.
func FormatLocation(loc *models.Location) string {
	if loc == nil {
		return "不明"
	}
	address := loc.Address
	if address == "" {
		address = fmt.Sprintf("%f, %f", loc.Latitude, loc.Longitude)
	}
	if loc.LandmarkName != "" {
		return fmt.Sprintf("%s（%s付近）", address, loc.LandmarkName)
	}
	return address
}
