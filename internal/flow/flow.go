// Package flow implements the report conversation state machine.
//
// Each inbound event is routed to the handler owning the session's
// current step. Handlers read the session once, call their collaborators
// in order, persist the new (step, state) pair, and return the ordered
// reply messages. AI failures degrade to deterministic fallbacks; the
// only error that escapes the dispatcher is a failed report submission.
package flow

import (
	"context"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/tsukinowa-lab/FaunaLine/internal/models"
)

// StepHandler is the uniform contract every step handler implements.
// Returned messages are ordered; order is significant.
type StepHandler interface {
	Handle(ctx context.Context, sess *models.Session, event models.Event) ([]messaging_api.MessageInterface, error)
}

// ImageUploader resolves a provider image message to a stored URL.
type ImageUploader interface {
	Upload(ctx context.Context, imageID string) (string, error)
}

// ReportService is the submission boundary plus the completion links.
type ReportService interface {
	Submit(ctx context.Context, sess *models.Session) (*models.Report, error)
	EditURL(r *models.Report) string
	MapURL(r *models.Report) string
}

func messages(msgs ...messaging_api.MessageInterface) []messaging_api.MessageInterface {
	return msgs
}
