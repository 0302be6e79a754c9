package flow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/tsukinowa-lab/FaunaLine/internal/genai"
	"github.com/tsukinowa-lab/FaunaLine/internal/geo"
	"github.com/tsukinowa-lab/FaunaLine/internal/linemsg"
	"github.com/tsukinowa-lab/FaunaLine/internal/models"
	"github.com/tsukinowa-lab/FaunaLine/internal/postback"
	"github.com/tsukinowa-lab/FaunaLine/internal/store"
)

// Deps bundles the collaborators the dispatcher wires into its handlers.
type Deps struct {
	Sessions  store.SessionStore
	GenAI     genai.ClientInterface
	Uploader  ImageUploader
	Geocoder  geo.Geocoder
	Landmarks geo.LandmarkSearcher
	Reports   ReportService

	// AddressPrefix restricts accepted locations to one region when set
	// (geofence check on the reverse-geocoded address).
	AddressPrefix string
}

// Dispatcher is the conversation entry point. It intercepts global
// commands and routes everything else to the handler owning the
// session's current step.
type Dispatcher struct {
	sessions store.SessionStore
	handlers map[models.Step]StepHandler
	locks    *UserLocks
}

// NewDispatcher wires the step handlers onto their steps.
func NewDispatcher(deps Deps) *Dispatcher {
	animal := NewAnimalTypeHandler(deps.Sessions)
	photo := NewPhotoHandler(deps.Sessions, deps.GenAI, deps.Uploader)
	action := NewActionDetailHandler(deps.Sessions, deps.GenAI)
	datetime := NewDateTimeHandler(deps.Sessions)
	location := NewLocationHandler(deps.Sessions, deps.Geocoder, deps.Landmarks, deps.AddressPrefix)
	confirm := NewConfirmHandler(deps.Sessions, deps.Reports, location)

	return &Dispatcher{
		sessions: deps.Sessions,
		locks:    NewUserLocks(),
		handlers: map[models.Step]StepHandler{
			models.StepAnimalType:          animal,
			models.StepPhoto:               photo,
			models.StepImageDescription:    photo,
			models.StepActionCategory:      action,
			models.StepActionQuestion:      action,
			models.StepActionDetailConfirm: action,
			models.StepDateTime:            datetime,
			models.StepLocation:            location,
			models.StepConfirm:             confirm,
			models.StepPhoneNumber:         confirm,
		},
	}
}

// Locks exposes the per-user lock manager for lifecycle sweeps.
func (d *Dispatcher) Locks() *UserLocks {
	return d.locks
}

// isResetKeyword reports whether the text is a global reset command,
// trimmed and case-insensitive.
func isResetKeyword(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	return normalized == "リセット" || normalized == "reset"
}

// HandleEvent processes one inbound event for one user. Events for the
// same user are serialized; the per-user lock is held across the whole
// read-modify-write so redelivered webhooks cannot lose updates.
func (d *Dispatcher) HandleEvent(ctx context.Context, userID string, event models.Event) ([]messaging_api.MessageInterface, error) {
	var msgs []messaging_api.MessageInterface
	err := d.locks.WithLock(userID, func() error {
		var err error
		msgs, err = d.dispatch(ctx, userID, event)
		return err
	})
	return msgs, err
}

func (d *Dispatcher) dispatch(ctx context.Context, userID string, event models.Event) ([]messaging_api.MessageInterface, error) {
	// Global reset wins over everything, from any step.
	if event.Type == models.EventText && isResetKeyword(event.Text) {
		slog.Info("Dispatcher.dispatch: reset requested", "userID", userID)
		if err := d.sessions.DeleteByUser(userID); err != nil {
			return nil, err
		}
		return messages(linemsg.ResetMessage()), nil
	}

	// start_over is honored from any step as well.
	if event.Type == models.EventPostback {
		if postback.Decode(event.PostbackData).Action == postback.ActionStartOver {
			slog.Info("Dispatcher.dispatch: start over requested", "userID", userID)
			return d.StartNewSession(userID)
		}
	}

	sess, err := d.sessions.FindByUser(userID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		slog.Debug("Dispatcher.dispatch: no session, starting fresh", "userID", userID)
		return d.StartNewSession(userID)
	}

	handler, ok := d.handlers[sess.Step]
	if !ok {
		// complete, or a corrupted/obsolete step value: self-heal by
		// starting a new conversation.
		slog.Info("Dispatcher.dispatch: unroutable step, starting fresh", "userID", userID, "step", sess.Step)
		return d.StartNewSession(userID)
	}

	slog.Debug("Dispatcher.dispatch: routing event", "userID", userID, "step", sess.Step, "eventType", event.Type)
	return handler.Handle(ctx, sess, event)
}

// StartNewSession resets the user to the initial step and returns the
// animal prompt.
func (d *Dispatcher) StartNewSession(userID string) ([]messaging_api.MessageInterface, error) {
	if _, err := d.sessions.Save(userID, models.StepAnimalType, models.NewSessionState()); err != nil {
		return nil, err
	}
	return messages(linemsg.AnimalTypePrompt()), nil
}
