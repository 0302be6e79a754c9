package flow

import (
	"context"
	"log/slog"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/tsukinowa-lab/FaunaLine/internal/linemsg"
	"github.com/tsukinowa-lab/FaunaLine/internal/models"
	"github.com/tsukinowa-lab/FaunaLine/internal/postback"
	"github.com/tsukinowa-lab/FaunaLine/internal/store"
)

// AnimalTypeHandler owns the animal-type step.
type AnimalTypeHandler struct {
	sessions store.SessionStore
}

func NewAnimalTypeHandler(sessions store.SessionStore) *AnimalTypeHandler {
	return &AnimalTypeHandler{sessions: sessions}
}

func (h *AnimalTypeHandler) Handle(ctx context.Context, sess *models.Session, event models.Event) ([]messaging_api.MessageInterface, error) {
	if event.Type == models.EventPostback {
		payload := postback.Decode(event.PostbackData)
		if payload.Action == postback.ActionSelectAnimal && models.IsValidAnimalType(payload.Value) {
			state := sess.State
			state.AnimalType = payload.Value
			if _, err := h.sessions.Save(sess.UserID, models.StepPhoto, state); err != nil {
				return nil, err
			}
			slog.Debug("AnimalTypeHandler.Handle: animal selected", "userID", sess.UserID, "animalType", payload.Value)
			return messages(linemsg.PhotoPrompt()), nil
		}
	}

	// Anything else re-shows the picker.
	return messages(linemsg.AnimalTypePrompt()), nil
}
