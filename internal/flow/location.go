package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/tsukinowa-lab/FaunaLine/internal/geo"
	"github.com/tsukinowa-lab/FaunaLine/internal/linemsg"
	"github.com/tsukinowa-lab/FaunaLine/internal/models"
	"github.com/tsukinowa-lab/FaunaLine/internal/postback"
	"github.com/tsukinowa-lab/FaunaLine/internal/store"
)

// LocationHandler owns the location step: geocoding, the optional
// geofence, and the nearby-landmark refinement.
type LocationHandler struct {
	sessions      store.SessionStore
	geocoder      geo.Geocoder
	landmarks     geo.LandmarkSearcher
	addressPrefix string
}

func NewLocationHandler(sessions store.SessionStore, geocoder geo.Geocoder, landmarks geo.LandmarkSearcher, addressPrefix string) *LocationHandler {
	return &LocationHandler{
		sessions:      sessions,
		geocoder:      geocoder,
		landmarks:     landmarks,
		addressPrefix: addressPrefix,
	}
}

func (h *LocationHandler) Handle(ctx context.Context, sess *models.Session, event models.Event) ([]messaging_api.MessageInterface, error) {
	if event.Type == models.EventPostback {
		payload := postback.Decode(event.PostbackData)
		switch payload.Action {
		case postback.ActionSelectLandmark, postback.ActionSkipLandmark:
			return h.HandleLandmarkSelection(ctx, sess, payload)
		}
		return messages(linemsg.LocationPrompt()), nil
	}

	if event.Type == models.EventLocation {
		return h.processLocation(ctx, sess, event)
	}

	if event.Type == models.EventText {
		return messages(
			linemsg.Text("住所のテキスト入力は利用できません。位置情報を送信してください。"),
			linemsg.LocationPrompt(),
		), nil
	}

	return messages(linemsg.LocationPrompt()), nil
}

func (h *LocationHandler) processLocation(ctx context.Context, sess *models.Session, event models.Event) ([]messaging_api.MessageInterface, error) {
	address := event.Address
	if address == "" {
		geocoded, err := h.geocoder.ReverseGeocode(ctx, event.Latitude, event.Longitude)
		if err != nil {
			slog.Warn("LocationHandler.processLocation: reverse geocode failed", "error", err, "userID", sess.UserID)
		} else {
			address = geocoded
		}
	}
	if address == "" {
		// Coordinates stand in when no address is resolvable.
		address = fmt.Sprintf("%f, %f", event.Latitude, event.Longitude)
	}

	if h.addressPrefix != "" && !strings.HasPrefix(address, h.addressPrefix) {
		slog.Info("LocationHandler.processLocation: location outside service area", "userID", sess.UserID, "address", address)
		return messages(
			linemsg.Text(fmt.Sprintf("送信された位置情報の住所（%s）が対象地域（%s）と一致しません。正しい位置情報を再送信してください。", address, h.addressPrefix)),
			linemsg.LocationPrompt(),
		), nil
	}

	state := sess.State
	state.Location = &models.Location{
		Latitude:  event.Latitude,
		Longitude: event.Longitude,
		Address:   address,
	}

	nearby, err := h.landmarks.SearchNearby(ctx, event.Latitude, event.Longitude, geo.DefaultLandmarkRadiusMeters)
	if err != nil {
		// Landmark refinement is best effort: the location itself is
		// already captured.
		slog.Warn("LocationHandler.processLocation: landmark search failed", "error", err, "userID", sess.UserID)
		nearby = nil
	}

	if len(nearby) > 0 {
		state.NearbyLandmarks = nearby
		if _, err := h.sessions.Save(sess.UserID, models.StepLocation, state); err != nil {
			return nil, err
		}
		return messages(linemsg.NearbyLandmarksPrompt(nearby)), nil
	}

	state.NearbyLandmarks = nil
	if _, err := h.sessions.Save(sess.UserID, models.StepActionCategory, state); err != nil {
		return nil, err
	}
	return linemsg.ActionCategoryMessages(), nil
}

// HandleLandmarkSelection resolves a landmark pick (or the explicit
// skip) and moves on to the action category. The confirm step delegates
// here too, since the landmark prompt can still be on screen.
func (h *LocationHandler) HandleLandmarkSelection(ctx context.Context, sess *models.Session, payload postback.Data) ([]messaging_api.MessageInterface, error) {
	state := sess.State

	if payload.Action == postback.ActionSelectLandmark && state.Location != nil {
		for _, lm := range state.NearbyLandmarks {
			if lm.ID == payload.ID {
				state.Location.LandmarkName = lm.Name
				break
			}
		}
	}

	state.NearbyLandmarks = nil
	if _, err := h.sessions.Save(sess.UserID, models.StepActionCategory, state); err != nil {
		return nil, err
	}
	return linemsg.ActionCategoryMessages(), nil
}
