package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/tsukinowa-lab/FaunaLine/internal/models"
	"github.com/tsukinowa-lab/FaunaLine/internal/postback"
)

func confirmSession(env *testEnv, t *testing.T, step models.Step) *models.Session {
	t.Helper()
	state := models.NewSessionState()
	state.AnimalType = "deer"
	state.Situation = "畑で目撃"
	state.ReportDraft = &models.ReportDraft{When: "不明", Where: "不明", What: "シカ", Situation: "畑で目撃"}
	return env.seed(t, "user-1", step, state)
}

func newConfirmHandler(env *testEnv) *ConfirmHandler {
	location := NewLocationHandler(env.sessions, env.geocoder, env.landmarks, "")
	return NewConfirmHandler(env.sessions, env.reports, location)
}

func TestConfirmReportMovesToPhoneNumber(t *testing.T) {
	env := newTestEnv()
	h := newConfirmHandler(env)
	sess := confirmSession(env, t, models.StepConfirm)

	msgs, err := h.Handle(context.Background(), sess, postbackEvent(postback.Data{Action: postback.ActionConfirmReport}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !strings.Contains(textOf(t, msgs[0]), "電話番号を入力してください") {
		t.Errorf("unexpected message: %q", textOf(t, msgs[0]))
	}
	if saved := env.mustFind(t, "user-1"); saved.Step != models.StepPhoneNumber {
		t.Errorf("step = %s, want %s", saved.Step, models.StepPhoneNumber)
	}
	if env.reports.calls != 0 {
		t.Errorf("no submission may happen before the phone step")
	}
}

func TestConfirmNonPostbackReshowsDraft(t *testing.T) {
	env := newTestEnv()
	h := newConfirmHandler(env)
	sess := confirmSession(env, t, models.StepConfirm)

	msgs, err := h.Handle(context.Background(), sess, textEvent("これでいいです"))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected the draft to be re-shown, got %d messages", len(msgs))
	}
	if saved := env.mustFind(t, "user-1"); saved.Step != models.StepConfirm {
		t.Errorf("step = %s, want %s", saved.Step, models.StepConfirm)
	}
}

func TestConfirmDelegatesLandmarkSelection(t *testing.T) {
	env := newTestEnv()
	h := newConfirmHandler(env)

	state := models.NewSessionState()
	state.Location = &models.Location{Latitude: 35.0, Longitude: 135.0}
	state.NearbyLandmarks = []models.Landmark{{ID: "lm-1", Name: "白川公園"}}
	sess := env.seed(t, "user-1", models.StepConfirm, state)

	if _, err := h.Handle(context.Background(), sess,
		postbackEvent(postback.Data{Action: postback.ActionSelectLandmark, ID: "lm-1"})); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	saved := env.mustFind(t, "user-1")
	if saved.Step != models.StepActionCategory {
		t.Errorf("step = %s, want %s", saved.Step, models.StepActionCategory)
	}
	if saved.State.Location.LandmarkName != "白川公園" {
		t.Errorf("landmarkName = %q", saved.State.Location.LandmarkName)
	}
}

func TestPhoneNumberRequestRepliesNothing(t *testing.T) {
	env := newTestEnv()
	h := newConfirmHandler(env)
	sess := confirmSession(env, t, models.StepPhoneNumber)

	msgs, err := h.Handle(context.Background(), sess, postbackEvent(postback.Data{Action: postback.ActionRequestPhoneNumber}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages, got %d", len(msgs))
	}
}

func TestPhoneNumberValidation(t *testing.T) {
	cases := []struct {
		input string
		valid bool
		want  string
	}{
		{"090-1234-5678", true, "09012345678"},
		{"09012345678", true, "09012345678"},
		{"03-1234-5678", true, "0312345678"},
		{" 075-123-4567 ", true, "0751234567"},
		{"12345", false, ""},
		{"190-1234-5678", false, ""},
		{"0901234567890", false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			env := newTestEnv()
			h := newConfirmHandler(env)
			sess := confirmSession(env, t, models.StepPhoneNumber)

			msgs, err := h.Handle(context.Background(), sess, textEvent(tc.input))
			if err != nil {
				t.Fatalf("Handle failed: %v", err)
			}

			saved := env.mustFind(t, "user-1")
			if tc.valid {
				if env.reports.calls != 1 {
					t.Fatalf("Submit called %d times, want 1", env.reports.calls)
				}
				if saved.Step != models.StepComplete {
					t.Errorf("step = %s, want %s", saved.Step, models.StepComplete)
				}
				if saved.State.PhoneNumber != tc.want {
					t.Errorf("phoneNumber = %q, want %q", saved.State.PhoneNumber, tc.want)
				}
			} else {
				if env.reports.calls != 0 {
					t.Errorf("an invalid number must not submit")
				}
				if saved.Step != models.StepPhoneNumber {
					t.Errorf("step = %s, want %s", saved.Step, models.StepPhoneNumber)
				}
				if !strings.Contains(textOf(t, msgs[0]), "電話番号の形式が正しくありません") {
					t.Errorf("unexpected message: %q", textOf(t, msgs[0]))
				}
			}
		})
	}
}

func TestPhoneNumberSkipSubmitsWithoutNumber(t *testing.T) {
	env := newTestEnv()
	h := newConfirmHandler(env)
	sess := confirmSession(env, t, models.StepPhoneNumber)

	msgs, err := h.Handle(context.Background(), sess, postbackEvent(postback.Data{Action: postback.ActionSkipPhoneNumber}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if env.reports.calls != 1 {
		t.Fatalf("Submit called %d times, want 1", env.reports.calls)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected the notice, sending text and completion card, got %d messages", len(msgs))
	}
	if !strings.Contains(textOf(t, msgs[0]), "時間がかかる場合があります") {
		t.Errorf("unexpected first message: %q", textOf(t, msgs[0]))
	}

	saved := env.mustFind(t, "user-1")
	if saved.Step != models.StepComplete {
		t.Errorf("step = %s, want %s", saved.Step, models.StepComplete)
	}
	if saved.State.PhoneNumber != "" {
		t.Errorf("skip must not record a phone number, got %q", saved.State.PhoneNumber)
	}
}

func TestSubmissionFailurePropagates(t *testing.T) {
	env := newTestEnv()
	env.reports.err = fmt.Errorf("%w: %v", models.ErrSubmissionFailed, errors.New("db down"))
	h := newConfirmHandler(env)
	sess := confirmSession(env, t, models.StepPhoneNumber)

	_, err := h.Handle(context.Background(), sess, textEvent("090-1234-5678"))
	if !errors.Is(err, models.ErrSubmissionFailed) {
		t.Fatalf("expected ErrSubmissionFailed, got %v", err)
	}
	if saved := env.mustFind(t, "user-1"); saved.Step == models.StepComplete {
		t.Errorf("a failed submission must not complete the session")
	}
}
