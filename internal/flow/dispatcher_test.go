package flow

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tsukinowa-lab/FaunaLine/internal/models"
	"github.com/tsukinowa-lab/FaunaLine/internal/postback"
)

func TestIsResetKeyword(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"リセット", true},
		{"  リセット  ", true},
		{"reset", true},
		{"RESET", true},
		{" Reset ", true},
		{"りせっと", false},
		{"reset please", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := isResetKeyword(tc.text); got != tc.want {
			t.Errorf("isResetKeyword(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestDispatcherStartsSessionForNewUser(t *testing.T) {
	env := newTestEnv()
	d := env.dispatcher("")

	msgs, err := d.HandleEvent(context.Background(), "user-1", textEvent("こんにちは"))
	if err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if !strings.Contains(textOf(t, msgs[0]), "どの動物を目撃しましたか") {
		t.Errorf("expected the animal picker, got %q", textOf(t, msgs[0]))
	}
	if sess := env.mustFind(t, "user-1"); sess.Step != models.StepAnimalType {
		t.Errorf("step = %s, want %s", sess.Step, models.StepAnimalType)
	}
}

func TestDispatcherResetFromEveryStep(t *testing.T) {
	steps := []models.Step{
		models.StepAnimalType,
		models.StepPhoto,
		models.StepImageDescription,
		models.StepActionCategory,
		models.StepActionQuestion,
		models.StepActionDetailConfirm,
		models.StepDateTime,
		models.StepLocation,
		models.StepConfirm,
		models.StepPhoneNumber,
		models.StepComplete,
	}
	for _, step := range steps {
		t.Run(string(step), func(t *testing.T) {
			env := newTestEnv()
			d := env.dispatcher("")
			env.seed(t, "user-1", step, models.NewSessionState())

			msgs, err := d.HandleEvent(context.Background(), "user-1", textEvent(" リセット "))
			if err != nil {
				t.Fatalf("HandleEvent failed: %v", err)
			}
			if len(msgs) != 1 || !strings.Contains(textOf(t, msgs[0]), "通報を中断しました") {
				t.Fatalf("expected the reset message, got %v", msgs)
			}
			sess, err := env.sessions.FindByUser("user-1")
			if err != nil {
				t.Fatalf("FindByUser failed: %v", err)
			}
			if sess != nil {
				t.Errorf("expected the session to be deleted, found step %s", sess.Step)
			}
		})
	}
}

func TestDispatcherStartOverFromAnyStep(t *testing.T) {
	env := newTestEnv()
	d := env.dispatcher("")
	state := models.NewSessionState()
	state.AnimalType = "deer"
	env.seed(t, "user-1", models.StepConfirm, state)

	msgs, err := d.HandleEvent(context.Background(), "user-1", postbackEvent(postback.Data{Action: postback.ActionStartOver}))
	if err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if len(msgs) != 1 || !strings.Contains(textOf(t, msgs[0]), "どの動物を目撃しましたか") {
		t.Fatalf("expected the animal picker, got %v", msgs)
	}
	sess := env.mustFind(t, "user-1")
	if sess.Step != models.StepAnimalType {
		t.Errorf("step = %s, want %s", sess.Step, models.StepAnimalType)
	}
	if sess.State.AnimalType != "" {
		t.Errorf("expected a fresh state, kept animalType %q", sess.State.AnimalType)
	}
}

func TestDispatcherSelfHealsOnCompleteStep(t *testing.T) {
	env := newTestEnv()
	d := env.dispatcher("")
	env.seed(t, "user-1", models.StepComplete, models.NewSessionState())

	msgs, err := d.HandleEvent(context.Background(), "user-1", textEvent("新しい通報"))
	if err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if len(msgs) != 1 || !strings.Contains(textOf(t, msgs[0]), "どの動物を目撃しましたか") {
		t.Fatalf("expected the animal picker, got %v", msgs)
	}
	if sess := env.mustFind(t, "user-1"); sess.Step != models.StepAnimalType {
		t.Errorf("step = %s, want %s", sess.Step, models.StepAnimalType)
	}
}

func TestDispatcherAnimalSelection(t *testing.T) {
	env := newTestEnv()
	d := env.dispatcher("")
	env.seed(t, "user-1", models.StepAnimalType, models.NewSessionState())

	msgs, err := d.HandleEvent(context.Background(), "user-1",
		postbackEvent(postback.Data{Action: postback.ActionSelectAnimal, Value: "wild_boar"}))
	if err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	sess := env.mustFind(t, "user-1")
	if sess.Step != models.StepPhoto {
		t.Errorf("step = %s, want %s", sess.Step, models.StepPhoto)
	}
	if sess.State.AnimalType != "wild_boar" {
		t.Errorf("animalType = %q, want wild_boar", sess.State.AnimalType)
	}
}

func TestDispatcherRejectsUnknownAnimal(t *testing.T) {
	env := newTestEnv()
	d := env.dispatcher("")
	env.seed(t, "user-1", models.StepAnimalType, models.NewSessionState())

	msgs, err := d.HandleEvent(context.Background(), "user-1",
		postbackEvent(postback.Data{Action: postback.ActionSelectAnimal, Value: "dragon"}))
	if err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if !strings.Contains(textOf(t, msgs[0]), "どの動物を目撃しましたか") {
		t.Errorf("expected the picker to be re-shown, got %q", textOf(t, msgs[0]))
	}
	if sess := env.mustFind(t, "user-1"); sess.Step != models.StepAnimalType {
		t.Errorf("step = %s, want %s", sess.Step, models.StepAnimalType)
	}
}

// TestDispatcherHappyPath walks a full conversation and verifies the
// report is submitted exactly once.
func TestDispatcherHappyPath(t *testing.T) {
	env := newTestEnv()
	env.ai.detail = "田んぼで稲を食べていた"
	d := env.dispatcher("")
	ctx := context.Background()
	user := "user-1"

	step := func(ev models.Event) {
		t.Helper()
		if _, err := d.HandleEvent(ctx, user, ev); err != nil {
			t.Fatalf("HandleEvent failed: %v", err)
		}
	}

	step(textEvent("こんにちは"))
	step(postbackEvent(postback.Data{Action: postback.ActionSelectAnimal, Value: "deer"}))
	step(postbackEvent(postback.Data{Action: postback.ActionSkipPhoto}))
	step(postbackEvent(postback.Data{Action: postback.ActionDateTimeNow}))
	step(locationEvent(35.0, 135.0))
	step(postbackEvent(postback.Data{Action: postback.ActionSelectAction, Value: "feeding"}))
	step(postbackEvent(postback.Data{Action: postback.ActionConfirmDetail}))
	step(postbackEvent(postback.Data{Action: postback.ActionConfirmReport}))
	step(textEvent("090-1234-5678"))

	if env.reports.calls != 1 {
		t.Fatalf("Submit called %d times, want exactly 1", env.reports.calls)
	}
	sess := env.mustFind(t, user)
	if sess.Step != models.StepComplete {
		t.Errorf("step = %s, want %s", sess.Step, models.StepComplete)
	}
	if sess.State.PhoneNumber != "09012345678" {
		t.Errorf("phoneNumber = %q, want 09012345678", sess.State.PhoneNumber)
	}
	if sess.State.DateTime == nil || time.Since(*sess.State.DateTime) > time.Minute {
		t.Errorf("expected a recent dateTime, got %v", sess.State.DateTime)
	}
}
