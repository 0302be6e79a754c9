package flow

import (
	"context"
	"testing"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/tsukinowa-lab/FaunaLine/internal/genai"
	"github.com/tsukinowa-lab/FaunaLine/internal/models"
	"github.com/tsukinowa-lab/FaunaLine/internal/postback"
	"github.com/tsukinowa-lab/FaunaLine/internal/store"
)

// fakeAI is a canned-response genai client for handler tests.
type fakeAI struct {
	analysis    *genai.ImageAnalysis
	analysisErr error

	questions    []models.QuestionCard
	questionsErr error

	detail    string
	detailErr error

	draft    *models.ReportDraft
	draftErr error

	analyzeCalls int
	batchCalls   int
	detailCalls  int
	draftCalls   int
}

func (f *fakeAI) AnalyzeImage(ctx context.Context, imageURL, selectedAnimalType string) (*genai.ImageAnalysis, error) {
	f.analyzeCalls++
	return f.analysis, f.analysisErr
}

func (f *fakeAI) GenerateQuestionBatch(ctx context.Context, qc genai.QuestionContext) ([]models.QuestionCard, error) {
	f.batchCalls++
	return f.questions, f.questionsErr
}

func (f *fakeAI) GenerateSingleQuestion(ctx context.Context, qc genai.QuestionContext) (*models.QuestionCard, error) {
	return nil, nil
}

func (f *fakeAI) GenerateActionDetail(ctx context.Context, qc genai.QuestionContext) (string, error) {
	f.detailCalls++
	return f.detail, f.detailErr
}

func (f *fakeAI) GenerateDraft(ctx context.Context, dc genai.DraftContext) (*models.ReportDraft, error) {
	f.draftCalls++
	return f.draft, f.draftErr
}

func (f *fakeAI) RegenerateDraft(ctx context.Context, draft models.ReportDraft, correction string) (*models.ReportDraft, error) {
	return &draft, nil
}

type fakeUploader struct {
	url   string
	err   error
	calls int
}

func (f *fakeUploader) Upload(ctx context.Context, imageID string) (string, error) {
	f.calls++
	return f.url, f.err
}

type fakeGeocoder struct {
	address string
	err     error
}

func (f *fakeGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	return f.address, f.err
}

type fakeLandmarks struct {
	landmarks []models.Landmark
	err       error
}

func (f *fakeLandmarks) SearchNearby(ctx context.Context, lat, lng float64, radiusMeters int) ([]models.Landmark, error) {
	return f.landmarks, f.err
}

type fakeReports struct {
	report *models.Report
	err    error
	calls  int
}

func (f *fakeReports) Submit(ctx context.Context, sess *models.Session) (*models.Report, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.report != nil {
		return f.report, nil
	}
	return &models.Report{ID: "report-1", AnimalType: sess.State.AnimalType}, nil
}

func (f *fakeReports) EditURL(r *models.Report) string { return "" }
func (f *fakeReports) MapURL(r *models.Report) string  { return "" }

// testEnv bundles a dispatcher with all its fakes.
type testEnv struct {
	sessions  *store.InMemoryStore
	ai        *fakeAI
	uploader  *fakeUploader
	geocoder  *fakeGeocoder
	landmarks *fakeLandmarks
	reports   *fakeReports
}

func newTestEnv() *testEnv {
	return &testEnv{
		sessions:  store.NewInMemoryStore(),
		ai:        &fakeAI{},
		uploader:  &fakeUploader{url: "https://example.com/images/1.jpg"},
		geocoder:  &fakeGeocoder{},
		landmarks: &fakeLandmarks{},
		reports:   &fakeReports{},
	}
}

func (e *testEnv) dispatcher(addressPrefix string) *Dispatcher {
	return NewDispatcher(Deps{
		Sessions:      e.sessions,
		GenAI:         e.ai,
		Uploader:      e.uploader,
		Geocoder:      e.geocoder,
		Landmarks:     e.landmarks,
		Reports:       e.reports,
		AddressPrefix: addressPrefix,
	})
}

func (e *testEnv) seed(t *testing.T, userID string, step models.Step, state models.SessionState) *models.Session {
	t.Helper()
	sess, err := e.sessions.Save(userID, step, state)
	if err != nil {
		t.Fatalf("seeding session failed: %v", err)
	}
	return sess
}

func (e *testEnv) mustFind(t *testing.T, userID string) *models.Session {
	t.Helper()
	sess, err := e.sessions.FindByUser(userID)
	if err != nil {
		t.Fatalf("FindByUser failed: %v", err)
	}
	if sess == nil {
		t.Fatalf("expected a session for %s", userID)
	}
	return sess
}

// textOf extracts the text of a plain text message.
func textOf(t *testing.T, msg messaging_api.MessageInterface) string {
	t.Helper()
	tm, ok := msg.(messaging_api.TextMessage)
	if !ok {
		t.Fatalf("expected a TextMessage, got %T", msg)
	}
	return tm.Text
}

func postbackEvent(d postback.Data) models.Event {
	return models.Event{Type: models.EventPostback, PostbackData: postback.Encode(d)}
}

func textEvent(text string) models.Event {
	return models.Event{Type: models.EventText, Text: text}
}

func imageEvent(id string) models.Event {
	return models.Event{Type: models.EventImage, ImageID: id}
}

func locationEvent(lat, lng float64) models.Event {
	return models.Event{Type: models.EventLocation, Latitude: lat, Longitude: lng}
}
