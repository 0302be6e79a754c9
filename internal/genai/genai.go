// Package genai provides the AI collaborators for the report conversation
// using the OpenAI API.
//
// Every operation degrades gracefully: callers receive an error value and
// are expected to fall back to deterministic behavior, never to surface
// the failure to the end user.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/tsukinowa-lab/FaunaLine/internal/models"
)

// MaxQuestionsPerBatch caps the number of deep-dive questions requested
// in the single batched generation call.
const MaxQuestionsPerBatch = 3

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey string // OpenAI API key; falls back to OPENAI_API_KEY
	Model  string // chat model; defaults to gpt-4o-mini
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// ImageAnalysis is the screening verdict for one uploaded photo.
type ImageAnalysis struct {
	IsImageClear          bool   `json:"isImageClear"`
	ContainsAnimalOrTrace bool   `json:"containsAnimalOrTrace"`
	DetectedAnimalType    string `json:"detectedAnimalType,omitempty"`
	Description           string `json:"description,omitempty"`
}

// QuestionContext carries everything known about the sighting when
// generating deep-dive questions or the detail text.
type QuestionContext struct {
	AnimalType      string
	ActionCategory  string
	Situation       string
	PreviousAnswers []models.QuestionAnswer
	QuestionNumber  int
	DateTime        *time.Time
	Location        *models.Location
}

// DraftContext carries the inputs for draft generation.
type DraftContext struct {
	AnimalType string
	Situation  string
	DateTime   *time.Time
	Location   *models.Location
}

// ClientInterface defines the AI operations the conversation flow depends
// on. Tests substitute a mock implementation.
type ClientInterface interface {
	AnalyzeImage(ctx context.Context, imageURL, selectedAnimalType string) (*ImageAnalysis, error)
	GenerateQuestionBatch(ctx context.Context, qc QuestionContext) ([]models.QuestionCard, error)
	GenerateSingleQuestion(ctx context.Context, qc QuestionContext) (*models.QuestionCard, error)
	GenerateActionDetail(ctx context.Context, qc QuestionContext) (string, error)
	GenerateDraft(ctx context.Context, dc DraftContext) (*models.ReportDraft, error)
	RegenerateDraft(ctx context.Context, draft models.ReportDraft, correction string) (*models.ReportDraft, error)
}

// Client wraps the OpenAI chat completion API.
type Client struct {
	client openai.Client
	model  string
}

const systemPrompt = "あなたは野生動物目撃通報システムのAIアシスタントです。" +
	"通報者から目撃情報を正確に聞き取ることが目的です。" +
	"回答は必ず指定されたJSON形式のみで返してください。"

// NewClient initializes a new GenAI client. The API key is taken from
// options or the OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	slog.Debug("genai.NewClient initialized", "model", model)
	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

// completeJSON performs one chat completion round trip in JSON-object mode
// and returns the raw content of the first choice.
func (c *Client) completeJSON(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// AnalyzeImage screens one uploaded photo against the selected animal type.
func (c *Client) AnalyzeImage(ctx context.Context, imageURL, selectedAnimalType string) (*ImageAnalysis, error) {
	prompt := fmt.Sprintf(`アップロードされた画像を解析してください。通報者は「%s」を目撃したと申告しています。
以下のJSON形式で回答してください。
{"isImageClear": true/false, "containsAnimalOrTrace": true/false, "detectedAnimalType": "monkey|deer|wild_boar|bear|other", "description": "画像に写っているものの簡潔な説明"}
- isImageClear: 画像が鮮明で判別可能か
- containsAnimalOrTrace: 動物本体または痕跡（足跡・食害・糞など）が写っているか
- detectedAnimalType: 検出した獣種。判別できない場合や上記以外は "other"
- description: 日本語で1〜2文`, models.AnimalTypeLabel(selectedAnimalType))

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(prompt),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: imageURL}),
		}),
	}
	content, err := c.completeJSON(ctx, messages)
	if err != nil {
		slog.Error("genai.AnalyzeImage failed", "error", err)
		return nil, err
	}
	var analysis ImageAnalysis
	if err := json.Unmarshal([]byte(extractJSON(content)), &analysis); err != nil {
		slog.Error("genai.AnalyzeImage parse failed", "error", err)
		return nil, fmt.Errorf("failed to parse image analysis: %w", err)
	}
	slog.Debug("genai.AnalyzeImage succeeded", "clear", analysis.IsImageClear, "detected", analysis.DetectedAnimalType)
	return &analysis, nil
}

// GenerateQuestionBatch requests up to MaxQuestionsPerBatch deep-dive
// questions in one round trip.
func (c *Client) GenerateQuestionBatch(ctx context.Context, qc QuestionContext) ([]models.QuestionCard, error) {
	prompt := fmt.Sprintf(`%s
行動カテゴリ「%s」について、通報内容を具体化するための選択式の質問を最大%d個生成してください。
以下のJSON形式で回答してください。
{"questions": [{"questionId": "q1", "questionText": "質問文", "choices": [{"id": "c1", "label": "選択肢"}], "choiceType": "single", "captureKey": "意味スロット名", "rationale": "出題理由"}]}
- 選択肢は2〜4個、日本語で簡潔に（12文字以内）
- 質問は重複しない観点で`,
		contextBlock(qc), models.ActionCategoryLabel(qc.ActionCategory), MaxQuestionsPerBatch)

	content, err := c.completeJSON(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(prompt),
	})
	if err != nil {
		slog.Error("genai.GenerateQuestionBatch failed", "error", err)
		return nil, err
	}
	var parsed struct {
		Questions []models.QuestionCard `json:"questions"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &parsed); err != nil {
		slog.Error("genai.GenerateQuestionBatch parse failed", "error", err)
		return nil, fmt.Errorf("failed to parse question batch: %w", err)
	}
	questions := normalizeQuestions(parsed.Questions)
	slog.Debug("genai.GenerateQuestionBatch succeeded", "count", len(questions))
	return questions, nil
}

// GenerateSingleQuestion is the one-at-a-time fallback path for question
// generation.
func (c *Client) GenerateSingleQuestion(ctx context.Context, qc QuestionContext) (*models.QuestionCard, error) {
	prompt := fmt.Sprintf(`%s
行動カテゴリ「%s」に関する%d問目の選択式質問を1つ生成してください。既出の質問と重複しない観点にしてください。
追加の質問が不要な場合は {"question": null} を返してください。
以下のJSON形式で回答してください。
{"question": {"questionId": "q%d", "questionText": "質問文", "choices": [{"id": "c1", "label": "選択肢"}], "choiceType": "single", "captureKey": "意味スロット名"}}`,
		contextBlock(qc), models.ActionCategoryLabel(qc.ActionCategory), qc.QuestionNumber, qc.QuestionNumber)

	content, err := c.completeJSON(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(prompt),
	})
	if err != nil {
		slog.Error("genai.GenerateSingleQuestion failed", "error", err)
		return nil, err
	}
	var parsed struct {
		Question *models.QuestionCard `json:"question"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse question: %w", err)
	}
	if parsed.Question == nil {
		return nil, nil
	}
	qs := normalizeQuestions([]models.QuestionCard{*parsed.Question})
	return &qs[0], nil
}

// GenerateActionDetail condenses the Q&A history into one detail sentence.
func (c *Client) GenerateActionDetail(ctx context.Context, qc QuestionContext) (string, error) {
	prompt := fmt.Sprintf(`%s
上記の質問と回答を踏まえ、動物の行動を1〜2文の日本語で要約してください。
以下のJSON形式で回答してください。
{"detail": "要約文"}`, contextBlock(qc))

	content, err := c.completeJSON(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(prompt),
	})
	if err != nil {
		slog.Error("genai.GenerateActionDetail failed", "error", err)
		return "", err
	}
	var parsed struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &parsed); err != nil {
		return "", fmt.Errorf("failed to parse action detail: %w", err)
	}
	if parsed.Detail == "" {
		return "", fmt.Errorf("empty detail returned")
	}
	return parsed.Detail, nil
}

// GenerateDraft produces the human-readable report summary.
func (c *Client) GenerateDraft(ctx context.Context, dc DraftContext) (*models.ReportDraft, error) {
	prompt := fmt.Sprintf(`以下の目撃情報から通報サマリを作成してください。
獣種: %s
状況: %s
日時: %s
場所: %s
以下のJSON形式で回答してください。各値は日本語の簡潔な文とし、不明な項目は「不明」としてください。
{"when": "いつ", "where": "どこで", "what": "何が", "situation": "状況"}`,
		models.AnimalTypeLabel(dc.AnimalType), orUnknown(dc.Situation),
		formatDateTime(dc.DateTime), formatLocation(dc.Location))

	content, err := c.completeJSON(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(prompt),
	})
	if err != nil {
		slog.Error("genai.GenerateDraft failed", "error", err)
		return nil, err
	}
	var draft models.ReportDraft
	if err := json.Unmarshal([]byte(extractJSON(content)), &draft); err != nil {
		return nil, fmt.Errorf("failed to parse draft: %w", err)
	}
	return &draft, nil
}

// RegenerateDraft revises a draft with the user's correction. On any
// failure the unmodified input draft is returned, per the fallback
// discipline for collaborator calls.
func (c *Client) RegenerateDraft(ctx context.Context, draft models.ReportDraft, correction string) (*models.ReportDraft, error) {
	prompt := fmt.Sprintf(`現在の通報サマリ:
いつ: %s
どこで: %s
何が: %s
状況: %s

通報者からの修正依頼: %s

修正を反映した通報サマリを以下のJSON形式で回答してください。
{"when": "いつ", "where": "どこで", "what": "何が", "situation": "状況"}`,
		draft.When, draft.Where, draft.What, draft.Situation, correction)

	content, err := c.completeJSON(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(prompt),
	})
	if err != nil {
		slog.Warn("genai.RegenerateDraft failed, keeping original draft", "error", err)
		cp := draft
		return &cp, nil
	}
	var revised models.ReportDraft
	if err := json.Unmarshal([]byte(extractJSON(content)), &revised); err != nil {
		slog.Warn("genai.RegenerateDraft parse failed, keeping original draft", "error", err)
		cp := draft
		return &cp, nil
	}
	return &revised, nil
}

// contextBlock renders the known sighting context for question and detail
// prompts.
func contextBlock(qc QuestionContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "獣種: %s\n", models.AnimalTypeLabel(qc.AnimalType))
	fmt.Fprintf(&b, "状況: %s\n", orUnknown(qc.Situation))
	fmt.Fprintf(&b, "日時: %s\n", formatDateTime(qc.DateTime))
	fmt.Fprintf(&b, "場所: %s", formatLocation(qc.Location))
	for _, a := range qc.PreviousAnswers {
		fmt.Fprintf(&b, "\nQ: %s A: %s", a.QuestionText, strings.Join(a.SelectedChoiceLabels, "、"))
		if a.OtherText != "" {
			fmt.Fprintf(&b, "（%s）", a.OtherText)
		}
	}
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "不明"
	}
	return s
}

func formatDateTime(t *time.Time) string {
	if t == nil {
		return "不明"
	}
	return t.In(jst).Format("2006/01/02 15:04")
}

func formatLocation(loc *models.Location) string {
	if loc == nil {
		return "不明"
	}
	if loc.Address != "" {
		return loc.Address
	}
	return fmt.Sprintf("%f, %f", loc.Latitude, loc.Longitude)
}

var jst = time.FixedZone("Asia/Tokyo", 9*60*60)

// extractJSON strips markdown fences and surrounding prose from a model
// response, keeping the outermost JSON object.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// normalizeQuestions fills in missing ids and defaults, and caps the
// batch size.
func normalizeQuestions(questions []models.QuestionCard) []models.QuestionCard {
	if len(questions) > MaxQuestionsPerBatch {
		questions = questions[:MaxQuestionsPerBatch]
	}
	out := make([]models.QuestionCard, 0, len(questions))
	for i, q := range questions {
		if q.QuestionText == "" || len(q.Choices) == 0 {
			continue
		}
		if q.QuestionID == "" {
			q.QuestionID = fmt.Sprintf("q%d", i+1)
		}
		if q.ChoiceType != models.ChoiceTypeMultiple {
			q.ChoiceType = models.ChoiceTypeSingle
		}
		for j := range q.Choices {
			if q.Choices[j].ID == "" {
				q.Choices[j].ID = fmt.Sprintf("c%d", j+1)
			}
		}
		// Every surfaced question lets the user answer わからない.
		q.AllowUnknown = true
		out = append(out, q)
	}
	return out
}
