package aisvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/course"
	"github.com/trezcool/tallman/core/curriculum"
)

const (
	architectInstruction = "Lead Industrial Architect for Tallman Equipment. Depth and mechanical precision are the only priorities. Answer with JSON only."
	writerInstruction    = "Expert Industrial Technical Writer for Tallman Equipment. Raw data and SOPs only. No case studies. No appendices. Answer with JSON only."

	outlinePrompt = `Draft a 20-module industrial curriculum for: %q.

Strict Constraints:
- 20 modules exactly.
- FOCUS: Tallman Equipment Co. (P21, DDIN tools, Bradley Machining).
- FORBIDDEN: Fractional CIO, Polymer Chemistry, Case Studies, Appendices.
- RIGGING/ROPE SPECIFIC: Absolutely NO mention of electrical, dielectric, or insulation properties. Focus purely on mechanical physics and load handling.
- CONTENT: High-density mechanical/industrial specifications.

JSON format:
{
  "title": "Course Title",
  "description": "Summary",
  "modules": [
    {
      "module_title": "Unit name",
      "lessons": [
        {"lesson_title": "Industrial Manual", "lesson_type": "document", "duration": 60},
        {"lesson_title": "Technical Audit", "lesson_type": "quiz", "duration": 20}
      ]
    }
  ]
}`

	quizPrompt = `Create a 15-question advanced technical audit for: %q (module %q of %q).
Focus on P21 steps and mechanical tolerances.

JSON format:
{"quiz_questions": [{"question": "...", "options": ["...", "...", "...", "..."], "correct_index": 0}]}`

	manualPrompt = `Write an exhaustive technical training manual for: %q (module %q of %q).

STRICTLY FORBIDDEN: Case Studies, Appendices, Polymer Chemistry, CIO Services.
%s
Structure:
1. Industrial System Architecture
2. Hardware/Software Integration Specifications
3. 20-Step Advanced Standard Operating Procedure (Detailed Paragraphs)
4. Failure Mode and Effects Analysis (FMEA)
5. ASTM/ANSI/OSHA Regulatory Compliance Matrix
6. Operational Maintenance & Calibration Intervals
7. Technical Performance Matrices (Load/Tension/Friction Tables)

JSON format:
{"content": "markdown manual"}`

	mechanicalOnly = "STRICTLY FORBIDDEN: Any mention of electrical properties, dielectric testing, or conductivity. Focus 100% on mechanical load, friction, and tensile physics."
)

// OpenAIClient drafts curriculum content through any OpenAI compatible chat completion endpoint.
type OpenAIClient struct {
	api   *openai.Client
	model string
}

var _ curriculum.ContentClient = (*OpenAIClient)(nil)

func NewOpenAIClient(conf core.AIConfig, httpClient ...*http.Client) *OpenAIClient {
	cfg := openai.DefaultConfig(conf.APIKey)
	if conf.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(conf.BaseURL, "/")
	}
	if len(httpClient) > 0 && httpClient[0] != nil {
		cfg.HTTPClient = httpClient[0]
	}
	model := conf.Model
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}
	return &OpenAIClient{api: openai.NewClientWithConfig(cfg), model: model}
}

func (c *OpenAIClient) GenerateOutline(ctx context.Context, topic string) (curriculum.Outline, error) {
	var outline curriculum.Outline
	if err := c.complete(ctx, architectInstruction, fmt.Sprintf(outlinePrompt, topic), &outline); err != nil {
		return curriculum.Outline{}, errors.Wrapf(err, "outline for %q", topic)
	}
	return outline, nil
}

func (c *OpenAIClient) GenerateLesson(ctx context.Context, req curriculum.LessonRequest) (curriculum.LessonDetails, error) {
	var prompt string
	if req.Type == course.LessonQuiz {
		prompt = fmt.Sprintf(quizPrompt, req.LessonTitle, req.ModuleTitle, req.CourseTitle)
	} else {
		var extra string
		if title := strings.ToLower(req.CourseTitle); strings.Contains(title, "rope") || strings.Contains(title, "rigging") {
			extra = mechanicalOnly + "\n"
		}
		prompt = fmt.Sprintf(manualPrompt, req.LessonTitle, req.ModuleTitle, req.CourseTitle, extra)
	}

	var raw struct {
		Content       string         `json:"content"`
		QuizQuestions []quizQuestion `json:"quiz_questions"`
	}
	if err := c.complete(ctx, writerInstruction, prompt, &raw); err != nil {
		return curriculum.LessonDetails{}, errors.Wrapf(err, "lesson %q", req.LessonTitle)
	}

	details := curriculum.LessonDetails{Content: raw.Content}
	for _, q := range raw.QuizQuestions {
		details.QuizQuestions = append(details.QuizQuestions, q.toQuestion())
	}
	return details, nil
}

// quizQuestion accepts both spellings of the answer index models tend to produce.
type quizQuestion struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex *int     `json:"correct_index"`
	CamelIndex   *int     `json:"correctIndex"`
}

func (q quizQuestion) toQuestion() course.QuizQuestion {
	qq := course.QuizQuestion{Question: q.Question, Options: q.Options}
	switch {
	case q.CorrectIndex != nil:
		qq.CorrectIndex = *q.CorrectIndex
	case q.CamelIndex != nil:
		qq.CorrectIndex = *q.CamelIndex
	}
	return qq
}

func (c *OpenAIClient) complete(ctx context.Context, system, prompt string, dest interface{}) error {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		if isRateLimit(err) {
			return errors.Wrap(curriculum.ErrRateLimited, err.Error())
		}
		return err
	}
	if len(resp.Choices) == 0 {
		return errors.New("empty completion")
	}
	if err := json.Unmarshal([]byte(curriculum.CleanJSON(resp.Choices[0].Message.Content)), dest); err != nil {
		return errors.Wrap(err, "decoding completion")
	}
	return nil
}

func isRateLimit(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return strings.Contains(err.Error(), "RESOURCE_EXHAUSTED")
}
