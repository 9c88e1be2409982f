// Package curriculum drafts whole courses from a topic with a generative content client.
package curriculum

import (
	"context"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/tallman/core/course"
)

// ErrRateLimited is returned by a ContentClient when the provider throttles requests.
var ErrRateLimited = errors.New("content provider rate limit reached")

type (
	OutlineLesson struct {
		LessonTitle string `json:"lesson_title"`
		LessonType  string `json:"lesson_type"`
		Duration    int    `json:"duration"`
	}

	OutlineModule struct {
		ModuleTitle string          `json:"module_title"`
		Lessons     []OutlineLesson `json:"lessons"`
	}

	// Outline is the course skeleton drafted for a topic.
	Outline struct {
		Title       string          `json:"title"`
		Description string          `json:"description"`
		Modules     []OutlineModule `json:"modules"`
	}

	LessonRequest struct {
		CourseTitle string
		ModuleTitle string
		LessonTitle string
		Type        course.LessonType
	}

	LessonDetails struct {
		Content       string                `json:"content"`
		QuizQuestions []course.QuizQuestion `json:"quiz_questions"`
	}

	// ContentClient drafts course content. Implementations return ErrRateLimited (possibly wrapped) when throttled.
	ContentClient interface {
		GenerateOutline(ctx context.Context, topic string) (Outline, error)
		GenerateLesson(ctx context.Context, req LessonRequest) (LessonDetails, error)
	}
)

// FallbackLesson is the placeholder used when a lesson could not be drafted.
func FallbackLesson(typ course.LessonType) LessonDetails {
	if typ == course.LessonQuiz {
		return LessonDetails{QuizQuestions: []course.QuizQuestion{{
			Question:     "System status?",
			Options:      []string{"Valid", "Error", "Retry", "N/A"},
			CorrectIndex: 0,
		}}}
	}
	return LessonDetails{Content: "Technical expansion required. Consult lead engineer for full manual."}
}

var (
	fenceRegex         = regexp.MustCompile("```json\\s*|```")
	trailingCommaRegex = regexp.MustCompile(`,(\s*[\]}])`)
	controlCharRegex   = regexp.MustCompile(`[\x{0000}-\x{001F}\x{007F}-\x{009F}]`)
)

// CleanJSON extracts the JSON object from a model response.
// Code fences and trailing commas are removed and control characters become spaces.
func CleanJSON(text string) string {
	if strings.TrimSpace(text) == "" {
		return "{}"
	}
	cleaned := strings.TrimSpace(fenceRegex.ReplaceAllString(text, ""))
	first, last := strings.Index(cleaned, "{"), strings.LastIndex(cleaned, "}")
	if first != -1 && last > first {
		cleaned = cleaned[first : last+1]
	}
	cleaned = trailingCommaRegex.ReplaceAllString(cleaned, "$1")
	return strings.TrimSpace(controlCharRegex.ReplaceAllString(cleaned, " "))
}

func lessonType(s string) course.LessonType {
	switch course.LessonType(strings.ToLower(strings.TrimSpace(s))) {
	case course.LessonQuiz:
		return course.LessonQuiz
	case course.LessonVideo:
		return course.LessonVideo
	}
	return course.LessonDocument
}
