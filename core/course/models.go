package course

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tallman/core"
)

type (
	Status     string
	Difficulty string
	LessonType string
)

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"

	DifficultyBeginner     Difficulty = "Beginner"
	DifficultyIntermediate Difficulty = "Intermediate"
	DifficultyAdvanced     Difficulty = "Advanced"

	LessonDocument LessonType = "document"
	LessonQuiz     LessonType = "quiz"
	LessonVideo    LessonType = "video"

	// PassRatio is the share of correct answers needed to pass a quiz.
	PassRatio = 0.7

	// DefaultLessonMinutes is used when a lesson has no duration.
	DefaultLessonMinutes = 15
)

// Category groups courses in the catalog.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
}

var Categories = []Category{
	{ID: "tech", Name: "Engineering & Tech", Icon: "🛠️"},
	{ID: "business", Name: "Strategy & Leadership", Icon: "📊"},
	{ID: "safety", Name: "Health & Safety", Icon: "🛡️"},
	{ID: "compliance", Name: "Regulatory", Icon: "⚖️"},
}

func GetCategory(id string) (Category, bool) {
	for _, c := range Categories {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}

type QuizQuestion struct {
	Question     string   `json:"question" validate:"required"`
	Options      []string `json:"options" validate:"min=2,dive,required"`
	CorrectIndex int      `json:"correct_index" validate:"min=0"`
}

type Lesson struct {
	ID              string         `json:"lesson_id"`
	ModuleID        string         `json:"module_id"`
	Title           string         `json:"lesson_title" validate:"required"`
	Type            LessonType     `json:"lesson_type" validate:"omitempty,oneof=document quiz video"`
	DurationMinutes int            `json:"duration_minutes" validate:"min=0"`
	Content         string         `json:"content,omitempty"`
	VideoURL        string         `json:"video_url,omitempty" validate:"omitempty,url"`
	QuizQuestions   []QuizQuestion `json:"quiz_questions,omitempty" validate:"dive"`
}

type Module struct {
	ID       string   `json:"module_id"`
	CourseID string   `json:"course_id"`
	Title    string   `json:"module_title" validate:"required"`
	Position int      `json:"position"`
	Lessons  []Lesson `json:"lessons" validate:"dive"`
}

type Course struct {
	ID               string     `json:"course_id"`
	Name             string     `json:"course_name"`
	ShortDescription string     `json:"short_description"`
	ThumbnailURL     string     `json:"thumbnail_url"`
	CategoryID       string     `json:"category_id"`
	InstructorID     string     `json:"instructor_id"`
	Status           Status     `json:"status"`
	Difficulty       Difficulty `json:"difficulty"`
	EnrolledCount    int        `json:"enrolled_count"`
	Rating           float64    `json:"rating"`
	IsBase           bool       `json:"is_base"`
	Modules          []Module   `json:"modules"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TotalLessons counts the lessons of every module.
func (c Course) TotalLessons() int {
	var n int
	for _, m := range c.Modules {
		n += len(m.Lessons)
	}
	return n
}

// Lessons returns every lesson in play order.
func (c Course) Lessons() []Lesson {
	lessons := make([]Lesson, 0, c.TotalLessons())
	for _, m := range c.Modules {
		lessons = append(lessons, m.Lessons...)
	}
	return lessons
}

func (c Course) FindLesson(id string) (Lesson, bool) {
	for _, m := range c.Modules {
		for _, l := range m.Lessons {
			if l.ID == id {
				return l, true
			}
		}
	}
	return Lesson{}, false
}

// NextLesson returns the first lesson not in `completed`.
func (c Course) NextLesson(completed []string) (Lesson, bool) {
	for _, l := range c.Lessons() {
		if !core.ContainsString(completed, l.ID) {
			return l, true
		}
	}
	return Lesson{}, false
}

// DurationMinutes sums the lesson durations.
func (c Course) DurationMinutes() int {
	var total int
	for _, l := range c.Lessons() {
		total += l.DurationMinutes
	}
	return total
}

// Normalize assigns missing module/lesson ids and keeps positions and parent ids consistent.
func (c *Course) Normalize() {
	for i := range c.Modules {
		m := &c.Modules[i]
		if m.ID == "" {
			m.ID = fmt.Sprintf("m_%s_%d", c.ID, i)
		}
		m.CourseID = c.ID
		m.Position = i
		for j := range m.Lessons {
			l := &m.Lessons[j]
			if l.ID == "" {
				l.ID = fmt.Sprintf("l_%s_%d_%d", c.ID, i, j)
			}
			l.ModuleID = m.ID
			if l.Type == "" {
				l.Type = LessonDocument
			}
			if l.DurationMinutes <= 0 {
				l.DurationMinutes = DefaultLessonMinutes
			}
		}
	}
}

// SaveCourse contains the information an admin provides to create or replace a Course.
type SaveCourse struct {
	ID               string     `json:"course_id" validate:"omitempty,slug"`
	Name             string     `json:"course_name" validate:"required"`
	ShortDescription string     `json:"short_description"`
	ThumbnailURL     string     `json:"thumbnail_url" validate:"omitempty,url"`
	CategoryID       string     `json:"category_id" validate:"required,category"`
	InstructorID     string     `json:"instructor_id"`
	Status           Status     `json:"status" validate:"omitempty,oneof=draft published archived"`
	Difficulty       Difficulty `json:"difficulty" validate:"omitempty,oneof=Beginner Intermediate Advanced"`
	Rating           float64    `json:"rating" validate:"min=0,max=5"`
	Modules          []Module   `json:"modules" validate:"dive"`
}

func (sc *SaveCourse) Validate(validate *validator.Validate) error {
	sc.ID = core.CleanString(sc.ID, true /* lower */)
	sc.Name = core.CleanString(sc.Name)
	sc.ShortDescription = core.CleanString(sc.ShortDescription)
	sc.CategoryID = core.CleanString(sc.CategoryID, true /* lower */)
	if sc.Status == "" {
		sc.Status = StatusDraft
	}
	if sc.Difficulty == "" {
		sc.Difficulty = DifficultyBeginner
	}
	return validate.Struct(sc)
}

type QueryFilter struct {
	Search     string
	CategoryID string
	Difficulty Difficulty
	Statuses   []Status
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.CategoryID = core.CleanString(qf.CategoryID, true /* lower */)
	qf.Difficulty = Difficulty(core.CleanString(string(qf.Difficulty)))
}

// Match reports whether `c` passes the filter.
func (qf *QueryFilter) Match(c Course) bool {
	if qf == nil {
		return true
	}
	if qf.Search != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(qf.Search)) {
		return false
	}
	if qf.CategoryID != "" && c.CategoryID != qf.CategoryID {
		return false
	}
	if qf.Difficulty != "" && !strings.EqualFold(string(c.Difficulty), string(qf.Difficulty)) {
		return false
	}
	if len(qf.Statuses) > 0 {
		for _, st := range qf.Statuses {
			if c.Status == st {
				return true
			}
		}
		return false
	}
	return true
}

// QuizResult is the outcome of a graded quiz attempt.
type QuizResult struct {
	Score     int   `json:"score"`
	Total     int   `json:"total"`
	Required  int   `json:"required"`
	Passed    bool  `json:"passed"`
	Corrected []int `json:"corrected"` // correct option index per question
}

// PassingScore is the number of correct answers needed out of `total`.
func PassingScore(total int) int {
	return int(math.Ceil(PassRatio * float64(total)))
}

var (
	ErrNotAQuiz       = core.NewValidationError(fmt.Errorf("lesson is not a quiz"))
	ErrNoQuestions    = core.NewValidationError(fmt.Errorf("quiz has no questions"))
	ErrUnansweredQuiz = core.NewValidationError(
		fmt.Errorf("all questions must be answered"),
		core.FieldError{Field: "answers", Error: "all questions must be answered"},
	)
)

// GradeQuiz scores `answers` (selected option index per question) against the lesson's questions.
func GradeQuiz(lesson Lesson, answers []int) (QuizResult, error) {
	if lesson.Type != LessonQuiz {
		return QuizResult{}, ErrNotAQuiz
	}
	total := len(lesson.QuizQuestions)
	if total == 0 {
		return QuizResult{}, ErrNoQuestions
	}
	if len(answers) != total {
		return QuizResult{}, ErrUnansweredQuiz
	}

	res := QuizResult{Total: total, Required: PassingScore(total), Corrected: make([]int, total)}
	for i, q := range lesson.QuizQuestions {
		res.Corrected[i] = q.CorrectIndex
		if answers[i] == q.CorrectIndex {
			res.Score++
		}
	}
	res.Passed = res.Score >= res.Required
	return res, nil
}
