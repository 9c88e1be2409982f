package course

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tallman/core"
)

func quizLesson(correct ...int) Lesson {
	l := Lesson{ID: "q", Type: LessonQuiz}
	for _, c := range correct {
		l.QuizQuestions = append(l.QuizQuestions, QuizQuestion{Question: "?", Options: []string{"a", "b", "c", "d"}, CorrectIndex: c})
	}
	return l
}

func TestCourse_Normalize(t *testing.T) {
	c := Course{ID: "c_x", Modules: []Module{
		{Title: "One", Lessons: []Lesson{{Title: "a"}, {ID: "keep", Title: "b", Type: LessonVideo, DurationMinutes: 40}}},
		{ID: "m_custom", Title: "Two", Lessons: []Lesson{{Title: "c", Type: LessonQuiz}}},
	}}
	c.Normalize()

	assert.Equal(t, "m_c_x_0", c.Modules[0].ID)
	assert.Equal(t, "m_custom", c.Modules[1].ID)
	assert.Equal(t, 1, c.Modules[1].Position)
	assert.Equal(t, "c_x", c.Modules[1].CourseID)

	first := c.Modules[0].Lessons[0]
	assert.Equal(t, "l_c_x_0_0", first.ID)
	assert.Equal(t, "m_c_x_0", first.ModuleID)
	assert.Equal(t, LessonDocument, first.Type)
	assert.Equal(t, DefaultLessonMinutes, first.DurationMinutes)

	kept := c.Modules[0].Lessons[1]
	assert.Equal(t, "keep", kept.ID)
	assert.Equal(t, LessonVideo, kept.Type)
	assert.Equal(t, 40, kept.DurationMinutes)

	assert.Equal(t, "m_custom", c.Modules[1].Lessons[0].ModuleID)
	assert.Equal(t, 3, c.TotalLessons())
	assert.Equal(t, 40+2*DefaultLessonMinutes, c.DurationMinutes())

	next, ok := c.NextLesson([]string{"l_c_x_0_0"})
	require.True(t, ok)
	assert.Equal(t, "keep", next.ID)
	_, ok = c.NextLesson([]string{"l_c_x_0_0", "keep", "l_c_x_1_0"})
	assert.False(t, ok)

	_, ok = c.FindLesson("nope")
	assert.False(t, ok)
}

func TestPassingScore(t *testing.T) {
	for total, want := range map[int]int{1: 1, 3: 3, 4: 3, 5: 4, 10: 7} {
		assert.Equal(t, want, PassingScore(total), "total: %d", total)
	}
}

func TestGradeQuiz(t *testing.T) {
	tests := []struct {
		name       string
		lesson     Lesson
		answers    []int
		wantScore  int
		wantPassed bool
		wantErr    error
	}{
		{name: "not a quiz", lesson: Lesson{Type: LessonDocument}, answers: []int{0}, wantErr: ErrNotAQuiz},
		{name: "no questions", lesson: quizLesson(), wantErr: ErrNoQuestions},
		{name: "missing answers", lesson: quizLesson(0, 1), answers: []int{0}, wantErr: ErrUnansweredQuiz},
		{name: "perfect", lesson: quizLesson(0, 1, 2, 3), answers: []int{0, 1, 2, 3}, wantScore: 4, wantPassed: true},
		{name: "just enough", lesson: quizLesson(0, 1, 2, 3), answers: []int{0, 1, 2, 0}, wantScore: 3, wantPassed: true},
		{name: "failed", lesson: quizLesson(0, 1, 2, 3), answers: []int{0, 1, 0, 0}, wantScore: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := GradeQuiz(tt.lesson, tt.answers)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantScore, res.Score)
			assert.Equal(t, tt.wantPassed, res.Passed)
			assert.Equal(t, len(tt.lesson.QuizQuestions), res.Total)
			assert.Len(t, res.Corrected, res.Total)
		})
	}
}

func TestQueryFilter_Match(t *testing.T) {
	c := Course{Name: "Rope Science", CategoryID: "safety", Difficulty: DifficultyAdvanced, Status: StatusPublished}
	tests := []struct {
		name   string
		filter *QueryFilter
		want   bool
	}{
		{name: "nil", want: true},
		{name: "search", filter: &QueryFilter{Search: "rope"}, want: true},
		{name: "search miss", filter: &QueryFilter{Search: "warehouse"}},
		{name: "category", filter: &QueryFilter{CategoryID: "safety"}, want: true},
		{name: "difficulty ignores case", filter: &QueryFilter{Difficulty: "advanced"}, want: true},
		{name: "statuses", filter: &QueryFilter{Statuses: []Status{StatusDraft, StatusPublished}}, want: true},
		{name: "status miss", filter: &QueryFilter{Statuses: []Status{StatusDraft}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(c))
		})
	}
}

func TestSaveCourse_Validate(t *testing.T) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)

	valid := func() SaveCourse {
		return SaveCourse{
			Name:       "  Forklift Basics ",
			CategoryID: "Safety",
			Modules: []Module{{Title: "Intro", Lessons: []Lesson{
				{Title: "Check", Type: LessonQuiz, QuizQuestions: []QuizQuestion{{Question: "?", Options: []string{"a", "b"}, CorrectIndex: 1}}},
			}}},
		}
	}

	sc := valid()
	require.NoError(t, sc.Validate(validate))
	assert.Equal(t, "Forklift Basics", sc.Name)
	assert.Equal(t, "safety", sc.CategoryID)
	assert.Equal(t, StatusDraft, sc.Status)
	assert.Equal(t, DifficultyBeginner, sc.Difficulty)

	tests := []struct {
		name   string
		modify func(sc *SaveCourse)
	}{
		{name: "no name", modify: func(sc *SaveCourse) { sc.Name = " " }},
		{name: "unknown category", modify: func(sc *SaveCourse) { sc.CategoryID = "cooking" }},
		{name: "bad id", modify: func(sc *SaveCourse) { sc.ID = "c-forklift" }},
		{name: "bad status", modify: func(sc *SaveCourse) { sc.Status = "live" }},
		{name: "rating too high", modify: func(sc *SaveCourse) { sc.Rating = 6 }},
		{name: "untitled lesson", modify: func(sc *SaveCourse) { sc.Modules[0].Lessons[0].Title = "" }},
		{name: "correct index out of range", modify: func(sc *SaveCourse) { sc.Modules[0].Lessons[0].QuizQuestions[0].CorrectIndex = 2 }},
		{name: "single option", modify: func(sc *SaveCourse) { sc.Modules[0].Lessons[0].QuizQuestions[0].Options = []string{"a"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := valid()
			tt.modify(&sc)
			_, ok := sc.Validate(validate).(validator.ValidationErrors)
			assert.True(t, ok)
		})
	}
}
