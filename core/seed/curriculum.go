package seed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/tallman/core/course"
	appfs "github.com/trezcool/tallman/fs"
)

const (
	curriculumFile = "assets/curriculum.json"
	manualFile     = "assets/manual.md.tmpl"

	manualMinutes = 60
	auditMinutes  = 20
)

type (
	baseModule struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}

	baseQuiz struct {
		Question string   `json:"question"`
		Options  []string `json:"options"`
	}

	baseCourse struct {
		ID               string            `json:"course_id"`
		Name             string            `json:"course_name"`
		ShortDescription string            `json:"short_description"`
		ThumbnailURL     string            `json:"thumbnail_url"`
		CategoryID       string            `json:"category_id"`
		InstructorID     string            `json:"instructor_id"`
		Difficulty       course.Difficulty `json:"difficulty"`
		Rating           float64           `json:"rating"`
		Modules          []baseModule      `json:"modules"`
		Quizzes          []baseQuiz        `json:"quizzes"`
	}
)

var manualFuncs = template.FuncMap{
	"upper": strings.ToUpper,
	"inc":   func(i int) int { return i + 1 },
}

// BaseCourses builds the published base curriculum from the embedded catalog.
// Every module holds a technical manual followed by an audit quiz whose first option is always correct.
func BaseCourses() ([]course.Course, error) {
	raw, err := appfs.FS.ReadFile(curriculumFile)
	if err != nil {
		return nil, errors.Wrap(err, "reading base curriculum")
	}
	var catalog []baseCourse
	if err := json.Unmarshal(raw, &catalog); err != nil {
		return nil, errors.Wrap(err, "decoding base curriculum")
	}
	manual, err := template.New("manual.md.tmpl").Funcs(manualFuncs).ParseFS(appfs.FS, manualFile)
	if err != nil {
		return nil, errors.Wrap(err, "parsing manual template")
	}

	now := time.Now().UTC()
	courses := make([]course.Course, 0, len(catalog))
	for _, bc := range catalog {
		c := course.Course{
			ID:               bc.ID,
			Name:             bc.Name,
			ShortDescription: bc.ShortDescription,
			ThumbnailURL:     bc.ThumbnailURL,
			CategoryID:       bc.CategoryID,
			InstructorID:     bc.InstructorID,
			Status:           course.StatusPublished,
			Difficulty:       bc.Difficulty,
			Rating:           bc.Rating,
			IsBase:           true,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		for i, bm := range bc.Modules {
			content, err := renderManual(manual, i+1, bm)
			if err != nil {
				return nil, errors.Wrapf(err, "rendering manual %s/%d", bc.ID, i)
			}
			prefix := fmt.Sprintf("%s_%d", strings.TrimPrefix(bc.ID, "c_"), i)
			c.Modules = append(c.Modules, course.Module{
				ID:    "m_" + prefix,
				Title: bm.Title,
				Lessons: []course.Lesson{
					{
						ID:              "l_" + prefix + "_doc",
						Title:           bm.Title + ": Technical Manual",
						Type:            course.LessonDocument,
						DurationMinutes: manualMinutes,
						Content:         content,
					},
					{
						ID:              "l_" + prefix + "_quiz",
						Title:           bm.Title + ": Technical Audit",
						Type:            course.LessonQuiz,
						DurationMinutes: auditMinutes,
						QuizQuestions:   auditQuestions(bm, bc.Quizzes),
					},
				},
			})
		}
		c.Normalize()
		courses = append(courses, c)
	}
	return courses, nil
}

func renderManual(tmpl *template.Template, index int, bm baseModule) (string, error) {
	data := struct {
		Title  string
		Detail string
		Index  int
		Steps  []string
	}{
		Title:  bm.Title,
		Detail: bm.Detail,
		Index:  index,
		Steps: []string{
			fmt.Sprintf("Verify the work environment and the assets involved in %s.", bm.Title),
			"Confirm every reading against the applicable manufacturer and ASTM tolerances.",
			"Log the results in P21 and flag any deviation to the branch lead.",
			"Tag defective assets as out of service before they leave the bench.",
		},
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func auditQuestions(bm baseModule, shared []baseQuiz) []course.QuizQuestion {
	qs := []course.QuizQuestion{{
		Question: fmt.Sprintf("What is the technical focus of %q?", bm.Title),
		Options: []string{
			strings.SplitN(bm.Detail, ". ", 2)[0],
			"Office decoration standards",
			"Social media outreach",
			"Break room scheduling",
		},
	}}
	for _, q := range shared {
		qs = append(qs, course.QuizQuestion{Question: q.Question, Options: q.Options})
	}
	return qs
}
