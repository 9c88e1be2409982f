package curriculum

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/course"
)

type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateAborting  State = "aborting"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
	StateFailed    State = "failed"

	// GeneratedCategoryID and GeneratedInstructorID are assigned to every drafted course.
	GeneratedCategoryID   = "tech"
	GeneratedInstructorID = "inst_ai"

	// QuotaMessage is reported when a draft could not be stored because the storage is full.
	QuotaMessage = "System quota reached. Some content may not have saved."
)

var (
	// errors
	ErrBusy          = core.NewConflictError("an architect operation is already running")
	ErrTopicRequired = core.NewValidationError(
		errors.New("a topic is required"),
		core.FieldError{Field: "topic", Error: "a topic is required"},
	)
)

// Status is a snapshot of the current (or last) architect operation.
type Status struct {
	State         State      `json:"state"`
	Message       string     `json:"message"`
	CurrentCourse string     `json:"current_course"`
	CourseIndex   int        `json:"course_index"`
	CourseTotal   int        `json:"course_total"`
	LessonIndex   int        `json:"lesson_index"`
	LessonTotal   int        `json:"lesson_total"`
	CourseIDs     []string   `json:"course_ids"`
	Error         string     `json:"error,omitempty"`
	StartedAt     *time.Time `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
}

// IsBusy reports whether an operation is in progress.
func (s Status) IsBusy() bool {
	return s.State == StateRunning || s.State == StateAborting
}

// CourseSaver persists drafted courses.
type CourseSaver interface {
	Save(ctx context.Context, c course.Course) (course.Course, error)
}

// Architect runs one curriculum generation at a time in the background.
type Architect struct {
	client  ContentClient
	courses CourseSaver
	conf    core.AIConfig
	backoff Backoff
	logger  core.Logger

	mu     sync.Mutex
	status Status
	active bool
	cancel context.CancelFunc
	done   chan struct{}
}

func NewArchitect(client ContentClient, courses CourseSaver, conf core.AIConfig, logger core.Logger) *Architect {
	return &Architect{
		client:  client,
		courses: courses,
		conf:    conf,
		backoff: BackoffFromConfig(conf),
		logger:  logger,
		status:  Status{State: StateIdle, CourseIDs: []string{}},
	}
}

// StartSingle drafts one course about `topic`.
func (a *Architect) StartSingle(topic string) error {
	topic = core.CleanString(topic)
	if topic == "" {
		return ErrTopicRequired
	}
	return a.start([]string{topic})
}

// StartBulk drafts one course per topic, defaulting to the bootstrap topics.
func (a *Architect) StartBulk(topics []string) error {
	if len(topics) == 0 {
		topics = a.conf.BootstrapTopics
	}
	cleaned := make([]string, 0, len(topics))
	for _, t := range topics {
		if t = core.CleanString(t); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	if len(cleaned) == 0 {
		return ErrTopicRequired
	}
	return a.start(cleaned)
}

// Abort asks the running operation to stop. It reports false when nothing is running.
func (a *Architect) Abort() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status.State != StateRunning {
		return false
	}
	a.active = false
	a.status.State = StateAborting
	a.status.Message = "HALTING OPERATIONS..."
	a.cancel()
	return true
}

func (a *Architect) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.status
	st.CourseIDs = append([]string{}, a.status.CourseIDs...)
	return st
}

// Wait blocks until the current operation ends or ctx is done, then returns the status.
func (a *Architect) Wait(ctx context.Context) (Status, error) {
	a.mu.Lock()
	done := a.done
	a.mu.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return a.Status(), ctx.Err()
		}
	}
	return a.Status(), nil
}

func (a *Architect) start(topics []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status.IsBusy() {
		return ErrBusy
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now().UTC()
	a.active = true
	a.cancel = cancel
	a.done = make(chan struct{})
	a.status = Status{State: StateRunning, CourseTotal: len(topics), CourseIDs: []string{}, StartedAt: &now}

	go a.run(ctx, topics, a.done)
	return nil
}

func (a *Architect) run(ctx context.Context, topics []string, done chan struct{}) {
	defer close(done)

	var err error
	for i, topic := range topics {
		if !a.isActive() {
			break
		}
		a.update(func(st *Status) {
			st.CourseIndex = i + 1
			st.CurrentCourse = topic
			st.LessonIndex, st.LessonTotal = 0, 0
			st.Message = "ARCHITECTING: " + topic
		})
		if err = a.generate(ctx, topic); err != nil {
			break
		}
		if i < len(topics)-1 {
			_ = sleep(ctx, a.conf.CourseDelay)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancel()
	now := time.Now().UTC()
	a.status.FinishedAt = &now
	a.status.CurrentCourse = ""
	switch {
	case !a.active:
		a.status.State = StateAborted
		a.status.Message = "Operation aborted"
	case errors.Is(err, core.ErrStorageQuota):
		a.logger.Error("architect hit the storage quota", err)
		a.status.State = StateFailed
		a.status.Error = QuotaMessage
		a.status.Message = QuotaMessage
	case err != nil:
		a.status.State = StateFailed
		a.status.Error = err.Error()
		a.status.Message = err.Error()
	default:
		a.status.State = StateCompleted
		a.status.Message = fmt.Sprintf("%d course(s) deployed", len(a.status.CourseIDs))
	}
	a.active = false
}

// generate drafts and stores one course. Progress is saved as a draft after each module.
func (a *Architect) generate(ctx context.Context, topic string) error {
	var outline Outline
	err := retry(ctx, a.backoff, func(ctx context.Context) (err error) {
		outline, err = a.client.GenerateOutline(ctx, topic)
		return err
	})
	if err != nil {
		if !a.isActive() {
			return nil
		}
		a.logger.Error(fmt.Sprintf("outline for %q: %v", topic, err), err)
		return errors.Errorf("Architect failed for \"%s\"", topic)
	}
	if len(outline.Modules) == 0 {
		return errors.Errorf("Architect failed for \"%s\": outline has no modules", topic)
	}

	name := core.CleanString(outline.Title)
	if name == "" {
		name = topic
	}
	c := course.Course{
		ID:               fmt.Sprintf("c_%s_%d", core.Slugify(topic, "_"), time.Now().UnixNano()/int64(time.Millisecond)),
		Name:             name,
		ShortDescription: core.CleanString(outline.Description),
		ThumbnailURL:     fmt.Sprintf("https://picsum.photos/seed/%s/1200/600", url.PathEscape(topic)),
		CategoryID:       GeneratedCategoryID,
		InstructorID:     GeneratedInstructorID,
		Status:           course.StatusDraft,
		Difficulty:       course.DifficultyAdvanced,
		Rating:           5,
		Modules:          []course.Module{},
	}

	var total int
	for _, m := range outline.Modules {
		total += len(m.Lessons)
	}
	a.update(func(st *Status) { st.LessonTotal = total })

	saved := false
	for m, om := range outline.Modules {
		if !a.isActive() {
			return nil
		}
		mod := course.Module{
			ID:      fmt.Sprintf("m_%d_%s", m, c.ID),
			Title:   core.CleanString(om.ModuleTitle),
			Lessons: make([]course.Lesson, 0, len(om.Lessons)),
		}
		for l, ol := range om.Lessons {
			if !a.isActive() {
				return nil
			}
			a.update(func(st *Status) { st.Message = "INJECTING: " + ol.LessonTitle })
			mod.Lessons = append(mod.Lessons, a.lesson(ctx, c, mod, m, l, ol))
			a.update(func(st *Status) { st.LessonIndex++ })
			_ = sleep(ctx, a.conf.LessonDelay)
		}

		if !a.isActive() {
			return nil
		}
		c.Modules = append(c.Modules, mod)
		if _, err := a.courses.Save(ctx, c); err != nil {
			return errors.Wrapf(err, "saving %q", c.Name)
		}
		if !saved {
			saved = true
			a.update(func(st *Status) { st.CourseIDs = append(st.CourseIDs, c.ID) })
		}
	}

	if !a.isActive() {
		return nil
	}
	c.Status = course.StatusPublished
	if _, err := a.courses.Save(ctx, c); err != nil {
		return errors.Wrapf(err, "publishing %q", c.Name)
	}
	return nil
}

// lesson drafts a single lesson, falling back to placeholder content on failure.
func (a *Architect) lesson(ctx context.Context, c course.Course, mod course.Module, m, l int, ol OutlineLesson) course.Lesson {
	typ := lessonType(ol.LessonType)
	req := LessonRequest{CourseTitle: c.Name, ModuleTitle: mod.Title, LessonTitle: ol.LessonTitle, Type: typ}

	var details LessonDetails
	err := retry(ctx, a.backoff, func(ctx context.Context) (err error) {
		details, err = a.client.GenerateLesson(ctx, req)
		return err
	})
	details.QuizQuestions = validQuestions(details.QuizQuestions)
	if err != nil || (typ == course.LessonQuiz && len(details.QuizQuestions) == 0) {
		if err != nil && a.isActive() {
			a.logger.Warn(fmt.Sprintf("lesson %q: %v", ol.LessonTitle, err))
		}
		details = FallbackLesson(typ)
	}

	duration := ol.Duration
	if duration <= 0 {
		duration = course.DefaultLessonMinutes
	}
	lesson := course.Lesson{
		ID:              fmt.Sprintf("l_%d_%d_%s", m, l, c.ID),
		ModuleID:        mod.ID,
		Title:           core.CleanString(ol.LessonTitle),
		Type:            typ,
		DurationMinutes: duration,
		Content:         details.Content,
	}
	if typ == course.LessonQuiz {
		lesson.QuizQuestions = details.QuizQuestions
	}
	return lesson
}

// validQuestions drops the questions a learner could not answer.
func validQuestions(qs []course.QuizQuestion) []course.QuizQuestion {
	valid := qs[:0]
	for _, q := range qs {
		if core.CleanString(q.Question) != "" && len(q.Options) >= 2 && q.CorrectIndex >= 0 && q.CorrectIndex < len(q.Options) {
			valid = append(valid, q)
		}
	}
	return valid
}

func (a *Architect) isActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

func (a *Architect) update(fn func(st *Status)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(&a.status)
}
