package curriculum

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/course"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type fakeClient struct {
	mu          sync.Mutex
	outlineFn   func(ctx context.Context, topic string) (Outline, error)
	lessonFn    func(ctx context.Context, req LessonRequest) (LessonDetails, error)
	lessonCalls int
}

func (fc *fakeClient) GenerateOutline(ctx context.Context, topic string) (Outline, error) {
	return fc.outlineFn(ctx, topic)
}

func (fc *fakeClient) GenerateLesson(ctx context.Context, req LessonRequest) (LessonDetails, error) {
	fc.mu.Lock()
	fc.lessonCalls++
	fc.mu.Unlock()
	return fc.lessonFn(ctx, req)
}

type fakeSaver struct {
	mu      sync.Mutex
	courses map[string]course.Course
	saves   []course.Status
	err     error
}

func newFakeSaver() *fakeSaver {
	return &fakeSaver{courses: map[string]course.Course{}}
}

func (fs *fakeSaver) Save(_ context.Context, c course.Course) (course.Course, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.err != nil {
		return course.Course{}, fs.err
	}
	c.Normalize()
	fs.courses[c.ID] = c
	fs.saves = append(fs.saves, c.Status)
	return c, nil
}

func testOutline(topic string) Outline {
	return Outline{
		Title:       topic + " Mastery",
		Description: "About " + topic,
		Modules: []OutlineModule{
			{ModuleTitle: "Basics", Lessons: []OutlineLesson{
				{LessonTitle: "Manual", LessonType: "document", Duration: 60},
				{LessonTitle: "Audit", LessonType: "quiz"},
			}},
			{ModuleTitle: "Advanced", Lessons: []OutlineLesson{
				{LessonTitle: "Deep dive", LessonType: "DOCUMENT", Duration: 30},
			}},
		},
	}
}

func okLesson(_ context.Context, req LessonRequest) (LessonDetails, error) {
	if req.Type == course.LessonQuiz {
		return LessonDetails{QuizQuestions: []course.QuizQuestion{
			{Question: "Q1", Options: []string{"a", "b"}, CorrectIndex: 1},
			{Question: "bad", Options: []string{"a", "b"}, CorrectIndex: 5},
		}}, nil
	}
	return LessonDetails{Content: "content for " + req.LessonTitle}, nil
}

func testConfig(topics ...string) core.AIConfig {
	return core.AIConfig{
		MaxAttempts:     3,
		InitialBackoff:  time.Millisecond,
		MaxBackoff:      5 * time.Millisecond,
		BootstrapTopics: topics,
	}
}

func wait(t *testing.T, a *Architect) Status {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := a.Wait(ctx)
	require.NoError(t, err)
	return st
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "  ", want: "{}"},
		{name: "fenced", in: "```json\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "surrounding text", in: `Here you go: {"a": {"b": 2}} enjoy`, want: `{"a": {"b": 2}}`},
		{name: "trailing commas", in: `{"a": [1, 2,], "b": 3,}`, want: `{"a": [1, 2], "b": 3}`},
		{name: "control characters", in: "{\"a\":\t\"x\u0001y\"}", want: `{"a": "x y"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSON(tt.in))
		})
	}
}

func TestBackoff_delay(t *testing.T) {
	b := Backoff{Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond}
	want := []time.Duration{10, 20, 40, 50, 50}
	for n, w := range want {
		assert.Equal(t, w*time.Millisecond, b.delay(n), "retry %d", n)
	}
}

func TestRetry(t *testing.T) {
	b := Backoff{MaxAttempts: 3, Initial: time.Millisecond, Max: 2 * time.Millisecond}
	errBoom := errors.New("boom")

	tests := []struct {
		name      string
		failures  []error
		wantCalls int
		wantErr   error
	}{
		{name: "first try", wantCalls: 1},
		{name: "rate limited then ok", failures: []error{ErrRateLimited, errors.Wrap(ErrRateLimited, "429")}, wantCalls: 3},
		{name: "other error is not retried", failures: []error{errBoom}, wantCalls: 1, wantErr: errBoom},
		{name: "gives up", failures: []error{ErrRateLimited, ErrRateLimited, ErrRateLimited, ErrRateLimited}, wantCalls: 3, wantErr: ErrRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			err := retry(context.Background(), b, func(context.Context) error {
				calls++
				if calls <= len(tt.failures) {
					return tt.failures[calls-1]
				}
				return nil
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, tt.wantErr), "err = %v", err)
			}
		})
	}

	t.Run("cancelled while waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		slow := Backoff{MaxAttempts: 3, Initial: time.Hour}
		var calls int
		err := retry(ctx, slow, func(context.Context) error {
			calls++
			cancel()
			return ErrRateLimited
		})
		assert.Equal(t, 1, calls)
		assert.Equal(t, context.Canceled, err)
	})
}

func TestArchitect_StartSingle(t *testing.T) {
	saver := newFakeSaver()
	client := &fakeClient{
		outlineFn: func(_ context.Context, topic string) (Outline, error) { return testOutline(topic), nil },
		lessonFn:  okLesson,
	}
	a := NewArchitect(client, saver, testConfig(), nopLogger{})

	require.NoError(t, a.StartSingle("  Warehouse Management "))
	st := wait(t, a)

	assert.Equal(t, StateCompleted, st.State)
	assert.Empty(t, st.Error)
	assert.Equal(t, 1, st.CourseIndex)
	assert.Equal(t, 3, st.LessonIndex)
	assert.Equal(t, 3, st.LessonTotal)
	require.Len(t, st.CourseIDs, 1)
	assert.NotNil(t, st.FinishedAt)

	id := st.CourseIDs[0]
	assert.Regexp(t, `^c_warehouse_management_\d+$`, id)
	assert.Equal(t, []course.Status{course.StatusDraft, course.StatusDraft, course.StatusPublished}, saver.saves)

	c := saver.courses[id]
	assert.Equal(t, "Warehouse Management Mastery", c.Name)
	assert.Equal(t, course.StatusPublished, c.Status)
	assert.Equal(t, GeneratedCategoryID, c.CategoryID)
	assert.Equal(t, "https://picsum.photos/seed/Warehouse%20Management/1200/600", c.ThumbnailURL)
	require.Len(t, c.Modules, 2)
	assert.Equal(t, "m_0_"+id, c.Modules[0].ID)
	assert.Equal(t, "m_1_"+id, c.Modules[1].ID)

	doc, quiz := c.Modules[0].Lessons[0], c.Modules[0].Lessons[1]
	assert.Equal(t, "l_0_0_"+id, doc.ID)
	assert.Equal(t, 60, doc.DurationMinutes)
	assert.Equal(t, "content for Manual", doc.Content)
	assert.Equal(t, "l_0_1_"+id, quiz.ID)
	assert.Equal(t, course.LessonQuiz, quiz.Type)
	assert.Equal(t, course.DefaultLessonMinutes, quiz.DurationMinutes)
	assert.Len(t, quiz.QuizQuestions, 1, "invalid questions are dropped")
	assert.Equal(t, course.LessonDocument, c.Modules[1].Lessons[0].Type)
}

func TestArchitect_StartSingle_blankTopic(t *testing.T) {
	a := NewArchitect(&fakeClient{}, newFakeSaver(), testConfig(), nopLogger{})
	assert.Equal(t, ErrTopicRequired, a.StartSingle("   "))
	assert.Equal(t, StateIdle, a.Status().State)
}

func TestArchitect_StartBulk(t *testing.T) {
	saver := newFakeSaver()
	var topics []string
	var mu sync.Mutex
	client := &fakeClient{
		outlineFn: func(_ context.Context, topic string) (Outline, error) {
			mu.Lock()
			topics = append(topics, topic)
			mu.Unlock()
			return testOutline(topic), nil
		},
		lessonFn: okLesson,
	}
	a := NewArchitect(client, saver, testConfig("Rigging", "Leadership"), nopLogger{})

	require.NoError(t, a.StartBulk(nil))
	st := wait(t, a)

	assert.Equal(t, StateCompleted, st.State)
	assert.Equal(t, 2, st.CourseTotal)
	assert.Equal(t, 2, st.CourseIndex)
	assert.Len(t, st.CourseIDs, 2)
	assert.Equal(t, []string{"Rigging", "Leadership"}, topics)
	for _, id := range st.CourseIDs {
		assert.Equal(t, course.StatusPublished, saver.courses[id].Status)
	}
}

func TestArchitect_outlineFailure(t *testing.T) {
	var calls int
	client := &fakeClient{
		outlineFn: func(context.Context, string) (Outline, error) {
			calls++
			return Outline{}, ErrRateLimited
		},
		lessonFn: okLesson,
	}
	a := NewArchitect(client, newFakeSaver(), testConfig(), nopLogger{})

	require.NoError(t, a.StartBulk([]string{"Rope Science", "Never reached"}))
	st := wait(t, a)

	assert.Equal(t, StateFailed, st.State)
	assert.Equal(t, `Architect failed for "Rope Science"`, st.Error)
	assert.Equal(t, 3, calls, "rate limited outlines are retried")
	assert.Equal(t, 1, st.CourseIndex)
	assert.Empty(t, st.CourseIDs)
}

func TestArchitect_emptyOutline(t *testing.T) {
	client := &fakeClient{
		outlineFn: func(context.Context, string) (Outline, error) { return Outline{Title: "Empty"}, nil },
	}
	saver := newFakeSaver()
	a := NewArchitect(client, saver, testConfig(), nopLogger{})

	require.NoError(t, a.StartSingle("Empty"))
	st := wait(t, a)

	assert.Equal(t, StateFailed, st.State)
	assert.Contains(t, st.Error, `Architect failed for "Empty"`)
	assert.Empty(t, saver.courses)
}

func TestArchitect_lessonFallback(t *testing.T) {
	saver := newFakeSaver()
	client := &fakeClient{
		outlineFn: func(_ context.Context, topic string) (Outline, error) { return testOutline(topic), nil },
		lessonFn: func(context.Context, LessonRequest) (LessonDetails, error) {
			return LessonDetails{}, errors.New("malformed JSON")
		},
	}
	a := NewArchitect(client, saver, testConfig(), nopLogger{})

	require.NoError(t, a.StartSingle("Testing"))
	st := wait(t, a)

	require.Equal(t, StateCompleted, st.State)
	assert.Equal(t, 3, client.lessonCalls, "non rate limit failures are not retried")
	c := saver.courses[st.CourseIDs[0]]
	assert.Equal(t, FallbackLesson(course.LessonDocument).Content, c.Modules[0].Lessons[0].Content)
	assert.Equal(t, FallbackLesson(course.LessonQuiz).QuizQuestions, c.Modules[0].Lessons[1].QuizQuestions)
}

func TestArchitect_saveFailure(t *testing.T) {
	saver := newFakeSaver()
	saver.err = core.ErrStorageQuota
	client := &fakeClient{
		outlineFn: func(_ context.Context, topic string) (Outline, error) { return testOutline(topic), nil },
		lessonFn:  okLesson,
	}
	a := NewArchitect(client, saver, testConfig(), nopLogger{})

	require.NoError(t, a.StartSingle("Selling"))
	st := wait(t, a)

	assert.Equal(t, StateFailed, st.State)
	assert.Equal(t, QuotaMessage, st.Error)
	assert.Equal(t, QuotaMessage, st.Message)

	saver.err = errors.New("disk on fire")
	require.NoError(t, a.StartSingle("Selling"))
	st = wait(t, a)
	assert.Equal(t, StateFailed, st.State)
	assert.Contains(t, st.Message, "disk on fire")
}

func TestArchitect_busyAndAbort(t *testing.T) {
	saver := newFakeSaver()
	started := make(chan struct{})
	var once sync.Once
	client := &fakeClient{
		outlineFn: func(_ context.Context, topic string) (Outline, error) { return testOutline(topic), nil },
		lessonFn: func(ctx context.Context, req LessonRequest) (LessonDetails, error) {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return LessonDetails{}, ctx.Err()
		},
	}
	a := NewArchitect(client, saver, testConfig("A", "B"), nopLogger{})

	assert.False(t, a.Abort(), "nothing to abort yet")
	require.NoError(t, a.StartBulk(nil))

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("lesson generation never started")
	}

	assert.Equal(t, ErrBusy, a.StartSingle("C"))
	assert.Equal(t, ErrBusy, a.StartBulk(nil))
	assert.True(t, a.Status().IsBusy())

	require.True(t, a.Abort())
	st := wait(t, a)

	assert.Equal(t, StateAborted, st.State)
	assert.Equal(t, 1, st.CourseIndex, "second course never started")
	assert.Empty(t, saver.saves, "partial modules are not saved")

	// idle again: a new operation may start
	client.lessonFn = okLesson
	require.NoError(t, a.StartSingle("C"))
	st = wait(t, a)
	assert.Equal(t, StateCompleted, st.State)
	assert.Equal(t, fmt.Sprintf("%d course(s) deployed", 1), st.Message)
}
