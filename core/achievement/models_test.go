package achievement

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/user"
)

func TestBadge_Earned(t *testing.T) {
	tests := []struct {
		name      string
		badge     Badge
		points    int
		completed int
		courseID  string
		want      bool
	}{
		{name: "course completion", badge: Badge{Kind: KindCourseCompletion, CourseID: "c_rope"}, courseID: "c_rope", want: true},
		{name: "other course", badge: Badge{Kind: KindCourseCompletion, CourseID: "c_rope"}, courseID: "c_selling"},
		{name: "no course", badge: Badge{Kind: KindCourseCompletion, CourseID: "c_rope"}},
		{name: "course count reached", badge: Badge{Kind: KindCourseCount, Threshold: 3}, completed: 3, want: true},
		{name: "course count short", badge: Badge{Kind: KindCourseCount, Threshold: 3}, completed: 2},
		{name: "points reached", badge: Badge{Kind: KindPoints, Threshold: 500}, points: 510, want: true},
		{name: "points short", badge: Badge{Kind: KindPoints, Threshold: 500}, points: 499},
		{name: "unknown kind", badge: Badge{Kind: "streak", Threshold: 1}, points: 1000, completed: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.badge.Earned(tt.points, tt.completed, tt.courseID))
		})
	}
}

func TestGetLevelProgress(t *testing.T) {
	tests := []struct {
		points int
		want   LevelProgress
	}{
		{points: 0, want: LevelProgress{Level: 1, Points: 0, CurrentLevelPoints: 0, NextLevelPoints: 500, Percent: 0}},
		{points: 260, want: LevelProgress{Level: 1, Points: 260, CurrentLevelPoints: 0, NextLevelPoints: 500, Percent: 52}},
		{points: 600, want: LevelProgress{Level: 2, Points: 600, CurrentLevelPoints: 500, NextLevelPoints: 750, Percent: 40}},
		{points: 1000, want: LevelProgress{Level: 4, Points: 1000, CurrentLevelPoints: 1000, NextLevelPoints: 1250, Percent: 0}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GetLevelProgress(user.User{Points: tt.points}), "points: %d", tt.points)
	}
}

func TestNewCertificateID(t *testing.T) {
	id := NewCertificateID()
	assert.Regexp(t, `^CERT-[0-9A-F]{8}$`, id)
	assert.NotEqual(t, id, NewCertificateID())
}

func TestSaveBadge_Validate(t *testing.T) {
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())

	tests := []struct {
		name      string
		sb        SaveBadge
		wantField string
	}{
		{name: "completion badge", sb: SaveBadge{Name: " Rigger ", Kind: KindCourseCompletion, CourseID: "c_rope"}},
		{name: "completion badge without course", sb: SaveBadge{Name: "Rigger", Kind: KindCourseCompletion}, wantField: "course_id"},
		{name: "points badge", sb: SaveBadge{Name: "High Voltage", Kind: KindPoints, Threshold: 500}},
		{name: "points badge without threshold", sb: SaveBadge{Name: "High Voltage", Kind: KindPoints}, wantField: "threshold"},
		{name: "count badge without threshold", sb: SaveBadge{Name: "Scholar", Kind: KindCourseCount}, wantField: "threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sb.Validate(validate)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			verr, ok := err.(*core.ValidationError)
			if assert.True(t, ok, "want a validation error, got %v", err) {
				assert.Equal(t, tt.wantField, verr.Fields[0].Field)
			}
		})
	}

	sb := SaveBadge{Name: "x", Kind: "streak", Threshold: 1}
	_, ok := sb.Validate(validate).(validator.ValidationErrors)
	assert.True(t, ok)
}
