package mentorship_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/mentorship"
	"github.com/trezcool/tallman/core/user"
	"github.com/trezcool/tallman/services/email"
	"github.com/trezcool/tallman/storage/database/dummy"
	"github.com/trezcool/tallman/tests"
)

func TestNewLog_Validate(t *testing.T) {
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())

	nl := mentorship.NewLog{MenteeID: " u1 ", Topic: " Rigging ", DurationMinutes: 45}
	require.NoError(t, nl.Validate(validate))
	assert.Equal(t, "u1", nl.MenteeID)
	assert.Equal(t, "Rigging", nl.Topic)

	for name, nl := range map[string]mentorship.NewLog{
		"no mentee":    {Topic: "x", DurationMinutes: 10},
		"no topic":     {MenteeID: "u1", DurationMinutes: 10},
		"no duration":  {MenteeID: "u1", Topic: "x"},
		"over a day":   {MenteeID: "u1", Topic: "x", DurationMinutes: 1441},
		"blank fields": {MenteeID: "  ", Topic: "  ", DurationMinutes: 10},
	} {
		t.Run(name, func(t *testing.T) {
			_, ok := nl.Validate(validate).(validator.ValidationErrors)
			assert.True(t, ok)
		})
	}
}

func TestService(t *testing.T) {
	ctx := context.Background()
	conf := core.NewTestConfig()
	db, err := dummydb.Open(0)
	require.NoError(t, err)
	usrRepo := dummydb.NewUserRepository(db)
	svc := mentorship.NewService(
		dummydb.NewMentorshipRepository(db),
		user.NewService(usrRepo, emailsvc.NewConsoleServiceMock(conf), conf),
	)

	mentor := testutil.CreateUser(t, usrRepo, "Mia Mentor", "mia@tallmanequipment.com", "", []string{user.RoleInstructor}, true)
	other := testutil.CreateUser(t, usrRepo, "Oli Other", "oli@tallmanequipment.com", "", []string{user.RoleInstructor}, true)
	admin := testutil.CreateUser(t, usrRepo, "Ada Admin", "ada@tallmanequipment.com", "", []string{user.RoleAdmin}, true)
	mentee := testutil.CreateUser(t, usrRepo, "Lee Learner", "lee@tallmanequipment.com", "", []string{user.RoleLearner}, true)

	_, err = svc.Add(ctx, mentor, mentorship.NewLog{MenteeID: "missing", Topic: "x", DurationMinutes: 10})
	verr, ok := err.(*core.ValidationError)
	require.True(t, ok, "want a validation error, got %v", err)
	assert.Equal(t, "mentee_id", verr.Fields[0].Field)

	older, err := svc.Add(ctx, mentor, mentorship.NewLog{
		MenteeID:        mentee.ID,
		Topic:           "Knots",
		DurationMinutes: 30,
		SessionDate:     time.Now().Add(-48 * time.Hour),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, older.ID)
	assert.Equal(t, mentor.ID, older.MentorID)

	latest, err := svc.Add(ctx, mentor, mentorship.NewLog{MenteeID: mentee.ID, Topic: "Climbing", DurationMinutes: 60})
	require.NoError(t, err)
	assert.False(t, latest.SessionDate.IsZero(), "session date defaults to now")

	logs, err := svc.Query(ctx, mentorship.QueryFilter{MenteeID: mentee.ID})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, latest.ID, logs[0].ID, "latest session first")

	logs, err = svc.Query(ctx, mentorship.QueryFilter{MentorID: other.ID})
	require.NoError(t, err)
	assert.Empty(t, logs)

	assert.Equal(t, mentorship.ErrForbidden, svc.Delete(ctx, other, older.ID))
	assert.True(t, core.IsForbidden(mentorship.ErrForbidden))
	require.NoError(t, svc.Delete(ctx, mentor, older.ID))
	require.NoError(t, svc.Delete(ctx, admin, latest.ID))
	assert.Equal(t, mentorship.ErrNotFound, svc.Delete(ctx, admin, latest.ID))
}
