// Package report aggregates the platform activity shown on the admin dashboard and mailed every week.
package report

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/achievement"
	"github.com/trezcool/tallman/core/course"
	"github.com/trezcool/tallman/core/enrollment"
	"github.com/trezcool/tallman/core/user"
)

type (
	Report struct {
		GeneratedAt        time.Time   `json:"generated_at"`
		TotalUsers         int         `json:"total_users"`
		ActiveLearners     int         `json:"active_learners"`
		PendingApprovals   int         `json:"pending_approvals"`
		Enrollments        int         `json:"enrollments"`
		Completions        int         `json:"completions"`
		AvgCompletionRate  int         `json:"avg_completion_rate"` // percent of enrollments completed
		CertificatesIssued int         `json:"certificates_issued"`
		PointsIssued       int         `json:"points_issued"`
		Courses            []CourseRow `json:"courses"`
		Branches           []BranchRow `json:"branches"`
	}

	CourseRow struct {
		CourseID    string        `json:"course_id"`
		Name        string        `json:"course_name"`
		Status      course.Status `json:"status"`
		Enrolled    int           `json:"enrolled"`
		Completed   int           `json:"completed"`
		AvgProgress int           `json:"avg_progress"`
	}

	BranchRow struct {
		BranchID    string `json:"branch_id"`
		Name        string `json:"name"`
		Users       int    `json:"users"`
		Points      int    `json:"points"`
		Completions int    `json:"completions"`
	}
)

type (
	UserStore interface {
		Query(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error)
	}
	CourseStore interface {
		Query(ctx context.Context, filter *course.QueryFilter) ([]course.Course, error)
	}
	EnrollmentStore interface {
		Query(ctx context.Context, filter *enrollment.QueryFilter) ([]enrollment.Enrollment, error)
	}
	CertificateStore interface {
		Certificates(ctx context.Context, filter achievement.CertificateFilter) ([]achievement.Certificate, error)
	}

	Service struct {
		users        UserStore
		courses      CourseStore
		enrollments  EnrollmentStore
		certificates CertificateStore
	}
)

func NewService(users UserStore, courses CourseStore, enrollments EnrollmentStore, certificates CertificateStore) *Service {
	return &Service{users: users, courses: courses, enrollments: enrollments, certificates: certificates}
}

// Build computes the report from the current state of the stores.
func (svc *Service) Build(ctx context.Context) (Report, error) {
	users, err := svc.users.Query(ctx, nil, []core.DBOrdering{{Field: "name", Ascending: true}})
	if err != nil {
		return Report{}, errors.Wrap(err, "querying users")
	}
	courses, err := svc.courses.Query(ctx, nil)
	if err != nil {
		return Report{}, errors.Wrap(err, "querying courses")
	}
	enrollments, err := svc.enrollments.Query(ctx, nil)
	if err != nil {
		return Report{}, errors.Wrap(err, "querying enrollments")
	}
	certs, err := svc.certificates.Certificates(ctx, achievement.CertificateFilter{})
	if err != nil {
		return Report{}, errors.Wrap(err, "querying certificates")
	}

	rep := Report{
		GeneratedAt:        time.Now().UTC(),
		TotalUsers:         len(users),
		Enrollments:        len(enrollments),
		CertificatesIssued: len(certs),
		Courses:            make([]CourseRow, 0, len(courses)),
		Branches:           make([]BranchRow, 0, len(user.Branches)),
	}

	branches := make(map[string]*BranchRow)
	branchOf := make(map[string]string, len(users))
	for _, b := range user.Branches {
		branches[b.ID] = &BranchRow{BranchID: b.ID, Name: b.Name}
	}
	for _, usr := range users {
		rep.PointsIssued += usr.Points
		if usr.IsOnHold() {
			rep.PendingApprovals++
		} else if usr.IsActive {
			rep.ActiveLearners++
		}
		branchOf[usr.ID] = usr.BranchID
		row, ok := branches[usr.BranchID]
		if !ok {
			row = &BranchRow{BranchID: usr.BranchID, Name: usr.BranchID}
			branches[usr.BranchID] = row
		}
		row.Users++
		row.Points += usr.Points
	}

	type courseTotals struct{ enrolled, completed, progress int }
	totals := make(map[string]*courseTotals, len(courses))
	for _, e := range enrollments {
		t, ok := totals[e.CourseID]
		if !ok {
			t = &courseTotals{}
			totals[e.CourseID] = t
		}
		t.enrolled++
		t.progress += e.ProgressPercent
		if e.Status == enrollment.StatusCompleted {
			t.completed++
			rep.Completions++
			if row, ok := branches[branchOf[e.UserID]]; ok {
				row.Completions++
			}
		}
	}
	if rep.Enrollments > 0 {
		rep.AvgCompletionRate = core.ClampPercent(float64(rep.Completions) / float64(rep.Enrollments) * 100)
	}

	for _, c := range courses {
		row := CourseRow{CourseID: c.ID, Name: c.Name, Status: c.Status}
		if t, ok := totals[c.ID]; ok {
			row.Enrolled = t.enrolled
			row.Completed = t.completed
			row.AvgProgress = core.ClampPercent(float64(t.progress) / float64(t.enrolled))
		}
		rep.Courses = append(rep.Courses, row)
	}
	sort.SliceStable(rep.Courses, func(i, j int) bool { return rep.Courses[i].Enrolled > rep.Courses[j].Enrolled })

	for _, b := range user.Branches {
		rep.Branches = append(rep.Branches, *branches[b.ID])
		delete(branches, b.ID)
	}
	// users of retired branches
	extra := make([]BranchRow, 0, len(branches))
	for _, row := range branches {
		extra = append(extra, *row)
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i].BranchID < extra[j].BranchID })
	rep.Branches = append(rep.Branches, extra...)
	return rep, nil
}
