// Package seed installs the base curriculum, the default badges, the opening forum posts and the first admin.
// Running it again only fills in what is missing.
package seed

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/achievement"
	"github.com/trezcool/tallman/core/course"
	"github.com/trezcool/tallman/core/forum"
	"github.com/trezcool/tallman/core/user"
)

// Badges are created alongside the base curriculum.
var Badges = []achievement.Badge{
	{ID: "b_safety_vanguard", Name: "Safety Vanguard", Criteria: "Complete the HV Core", Kind: achievement.KindCourseCompletion, CourseID: "c_testing"},
	{ID: "b_master_rigger", Name: "Master Rigger", Criteria: "Complete Lineman Rigging & Rope Science", Kind: achievement.KindCourseCompletion, CourseID: "c_rope"},
	{ID: "b_first_certificate", Name: "First Certificate", Criteria: "Complete any course", Kind: achievement.KindCourseCount, Threshold: 1},
	{ID: "b_curriculum_scholar", Name: "Curriculum Scholar", Criteria: "Complete three courses", Kind: achievement.KindCourseCount, Threshold: 3},
	{ID: "b_spark", Name: "Spark", Criteria: "Earn 100 points", Kind: achievement.KindPoints, Threshold: 100},
	{ID: "b_high_voltage", Name: "High Voltage", Criteria: "Earn 500 points", Kind: achievement.KindPoints, Threshold: 500},
}

// Posts open the community board.
var Posts = []forum.Post{
	{
		ID:           "p_astm_d120",
		AuthorName:   "Richard Tallman",
		AuthorAvatar: "https://images.unsplash.com/photo-1507003211169-0a1dd7228f2d?q=80&w=1974&auto=format&fit=crop",
		Title:        "ASTM D120 Updates for 2025",
		Content:      "All dielectric lab technicians should review the revised ozone resistance thresholds for Class 2 sleeves before the next audit.",
		Category:     "Engineering & Tech",
		Replies:      4,
		IsPinned:     true,
	},
}

type Result struct {
	Courses      int
	Badges       int
	Posts        int
	AdminCreated bool
}

func (r Result) String() string {
	return fmt.Sprintf("%d course(s), %d badge(s), %d post(s), admin created: %t", r.Courses, r.Badges, r.Posts, r.AdminCreated)
}

type Seeder struct {
	courses *course.Service
	badges  *achievement.Service
	posts   *forum.Service
	users   *user.Service
	conf    *core.Config
	logger  core.Logger
}

func New(courses *course.Service, badges *achievement.Service, posts *forum.Service, users *user.Service, conf *core.Config, logger core.Logger) *Seeder {
	return &Seeder{courses: courses, badges: badges, posts: posts, users: users, conf: conf, logger: logger}
}

// Run creates every base course, default badge, opening post and, when configured, the seed admin that does not exist yet.
func (s *Seeder) Run(ctx context.Context) (Result, error) {
	var res Result

	courses, err := BaseCourses()
	if err != nil {
		return res, err
	}
	for _, c := range courses {
		if _, err := s.courses.Get(ctx, c.ID); err == nil {
			continue
		} else if errors.Cause(err) != course.ErrNotFound {
			return res, errors.Wrapf(err, "checking course %s", c.ID)
		}
		if _, err := s.courses.Save(ctx, c); err != nil {
			return res, errors.Wrapf(err, "seeding course %s", c.ID)
		}
		res.Courses++
	}

	for _, b := range Badges {
		if _, err := s.badges.GetBadge(ctx, b.ID); err == nil {
			continue
		} else if errors.Cause(err) != achievement.ErrBadgeNotFound {
			return res, errors.Wrapf(err, "checking badge %s", b.ID)
		}
		if _, err := s.badges.SaveBadge(ctx, b); err != nil {
			return res, errors.Wrapf(err, "seeding badge %s", b.ID)
		}
		res.Badges++
	}

	for _, p := range Posts {
		if _, err := s.posts.Get(ctx, p.ID); err == nil {
			continue
		} else if errors.Cause(err) != forum.ErrNotFound {
			return res, errors.Wrapf(err, "checking post %s", p.ID)
		}
		if _, err := s.posts.Import(ctx, p); err != nil {
			return res, errors.Wrapf(err, "seeding post %s", p.ID)
		}
		res.Posts++
	}

	created, err := s.seedAdmin(ctx)
	if err != nil {
		return res, err
	}
	res.AdminCreated = created

	s.logger.Info("seed: " + res.String())
	return res, nil
}

func (s *Seeder) seedAdmin(ctx context.Context) (bool, error) {
	sc := s.conf.Seed
	if sc.AdminEmail == "" || sc.AdminPassword == "" {
		return false, nil
	}
	if _, err := s.users.GetByEmail(ctx, sc.AdminEmail); err == nil {
		return false, nil
	} else if errors.Cause(err) != user.ErrNotFound {
		return false, errors.Wrap(err, "checking seed admin")
	}
	_, err := s.users.Create(ctx, user.NewUser{
		Name:     sc.AdminName,
		Email:    sc.AdminEmail,
		Password: sc.AdminPassword,
		Roles:    []string{user.RoleSuperAdmin},
	})
	if err != nil {
		return false, errors.Wrap(err, "creating seed admin")
	}
	return true, nil
}
