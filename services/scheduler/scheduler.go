package schedsvc

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/pkg/errors"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/report"
	"github.com/trezcool/tallman/core/user"
)

const reportTimeout = 2 * time.Minute

type (
	ReportBuilder interface {
		Build(ctx context.Context) (report.Report, error)
	}

	AdminStore interface {
		Query(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error)
	}

	// Scheduler runs the periodic jobs: for now the weekly training report.
	Scheduler struct {
		cron    *gocron.Scheduler
		reports ReportBuilder
		admins  AdminStore
		mailSvc core.EmailService
		conf    *core.Config
		logger  core.Logger
	}
)

func New(reports ReportBuilder, admins AdminStore, mailSvc core.EmailService, conf *core.Config, logger core.Logger) *Scheduler {
	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll()
	return &Scheduler{cron: cron, reports: reports, admins: admins, mailSvc: mailSvc, conf: conf, logger: logger}
}

// Start registers the jobs and runs them in the background.
func (s *Scheduler) Start() error {
	_, err := s.cron.Cron(s.conf.Scheduler.ReportCron).Tag("weekly_report").Do(s.runReport)
	if err != nil {
		return errors.Wrapf(err, "scheduling report on %q", s.conf.Scheduler.ReportCron)
	}
	s.cron.StartAsync()
	s.logger.Info(fmt.Sprintf("scheduler started: weekly report on %q", s.conf.Scheduler.ReportCron))
	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) runReport() {
	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()
	if err := s.SendReport(ctx); err != nil {
		s.logger.Error(fmt.Sprintf("weekly report: %v", err), err)
	}
}

// SendReport builds the report and mails it, with its spreadsheet attached, to every active admin.
func (s *Scheduler) SendReport(ctx context.Context) error {
	active := true
	admins, err := s.admins.Query(ctx, &user.QueryFilter{Roles: user.AdminRoles, IsActive: &active}, nil)
	if err != nil {
		return errors.Wrap(err, "querying admins")
	}
	if len(admins) == 0 {
		s.logger.Warn("weekly report: no active admin to send it to")
		return nil
	}

	rep, err := s.reports.Build(ctx)
	if err != nil {
		return errors.Wrap(err, "building report")
	}
	var sheet bytes.Buffer
	if err := report.WriteXLSX(&sheet, rep); err != nil {
		return errors.Wrap(err, "writing report")
	}

	data := struct {
		GeneratedAt        string
		ActiveLearners     int
		AvgCompletionRate  int
		CertificatesIssued int
	}{
		GeneratedAt:        rep.GeneratedAt.Format("January 2, 2006"),
		ActiveLearners:     rep.ActiveLearners,
		AvgCompletionRate:  rep.AvgCompletionRate,
		CertificatesIssued: rep.CertificatesIssued,
	}
	filename := fmt.Sprintf("training-report-%s.xlsx", rep.GeneratedAt.Format("2006-01-02"))

	// each admin gets a private copy
	msgs := make([]*core.EmailMessage, 0, len(admins))
	for _, admin := range admins {
		msg := &core.EmailMessage{
			To:           []mail.Address{{Name: admin.Name, Address: admin.Email}},
			Subject:      "Weekly training report",
			TemplateName: "weekly_report",
			TemplateData: data,
		}
		if err := msg.Attach(bytes.NewReader(sheet.Bytes()), filename, report.ContentTypeXLSX); err != nil {
			return errors.Wrap(err, "attaching report")
		}
		msgs = append(msgs, msg)
	}

	s.mailSvc.SendMessages(msgs...)
	s.logger.Info(fmt.Sprintf("weekly report sent to %d admin(s)", len(admins)))
	return nil
}
