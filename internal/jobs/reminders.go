// Package jobs runs the scheduled background work of the server.
package jobs

import (
	"context"
	"time"

	"bookkeeper/internal/core"

	"github.com/jasonlvhit/gocron"
	"github.com/sirupsen/logrus"
)

// ReminderService is the part of the application the reminder job needs.
type ReminderService interface {
	ListCompanies(ctx context.Context) ([]core.Company, error)
	RunReminders(ctx context.Context, companyCode, asOfDate string, leadDays int) (int, error)
}

// ReminderJob records due-date reminders for every company once a day.
type ReminderJob struct {
	svc      ReminderService
	leadDays int
	at       string // HH:MM
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewReminderJob(svc ReminderService, leadDays int, at string, log logrus.FieldLogger) *ReminderJob {
	return &ReminderJob{svc: svc, leadDays: leadDays, at: at, log: log, now: time.Now}
}

// Summary is the outcome of one pass over all companies.
type Summary struct {
	Companies int
	Created   int
	Failed    int
}

// RunOnce scans every company. A failing company is logged and skipped so
// the others still get their reminders.
func (j *ReminderJob) RunOnce(ctx context.Context) (Summary, error) {
	var sum Summary
	companies, err := j.svc.ListCompanies(ctx)
	if err != nil {
		return sum, err
	}
	asOf := j.now().Format("2006-01-02")
	for _, c := range companies {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		sum.Companies++
		n, err := j.svc.RunReminders(ctx, c.CompanyCode, asOf, j.leadDays)
		if err != nil {
			sum.Failed++
			j.log.WithError(err).WithField("company", c.CompanyCode).Error("reminder scan failed")
			continue
		}
		sum.Created += n
	}
	j.log.WithFields(logrus.Fields{
		"companies": sum.Companies,
		"created":   sum.Created,
		"failed":    sum.Failed,
		"as_of":     asOf,
	}).Info("reminder scan finished")
	return sum, nil
}

// Process schedules RunOnce daily at the configured time and blocks until ctx
// is done.
func (j *ReminderJob) Process(ctx context.Context) {
	s := gocron.NewScheduler()
	s.Every(1).Day().At(j.at).Do(func() {
		if _, err := j.RunOnce(ctx); err != nil {
			j.log.WithError(err).Error("reminder job failed")
		}
	})
	stopped := s.Start()
	j.log.WithField("at", j.at).Info("reminder job scheduled")

	<-ctx.Done()
	s.Clear()
	stopped <- true
}
