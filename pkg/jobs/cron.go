// Package jobs schedules the background maintenance work: nightly employer
// entitlement reconciliation and the student trial expiry sweep.
package jobs

import (
	"context"
	"time"

	"github.com/internlink/internlink/pkg/billing"
	"github.com/internlink/internlink/pkg/logger"
	"github.com/internlink/internlink/pkg/metrics"
	"github.com/internlink/internlink/pkg/student"
	"github.com/robfig/cron/v3"
)

// CronManager manages scheduled jobs
type CronManager struct {
	cron           *cron.Cron
	billingService *billing.Service
	studentService *student.Service
	metrics        *metrics.Metrics
	logger         logger.Logger
}

// NewCronManager creates a new cron manager
func NewCronManager(billingService *billing.Service, studentService *student.Service, m *metrics.Metrics, log logger.Logger) *CronManager {
	if log == nil {
		log = logger.Default()
	}

	return &CronManager{
		cron:           cron.New(),
		billingService: billingService,
		studentService: studentService,
		metrics:        m,
		logger:         log,
	}
}

// SetupJobs configures all scheduled jobs
func (cm *CronManager) SetupJobs() error {
	cm.logger.Info("Setting up cron jobs")

	// Daily at 3 AM: recompute every employer's entitlements from the stored
	// subscription state. Catches missed webhooks and manual flag changes.
	_, err := cm.cron.AddFunc("0 3 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		cm.logger.Info("Running employer entitlement reconciliation")

		count, err := cm.billingService.ReconcileAllEmployers(ctx)
		if err != nil {
			cm.logger.Error("Employer reconciliation failed", "error", err, "reconciled", count)
			return
		}

		cm.metrics.RecordEmployersReconciled(count)
		cm.logger.Info("Employer entitlement reconciliation completed", "reconciled", count)
	})
	if err != nil {
		return err
	}

	// Hourly: expire student trials past their expiry. Reads also expire
	// lazily; the sweep keeps rows honest for users who never come back.
	_, err = cm.cron.AddFunc("0 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		expired, err := cm.studentService.ExpireLapsedTrials(ctx)
		if err != nil {
			cm.logger.Error("Trial expiry sweep failed", "error", err)
			return
		}

		if expired > 0 {
			cm.metrics.RecordTrialsExpired(expired)
			cm.logger.Info("Expired lapsed student trials", "count", expired)
		}
	})
	if err != nil {
		return err
	}

	return nil
}

// Start starts the cron scheduler
func (cm *CronManager) Start() {
	cm.cron.Start()
	cm.logger.Info("Cron scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs
func (cm *CronManager) Stop() {
	ctx := cm.cron.Stop()
	<-ctx.Done()
	cm.logger.Info("Cron scheduler stopped")
}
