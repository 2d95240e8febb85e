package plugin

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	pkgplugin "github.com/forgekit/forgeflow/pkg/plugin"
)

// RegisterJobs adds every enabled plugin's declared jobs to the cron
// scheduler and returns the number registered. Call after LoadAll, before
// starting the scheduler. A job that fails to register is skipped; it does
// not block the others.
func RegisterJobs(mgr *Manager, c *cron.Cron, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "plugin-jobs")

	count := 0
	for _, inst := range mgr.Registry().Enabled() {
		jp, ok := inst.Plugin.(pkgplugin.JobProvider)
		if !ok {
			continue
		}
		name := inst.Meta.Name
		for _, job := range jp.Jobs() {
			job := job
			_, err := c.AddFunc(job.Schedule, func() {
				if err := job.Run(context.Background()); err != nil {
					log.Error("plugin job failed", "plugin", name, "job", job.ID, "error", err)
					return
				}
				log.Debug("plugin job completed", "plugin", name, "job", job.ID)
			})
			if err != nil {
				log.Error("could not register plugin job", "plugin", name, "job", job.ID, "error", err)
				continue
			}
			log.Info("registered plugin job", "plugin", name, "job", job.ID, "schedule", job.Schedule)
			count++
		}
	}
	return count
}
