package plugin_test

import (
	"context"
	"testing"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgekit/forgeflow/internal/events"
	"github.com/forgekit/forgeflow/internal/plugin"
	pkgplugin "github.com/forgekit/forgeflow/pkg/plugin"
)

type jobbedPlugin struct {
	fakePlugin
	jobs []pkgplugin.Job
}

func (p *jobbedPlugin) Jobs() []pkgplugin.Job { return p.jobs }

func TestRegisterJobsOnlyEnabledPlugins(t *testing.T) {
	ctx := context.Background()
	mgr := plugin.NewManager(plugin.NewRegistry(), events.NewBus(nil), plugin.Deps{}, nil)

	noop := func(context.Context) error { return nil }
	active := &jobbedPlugin{
		fakePlugin: *newFakePlugin("active", "1.0.0", nil),
		jobs: []pkgplugin.Job{
			{ID: "sweep", Schedule: "@every 5m", Run: noop},
			{ID: "report", Schedule: "0 0 * * *", Run: noop},
		},
	}
	dormant := &jobbedPlugin{
		fakePlugin: *newFakePlugin("dormant", "1.0.0", nil),
		jobs:       []pkgplugin.Job{{ID: "never", Schedule: "@hourly", Run: noop}},
	}

	_, err := mgr.Load(ctx, active, active.meta, "")
	require.NoError(t, err)
	_, err = mgr.Load(ctx, dormant, dormant.meta, "")
	require.NoError(t, err)
	require.NoError(t, mgr.Enable(ctx, "active"))

	c := cron.New()
	assert.Equal(t, 2, plugin.RegisterJobs(mgr, c, nil))
	assert.Len(t, c.Entries(), 2)
}

func TestRegisterJobsSkipsInvalidSchedule(t *testing.T) {
	ctx := context.Background()
	mgr := plugin.NewManager(plugin.NewRegistry(), events.NewBus(nil), plugin.Deps{}, nil)

	p := &jobbedPlugin{
		fakePlugin: *newFakePlugin("mixed", "1.0.0", nil),
		jobs: []pkgplugin.Job{
			{ID: "bad", Schedule: "not a schedule", Run: func(context.Context) error { return nil }},
			{ID: "good", Schedule: "@every 1m", Run: func(context.Context) error { return nil }},
		},
	}
	_, err := mgr.Load(ctx, p, p.meta, "")
	require.NoError(t, err)
	require.NoError(t, mgr.Enable(ctx, "mixed"))

	c := cron.New()
	assert.Equal(t, 1, plugin.RegisterJobs(mgr, c, nil))
}
