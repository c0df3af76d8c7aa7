package migrate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMigrator struct {
	name string
	ran  *[]string
	err  error
}

func (m recordingMigrator) Name() string { return m.name }

func (m recordingMigrator) Migrate(context.Context) error {
	*m.ran = append(*m.ran, m.name)
	return m.err
}

func withPlugins(t *testing.T, ps ...Plugin) {
	t.Helper()
	saved := plugins
	plugins = ps
	t.Cleanup(func() { plugins = saved })
}

func TestRunAll_RunsInOrder(t *testing.T) {
	var ran []string
	withPlugins(t,
		Plugin{Order: 120, Migrator: recordingMigrator{name: "images", ran: &ran}},
		Plugin{Order: 100, Migrator: recordingMigrator{name: "documents", ran: &ran}},
		Plugin{Order: 110, Migrator: recordingMigrator{name: "profiles", ran: &ran}},
	)

	require.NoError(t, RunAll(context.Background()))
	assert.Equal(t, []string{"documents", "profiles", "images"}, ran)
	assert.Equal(t, []string{"documents", "profiles", "images"}, Names())
}

func TestRunAll_StopsAtFirstFailure(t *testing.T) {
	var ran []string
	boom := errors.New("boom")
	withPlugins(t,
		Plugin{Order: 100, Migrator: recordingMigrator{name: "documents", ran: &ran, err: boom}},
		Plugin{Order: 110, Migrator: recordingMigrator{name: "profiles", ran: &ran}},
	)

	err := RunAll(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "documents")
	assert.Equal(t, []string{"documents"}, ran)
}
