package endpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/agentdeploy/pkg/controlplane"
	"github.com/rzbill/agentdeploy/pkg/controlplane/memory"
	"github.com/rzbill/agentdeploy/pkg/log"
	"github.com/rzbill/agentdeploy/pkg/types"
	"github.com/rzbill/agentdeploy/pkg/waiter"
)

type instantClock struct{ now time.Time }

func (c *instantClock) Now() time.Time { return c.now }

func (c *instantClock) Sleep(_ context.Context, d time.Duration) error {
	c.now = c.now.Add(d)
	return nil
}

// setup creates runtime "demo" with versions 1 and 2.
func setup(t *testing.T) (*Manager, *memory.ControlPlane, types.RuntimeID) {
	t.Helper()
	ctx := context.Background()
	cp := memory.New()
	cfg := types.RuntimeConfig{
		Artifact: types.CodeArtifact("b", "demo/v1/code.zip"),
		RoleARN:  "arn:aws:iam::1:role/r",
	}
	rt, err := cp.CreateRuntime(ctx, controlplane.CreateRuntimeInput{Name: "demo", Config: cfg})
	require.NoError(t, err)
	_, err = cp.GetRuntime(ctx, rt.ID)
	require.NoError(t, err)
	cfg.Artifact.Key = "demo/v2/code.zip"
	_, err = cp.UpdateRuntime(ctx, controlplane.UpdateRuntimeInput{ID: rt.ID, Config: cfg})
	require.NoError(t, err)
	return NewManager(cp, log.NewNopLogger()), cp, rt.ID
}

func opts() waiter.Options {
	return waiter.Options{Clock: &instantClock{}}
}

func TestCreateAndRepoint(t *testing.T) {
	ctx := context.Background()
	m, _, id := setup(t)

	_, err := m.Create(ctx, id, "prod", 1, "Production endpoint - Version 1")
	require.NoError(t, err)
	ep, err := m.WaitReady(ctx, id, "prod", 1, opts())
	require.NoError(t, err)
	assert.Equal(t, types.Version(1), ep.ResolvedVersion())

	_, err = m.Update(ctx, id, "prod", 2, "Production endpoint - Version 2")
	require.NoError(t, err)
	ep, err = m.WaitReady(ctx, id, "prod", 2, opts())
	require.NoError(t, err)
	assert.Equal(t, types.Version(2), ep.ResolvedVersion())
	assert.Equal(t, "Production endpoint - Version 2", ep.Description)
}

func TestCreateExistingFails(t *testing.T) {
	ctx := context.Background()
	m, _, id := setup(t)
	_, err := m.Create(ctx, id, "prod", 1, "")
	require.NoError(t, err)
	_, err = m.Create(ctx, id, "prod", 1, "")
	assert.ErrorIs(t, err, types.ErrAlreadyExists)
}

func TestRepointToMissingVersionKeepsTarget(t *testing.T) {
	ctx := context.Background()
	m, _, id := setup(t)
	_, err := m.Create(ctx, id, "prod", 1, "")
	require.NoError(t, err)
	_, err = m.WaitReady(ctx, id, "prod", 1, opts())
	require.NoError(t, err)

	_, err = m.Update(ctx, id, "prod", 42, "")
	require.ErrorIs(t, err, types.ErrNotFound)

	ep, err := m.Get(ctx, id, "prod")
	require.NoError(t, err)
	assert.Equal(t, types.Version(1), ep.ResolvedVersion())
}

func TestDeleteRejectsDefault(t *testing.T) {
	ctx := context.Background()
	m, cp, id := setup(t)

	err := m.Delete(ctx, id, types.DefaultEndpointName)
	assert.ErrorIs(t, err, types.ErrReservedEndpoint)
	assert.Zero(t, cp.Calls(controlplane.OpDeleteEndpoint))

	_, err = m.Update(ctx, id, types.DefaultEndpointName, 1, "")
	assert.ErrorIs(t, err, types.ErrReservedEndpoint)

	_, err = m.Create(ctx, id, "dev", 2, "")
	require.NoError(t, err)
	require.NoError(t, m.Delete(ctx, id, "dev"))
	require.NoError(t, m.WaitDeleted(ctx, id, "dev", opts()))

	names, err := m.Names(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{types.DefaultEndpointName}, names)
}

func TestUpsert(t *testing.T) {
	ctx := context.Background()
	m, cp, id := setup(t)

	describe := func(create bool) string {
		if create {
			return "new"
		}
		return ""
	}
	ep, created, err := m.Upsert(ctx, id, "preview", 1, describe)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "new", ep.Description)
	_, err = m.WaitReady(ctx, id, "preview", 1, opts())
	require.NoError(t, err)

	_, created, err = m.Upsert(ctx, id, "preview", 2, describe)
	require.NoError(t, err)
	assert.False(t, created)
	ep, err = m.Get(ctx, id, "preview")
	require.NoError(t, err)
	assert.Equal(t, "new", ep.Description)
	assert.Equal(t, 1, cp.Calls(controlplane.OpCreateEndpoint))
	assert.Equal(t, 1, cp.Calls(controlplane.OpUpdateEndpoint))
}

func TestDeleteAll(t *testing.T) {
	ctx := context.Background()
	m, _, id := setup(t)
	for _, name := range []string{"a", "b"} {
		_, err := m.Create(ctx, id, name, 1, "")
		require.NoError(t, err)
	}

	var deleted []string
	require.NoError(t, m.DeleteAll(ctx, id, opts(), func(n string) { deleted = append(deleted, n) }))
	assert.Equal(t, []string{"a", "b"}, deleted)

	names, err := m.Names(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{types.DefaultEndpointName}, names)
}

func TestValidation(t *testing.T) {
	m, _, id := setup(t)
	_, err := m.Create(context.Background(), id, "prod", 0, "")
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = m.Create(context.Background(), id, "bad-name", 1, "")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestGeneratedName(t *testing.T) {
	now := time.Unix(1700000000, 0)
	name := GeneratedName("demo-AbC123", now)
	assert.Equal(t, "endpoint_demo_AbC123_1700000000", name)
	assert.NoError(t, types.ValidateEndpointName(name))

	long := GeneratedName(types.RuntimeID("averyveryveryverylongagentname-0123456789"), now)
	assert.Len(t, long, types.MaxNameLength)
	assert.NoError(t, types.ValidateEndpointName(long))
}
