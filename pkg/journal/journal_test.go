package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/agentdeploy/pkg/deploy"
	"github.com/rzbill/agentdeploy/pkg/log"
	"github.com/rzbill/agentdeploy/pkg/types"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), log.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendAndListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, name := range []string{"demo", "other", "demo", "demo"} {
		rec := &Record{
			RuntimeName: name,
			Version:     types.Version(i + 1),
			FinalState:  "DONE",
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
			FinishedAt:  base.Add(time.Duration(i)*time.Minute + 30*time.Second),
		}
		require.NoError(t, s.Append(ctx, rec))
		assert.NotEmpty(t, rec.ID)
	}

	demo, err := s.List(ctx, "demo", 0)
	require.NoError(t, err)
	require.Len(t, demo, 3)
	assert.Equal(t, types.Version(4), demo[0].Version)
	assert.Equal(t, types.Version(3), demo[1].Version)
	assert.Equal(t, types.Version(1), demo[2].Version)
	assert.Equal(t, 30*time.Second, demo[0].Duration())

	all, err := s.List(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, types.Version(4), all[0].Version)
	assert.Equal(t, "demo", all[0].RuntimeName)

	got, err := s.Get(ctx, demo[1].ID)
	require.NoError(t, err)
	assert.Equal(t, types.Version(3), got.Version)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestListDoesNotMixPrefixes(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.Append(ctx, &Record{RuntimeName: "demo", FinalState: "DONE"}))
	require.NoError(t, s.Append(ctx, &Record{RuntimeName: "demo_two", FinalState: "DONE"}))

	recs, err := s.List(ctx, "demo", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "demo", recs[0].RuntimeName)
}

func TestAppendRequiresName(t *testing.T) {
	s := openStore(t)
	err := s.Append(context.Background(), &Record{})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, &Record{RuntimeName: "demo", Version: types.Version(i + 1), StartedAt: base.Add(time.Duration(i) * time.Hour)}))
	}

	n, err := s.Prune(ctx, "demo", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	recs, err := s.List(ctx, "demo", 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, types.Version(5), recs[0].Version)

	_, err = s.Prune(ctx, "", 1)
	assert.Error(t, err)
}

func TestRecorderWritesFinishedDeployments(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	r := NewRecorder(s, log.NewNopLogger())
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	r.OnFinish(&deploy.Result{
		RuntimeName:  "demo",
		RuntimeID:    "demo-0000000001",
		Version:      2,
		EndpointName: "prod",
		Environment:  types.EnvironmentProduction,
		Artifact:     types.CodeArtifact("b", "demo/v2/code.zip"),
		State:        deploy.StateDone,
		StartedAt:    start,
		FinishedAt:   start.Add(time.Minute),
	}, nil)

	failure := &deploy.StageError{State: deploy.StateWaitingReady, Err: errors.New("boom")}
	r.OnFinish(&deploy.Result{
		RuntimeName: "demo",
		State:       deploy.StateFailed,
		FailedState: deploy.StateWaitingReady,
		StartedAt:   start.Add(time.Hour),
		FinishedAt:  start.Add(time.Hour + time.Minute),
	}, failure)
	r.OnFinish(nil, nil)

	recs, err := s.List(ctx, "demo", 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "FAILED", recs[0].FinalState)
	assert.Equal(t, "WAITING_READY", recs[0].FailedState)
	assert.Contains(t, recs[0].Error, "boom")
	assert.False(t, recs[0].Succeeded())
	assert.Empty(t, recs[0].Artifact)

	assert.True(t, recs[1].Succeeded())
	assert.Equal(t, "s3://b/demo/v2/code.zip", recs[1].Artifact)
	assert.Equal(t, "prod", recs[1].Endpoint)
	assert.Equal(t, types.Version(2), recs[1].Version)
}

func TestKeyIsChronological(t *testing.T) {
	early := Key("demo", time.Unix(9, 0))
	late := Key("demo", time.Unix(10, 0))
	assert.Less(t, string(early), string(late))
}
