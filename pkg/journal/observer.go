package journal

import (
	"context"
	"time"

	"github.com/rzbill/agentdeploy/pkg/deploy"
	"github.com/rzbill/agentdeploy/pkg/log"
	"github.com/rzbill/agentdeploy/pkg/types"
)

// Recorder is a deploy.Observer that appends one Record per finished
// deployment. Write failures are logged and never fail the deployment.
type Recorder struct {
	deploy.NopObserver

	store   *Store
	logger  log.Logger
	timeout time.Duration
}

var _ deploy.Observer = (*Recorder)(nil)

// NewRecorder returns a Recorder writing to store.
func NewRecorder(store *Store, logger log.Logger) *Recorder {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &Recorder{store: store, logger: logger.WithComponent("journal"), timeout: 5 * time.Second}
}

// OnFinish implements deploy.Observer.
func (r *Recorder) OnFinish(res *deploy.Result, err error) {
	if res == nil {
		return
	}
	rec := FromResult(res, err)

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if werr := r.store.Append(ctx, rec); werr != nil {
		r.logger.Warn("failed to record deployment", log.Runtime(res.RuntimeName), log.Err(werr))
		return
	}
	r.logger.Debug("deployment recorded", log.Runtime(res.RuntimeName), log.Str("record_id", rec.ID))
}

// FromResult converts a deployment result to a journal record.
func FromResult(res *deploy.Result, err error) *Record {
	rec := &Record{
		RuntimeName: res.RuntimeName,
		RuntimeID:   res.RuntimeID,
		Environment: res.Environment,
		Version:     res.Version,
		Endpoint:    res.EndpointName,
		FinalState:  res.State.String(),
		FailedState: string(res.FailedState),
		StartedAt:   res.StartedAt,
		FinishedAt:  res.FinishedAt,
	}
	if res.Artifact != (types.ArtifactRef{}) {
		rec.Artifact = res.Artifact.String()
	}
	if err != nil {
		rec.Error = err.Error()
	}
	return rec
}
