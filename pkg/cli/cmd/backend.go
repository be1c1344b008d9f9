package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rzbill/agentdeploy/internal/awsclient"
	"github.com/rzbill/agentdeploy/internal/config"
	"github.com/rzbill/agentdeploy/pkg/controlplane"
	"github.com/rzbill/agentdeploy/pkg/controlplane/agentcore"
	"github.com/rzbill/agentdeploy/pkg/controlplane/memory"
	"github.com/rzbill/agentdeploy/pkg/endpoint"
	"github.com/rzbill/agentdeploy/pkg/invoke"
	"github.com/rzbill/agentdeploy/pkg/log"
	"github.com/rzbill/agentdeploy/pkg/preflight"
	"github.com/rzbill/agentdeploy/pkg/runtime"
	"github.com/rzbill/agentdeploy/pkg/storage"
	"github.com/rzbill/agentdeploy/pkg/types"
	"github.com/rzbill/agentdeploy/pkg/waiter"
)

// backend is the set of remote services a command talks to.
type backend struct {
	cp        controlplane.ControlPlane
	store     storage.ObjectStore
	runtimes  *runtime.Manager
	endpoints *endpoint.Manager
	checker   *preflight.Checker
	// invoker is nil when the backend cannot reach a data plane.
	invoker *invoke.Client
	dryRun  bool

	// mem and source are set on dry runs: mem is seeded from reads
	// against source and takes every write.
	mem    *memory.ControlPlane
	source controlplane.ControlPlane
}

type backendFactory func(ctx context.Context, cfg *config.Config, logger log.Logger, dryRun bool) (*backend, error)

func assemble(cp controlplane.ControlPlane, store storage.ObjectStore, logger log.Logger) *backend {
	return &backend{
		cp:        cp,
		store:     store,
		runtimes:  runtime.NewManager(cp, logger),
		endpoints: endpoint.NewManager(cp, logger),
		checker:   &preflight.Checker{ControlPlane: cp, Store: store, Logger: logger},
	}
}

// newAWSBackend talks to the real services, or to in-memory fakes when
// dryRun is set.
func newAWSBackend(ctx context.Context, cfg *config.Config, logger log.Logger, dryRun bool) (*backend, error) {
	awsCfg, err := awsclient.Load(ctx, cfg.AWS)
	if err != nil {
		return nil, err
	}

	cp := agentcore.NewFromConfig(awsCfg, logger)
	if dryRun {
		return newMemoryBackend(cfg, logger, cp), nil
	}
	store := storage.NewS3Store(awsCfg, storage.S3Options{
		Endpoint:     cfg.AWS.S3Endpoint,
		UsePathStyle: cfg.AWS.UsePathStyle,
	}, logger)

	b := assemble(cp, store, logger)
	clients := awsclient.NewClients(awsCfg)
	b.checker.STS = clients.STS
	b.checker.IAM = clients.IAM
	b.checker.ECR = clients.ECR
	b.invoker = invoke.NewFromConfig(awsCfg, logger)
	return b, nil
}

// newMemoryBackend backs --dry-run: every call goes to an in-process
// control plane and object store. With a source, seed copies the current
// state of a runtime from it before the run; source is only read.
func newMemoryBackend(cfg *config.Config, logger log.Logger, source controlplane.ControlPlane) *backend {
	cp := memory.New(memory.WithRegion(cfg.AWS.Region))
	b := assemble(cp, storage.NewMemoryStore(cfg.Runtime.Bucket), logger)
	b.dryRun = true
	b.mem = cp
	b.source = source
	return b
}

// seed copies the runtime ident names, with its endpoints, from the source
// control plane into the dry-run one. A runtime the source does not know
// is left absent.
func (b *backend) seed(ctx context.Context, ident types.Identifier) error {
	if b.mem == nil || b.source == nil {
		return nil
	}
	id, ok := ident.ID()
	if name, byName := ident.Name(); byName {
		found, err := runtime.NewManager(b.source, log.NewNopLogger()).Find(ctx, name)
		if errors.Is(err, types.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read runtime %q for dry run: %w", name, err)
		}
		id, ok = found, true
	}
	if !ok {
		return nil
	}

	rt, err := b.source.GetRuntime(ctx, id)
	if errors.Is(err, types.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read runtime %s for dry run: %w", id, err)
	}
	eps, err := b.source.ListEndpoints(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to read endpoints of %s for dry run: %w", id, err)
	}
	b.mem.Seed(*rt, eps)
	return nil
}

func (c *cli) backend(ctx context.Context, dryRun bool) (*backend, error) {
	return c.newBackend(ctx, c.cfg, c.logger, dryRun)
}

func (c *cli) waitOptions() waiter.Options {
	return waiter.Options{Interval: c.cfg.Wait.Interval, Timeout: c.cfg.Wait.Timeout}
}

func (c *cli) deleteWaitOptions() waiter.Options {
	return waiter.Options{Interval: c.cfg.Wait.DeleteInterval, Timeout: c.cfg.Wait.Timeout}
}

// resolveRuntime turns a command argument into a runtime id. Bare
// arguments are ids; name:NAME looks the runtime up by name.
func (b *backend) resolveRuntime(ctx context.Context, arg string) (types.RuntimeID, error) {
	ident, err := types.ParseIdentifier(arg, false)
	if err != nil {
		return "", err
	}
	return b.runtimes.Resolve(ctx, ident)
}
