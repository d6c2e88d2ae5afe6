// Package mirror copies container images from public registries into a
// private destination registry.
package mirror

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/matzegebbe/replicator/internal/failure"
	"github.com/matzegebbe/replicator/internal/fetch"
	"github.com/matzegebbe/replicator/internal/locator"
	"github.com/matzegebbe/replicator/internal/registry"
	"github.com/matzegebbe/replicator/pkg/metrics"
)

// Options controls a mirror run.
type Options struct {
	// Platform is pinned on every pull. Empty selects DefaultPlatform.
	Platform string
	// DryRun resolves target names without touching any registry.
	DryRun bool
}

// Transfer records one mirrored image.
type Transfer struct {
	Source string
	Target string
}

// Report summarizes a run. On failure it holds the transfers completed
// before the failing image.
type Report struct {
	Transfers []Transfer
}

// Replicator runs the login, pull, tag and push sequence for a batch of images.
type Replicator struct {
	runtime Runtime
	target  registry.Target
	fetcher fetch.Fetcher
	opts    Options
	logger  logr.Logger
}

func NewReplicator(rt Runtime, target registry.Target, f fetch.Fetcher, opts Options, logger logr.Logger) *Replicator {
	if opts.Platform == "" {
		opts.Platform = DefaultPlatform
	}
	return &Replicator{
		runtime: rt,
		target:  target,
		fetcher: f,
		opts:    opts,
		logger:  logger.WithName("mirror"),
	}
}

// Run logs in once, then mirrors every image in args in order. The first
// failing image aborts the batch.
func (r *Replicator) Run(ctx context.Context, args []string) (Report, error) {
	var report Report

	if !r.opts.DryRun {
		if err := r.login(ctx); err != nil {
			return report, err
		}
	}

	images, err := LoadBatch(ctx, r.fetcher, args, r.logger)
	if err != nil {
		return report, err
	}

	for i, image := range images {
		log := r.logger.WithValues("image", image, "position", fmt.Sprintf("%d/%d", i+1, len(images)))
		transfer, err := r.replicate(ctx, log, image)
		if err != nil {
			log.Error(err, "failed to replicate image")
			return report, err
		}
		report.Transfers = append(report.Transfers, transfer)
	}

	r.logger.Info("all images replicated", "count", len(report.Transfers), "dryRun", r.opts.DryRun)
	return report, nil
}

func (r *Replicator) login(ctx context.Context) error {
	host := r.target.Registry()
	username, password, err := r.target.BasicAuth(ctx)
	if err != nil {
		return fmt.Errorf("registry credentials: %w", err)
	}
	r.logger.Info("logging in", "registry", host, "runtime", r.runtime.Name())
	res, err := r.runtime.Login(ctx, host, username, password)
	if err := check("login", host, res, err); err != nil {
		return err
	}
	r.logger.Info("login successful", "registry", host)
	return nil
}

func (r *Replicator) replicate(ctx context.Context, log logr.Logger, source string) (Transfer, error) {
	img := locator.ParseImage(source)
	target := locator.TargetName(r.target.Root(), img)
	log.Info("processing image", "source", source, "normalized", img.String(), "target", target)

	transfer := Transfer{Source: source, Target: target}
	if r.opts.DryRun {
		log.Info("dry run: skipping transfer", "target", target)
		return transfer, nil
	}

	res, err := r.runtime.Pull(ctx, source, r.opts.Platform)
	if err := check("pull", source, res, err); err != nil {
		metrics.RecordPullError(source)
		return transfer, err
	}
	metrics.RecordPullSuccess(source)
	log.V(1).Info("pulled", "platform", r.opts.Platform)

	res, err = r.runtime.Tag(ctx, source, target)
	if err := check("tag", target, res, err); err != nil {
		return transfer, err
	}

	if err := r.target.EnsureRepository(ctx, registry.RepositoryName(r.target, target)); err != nil {
		return transfer, fmt.Errorf("ensure repository for %s: %w", target, err)
	}

	res, err = r.runtime.Push(ctx, target)
	if err := check("push", target, res, err); err != nil {
		metrics.RecordPushError(target)
		return transfer, err
	}
	metrics.RecordPushSuccess(target)

	log.Info("replicated image", "source", source, "target", target)
	return transfer, nil
}

func check(op, target string, res Result, err error) error {
	if err != nil {
		return &failure.TransferError{Op: op, Target: target, Err: err}
	}
	if !res.Success {
		return &failure.TransferError{Op: op, Target: target, Output: res.Output}
	}
	return nil
}
