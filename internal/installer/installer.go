// Package installer mirrors the installer scripts, release pointer, platform
// manifest and binaries of a release into object storage.
package installer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-logr/logr"

	"github.com/matzegebbe/replicator/internal/failure"
	"github.com/matzegebbe/replicator/internal/fetch"
	"github.com/matzegebbe/replicator/internal/locator"
	"github.com/matzegebbe/replicator/internal/manifest"
	"github.com/matzegebbe/replicator/internal/rewrite"
	"github.com/matzegebbe/replicator/internal/storage"
	"github.com/matzegebbe/replicator/pkg/metrics"
)

const (
	DefaultSourceURL = "https://claude.ai"

	shellScript      = "install.sh"
	powershellScript = "install.ps1"
)

type Options struct {
	// SourceURL hosts the installer scripts.
	SourceURL string
	// TempDir stages binaries before upload. Empty uses os.TempDir.
	TempDir string
	// Verify checks binaries against the checksum and size in the manifest
	// when the manifest provides them.
	Verify bool
	DryRun bool
}

// Origin is the source base URL embedded in the installer scripts.
type Origin string

// Release is an origin with its resolved version.
type Release struct {
	Origin  Origin
	Version manifest.Version
}

// Catalog is a release with its platform manifest.
type Catalog struct {
	Release
	Document manifest.Document
}

// Object is one published artifact.
type Object struct {
	Key  string
	URL  string
	Size int64
}

type Report struct {
	Origin      Origin
	Destination string
	Version     manifest.Version
	Objects     []Object
}

// Replicator runs the installer pipeline.
type Replicator struct {
	fetcher fetch.Fetcher
	store   storage.Store
	opts    Options
	logger  logr.Logger
}

func NewReplicator(f fetch.Fetcher, s storage.Store, opts Options, logger logr.Logger) *Replicator {
	if opts.SourceURL == "" {
		opts.SourceURL = DefaultSourceURL
	}
	return &Replicator{fetcher: f, store: s, opts: opts, logger: logger.WithName("installer")}
}

// Destination is the public base address the scripts are rewritten to.
func (r *Replicator) Destination() string {
	return strings.TrimRight(r.store.URL(""), "/")
}

// Run mirrors install.sh, install.ps1, the version pointer, the manifest and
// every platform binary, in that order. The first failure stops the run.
func (r *Replicator) Run(ctx context.Context) (Report, error) {
	report := Report{Destination: r.Destination()}

	origin, err := r.mirrorScripts(ctx, report.Destination, &report)
	if err != nil {
		return report, err
	}
	report.Origin = origin

	release, err := r.mirrorVersion(ctx, origin, &report)
	if err != nil {
		return report, err
	}
	report.Version = release.Version

	catalog, err := r.mirrorManifest(ctx, release, &report)
	if err != nil {
		return report, err
	}

	binaries := manifest.Binaries(catalog.Version, catalog.Document)
	r.logger.Info("resolved platforms", "version", catalog.Version, "count", len(binaries), "platforms", catalog.Document.Names())
	for _, bin := range binaries {
		if err := r.mirrorBinary(ctx, catalog.Origin, bin, &report); err != nil {
			return report, err
		}
	}

	r.logger.Info("all files replicated", "objects", len(report.Objects), "dryRun", r.opts.DryRun)
	return report, nil
}

func (r *Replicator) mirrorScripts(ctx context.Context, destination string, report *Report) (Origin, error) {
	shell, err := r.fetchText(ctx, locator.Join(r.opts.SourceURL, shellScript), shellScript)
	if err != nil {
		return "", err
	}
	origin, err := locator.ExtractOrigin(shell, shellScript)
	if err != nil {
		return "", err
	}
	r.logger.Info("extracted origin", "origin", origin, "destination", destination)

	if err := r.publishScript(ctx, shellScript, shell, origin, destination, report); err != nil {
		return "", err
	}

	ps, err := r.fetchText(ctx, locator.Join(r.opts.SourceURL, powershellScript), powershellScript)
	if err != nil {
		return "", err
	}
	if err := locator.VerifyOrigin(origin, ps, powershellScript); err != nil {
		return "", err
	}
	if err := r.publishScript(ctx, powershellScript, ps, origin, destination, report); err != nil {
		return "", err
	}
	return Origin(origin), nil
}

func (r *Replicator) mirrorVersion(ctx context.Context, origin Origin, report *Report) (Release, error) {
	raw, err := r.fetcher.Get(ctx, locator.Join(string(origin), manifest.VersionFile))
	if err != nil {
		metrics.RecordPublishError(manifest.VersionFile)
		return Release{}, err
	}
	version, err := manifest.ParseVersion(raw)
	if err != nil {
		return Release{}, err
	}
	if err := r.publish(ctx, manifest.VersionFile, raw, report); err != nil {
		return Release{}, err
	}
	r.logger.Info("resolved version", "version", version)
	return Release{Origin: origin, Version: version}, nil
}

func (r *Replicator) mirrorManifest(ctx context.Context, release Release, report *Report) (Catalog, error) {
	key := release.Version.ManifestPath()
	raw, err := r.fetcher.Get(ctx, locator.Join(string(release.Origin), key))
	if err != nil {
		metrics.RecordPublishError(key)
		return Catalog{}, err
	}
	doc, err := manifest.Parse(raw)
	if err != nil {
		return Catalog{}, err
	}
	if doc.Version != "" && doc.Version != string(release.Version) {
		r.logger.Info("manifest version differs from version pointer", "pointer", release.Version, "manifest", doc.Version)
	}
	for _, platform := range doc.Unreadable {
		r.logger.V(1).Info("platform metadata unreadable, binary will not be verified", "platform", platform)
	}
	if err := r.publish(ctx, key, raw, report); err != nil {
		return Catalog{}, err
	}
	return Catalog{Release: release, Document: doc}, nil
}

func (r *Replicator) fetchText(ctx context.Context, url, name string) (string, error) {
	raw, err := r.fetcher.Get(ctx, url)
	if err != nil {
		metrics.RecordPublishError(name)
		return "", err
	}
	return rewrite.Decode(raw, name)
}

func (r *Replicator) publishScript(ctx context.Context, key, text, origin, destination string, report *Report) error {
	r.logger.V(1).Info("rewriting script", "script", key, "references", rewrite.Count(text, origin))
	return r.publish(ctx, key, []byte(rewrite.Text(text, origin, destination)), report)
}

func (r *Replicator) publish(ctx context.Context, key string, body []byte, report *Report) error {
	obj := Object{Key: key, URL: r.store.URL(key), Size: int64(len(body))}
	if r.opts.DryRun {
		r.logger.Info("dry run: skipping upload", "key", key, "url", obj.URL, "size", humanize.IBytes(uint64(obj.Size)))
		report.Objects = append(report.Objects, obj)
		return nil
	}
	if err := r.store.Put(ctx, key, body); err != nil {
		metrics.RecordPublishError(key)
		return err
	}
	metrics.RecordPublishSuccess(key)
	r.logger.Info("uploaded", "key", key, "url", obj.URL)
	report.Objects = append(report.Objects, obj)
	return nil
}

// mirrorBinary streams a binary into a temporary file and uploads it from
// there. The temporary file is removed on every path.
func (r *Replicator) mirrorBinary(ctx context.Context, origin Origin, bin manifest.Binary, report *Report) error {
	src := locator.Join(string(origin), bin.Path)
	log := r.logger.WithValues("platform", bin.Platform, "key", bin.Path)

	if r.opts.DryRun {
		log.Info("dry run: skipping binary", "source", src, "url", r.store.URL(bin.Path))
		report.Objects = append(report.Objects, Object{Key: bin.Path, URL: r.store.URL(bin.Path), Size: bin.Size})
		return nil
	}

	log.Info("downloading", "source", src)
	size, err := r.stageAndUpload(ctx, src, bin)
	if err != nil {
		metrics.RecordPublishError(bin.Path)
		return err
	}
	metrics.RecordPublishSuccess(bin.Path)
	log.Info("uploaded", "url", r.store.URL(bin.Path), "size", humanize.IBytes(uint64(size)))
	report.Objects = append(report.Objects, Object{Key: bin.Path, URL: r.store.URL(bin.Path), Size: size})
	return nil
}

func (r *Replicator) stageAndUpload(ctx context.Context, src string, bin manifest.Binary) (int64, error) {
	tmp, err := os.CreateTemp(r.opts.TempDir, "replicator-*")
	if err != nil {
		return 0, fmt.Errorf("create staging file: %w", err)
	}
	defer os.Remove(tmp.Name())

	var w io.Writer = tmp
	var sum hash.Hash
	if r.opts.Verify && bin.Checksum != "" {
		sum = sha256.New()
		w = io.MultiWriter(tmp, sum)
	}

	n, err := r.fetcher.Download(ctx, src, w)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close staging file: %w", closeErr)
	}
	if err != nil {
		return n, err
	}

	if r.opts.Verify {
		if err := verify(bin, n, sum); err != nil {
			return n, err
		}
	}

	if err := r.store.PutFile(ctx, bin.Path, tmp.Name()); err != nil {
		return n, err
	}
	return n, nil
}

func verify(bin manifest.Binary, size int64, sum hash.Hash) error {
	if bin.Size > 0 && size != bin.Size {
		return &failure.TransferError{
			Op:     "verify",
			Target: bin.Path,
			Err:    fmt.Errorf("size mismatch: expected %d bytes, got %d", bin.Size, size),
		}
	}
	if sum == nil {
		return nil
	}
	if got := hex.EncodeToString(sum.Sum(nil)); got != bin.Checksum {
		return &failure.TransferError{
			Op:     "verify",
			Target: bin.Path,
			Err:    fmt.Errorf("checksum mismatch: expected sha256 %s, got %s", bin.Checksum, got),
		}
	}
	return nil
}
