package mirror

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	remotetransport "github.com/google/go-containerregistry/pkg/v1/remote/transport"
)

var (
	remoteImageFunc  = remote.Image
	remoteWriteFunc  = remote.Write
	newTransportFunc = remotetransport.NewWithContext
)

// remoteRuntime transfers images registry to registry without a local daemon.
// Pulled images are held by reference until they are tagged and pushed.
type remoteRuntime struct {
	mu       sync.Mutex
	images   map[string]v1.Image
	keychain *StaticKeychain
	insecure bool
	logger   logr.Logger
}

// NewRemoteRuntime returns a Runtime built on go-containerregistry. Sources
// without explicit credentials fall back to the local docker config.
func NewRemoteRuntime(insecure bool, logger logr.Logger) Runtime {
	return &remoteRuntime{
		images:   make(map[string]v1.Image),
		keychain: NewStaticKeychain(nil),
		insecure: insecure,
		logger:   logger.WithName("remote"),
	}
}

func (r *remoteRuntime) Name() string { return "remote" }

func transport(insecure bool) http.RoundTripper {
	d := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if insecure {
		tlsCfg.InsecureSkipVerify = true
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           d.DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       tlsCfg,
	}
}

func (r *remoteRuntime) nameOptions() []name.Option {
	opts := []name.Option{name.WeakValidation}
	if r.insecure {
		opts = append(opts, name.Insecure)
	}
	return opts
}

func (r *remoteRuntime) remoteOptions(ctx context.Context) []remote.Option {
	return []remote.Option{
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(authn.NewMultiKeychain(r.keychain, authn.DefaultKeychain)),
		remote.WithTransport(transport(r.insecure)),
	}
}

func failedResult(err error) Result {
	return Result{Success: false, Output: err.Error()}
}

func (r *remoteRuntime) Login(ctx context.Context, registry, username, password string) (Result, error) {
	reg, err := name.NewRegistry(registry, r.nameOptions()...)
	if err != nil {
		return failedResult(fmt.Errorf("parse registry: %w", err)), nil
	}
	auth := &authn.Basic{Username: username, Password: password}
	if _, err := newTransportFunc(ctx, reg, auth, transport(r.insecure), []string{reg.Scope(remotetransport.PullScope)}); err != nil {
		logRegistryAuthError(r.logger, err, "login")
		return failedResult(err), nil
	}
	r.keychain.Set(reg.RegistryStr(), auth)
	return Result{Success: true}, nil
}

func (r *remoteRuntime) Pull(ctx context.Context, ref, platform string) (Result, error) {
	srcRef, err := name.ParseReference(ref, r.nameOptions()...)
	if err != nil {
		return failedResult(fmt.Errorf("parse source: %w", err)), nil
	}
	if platform == "" {
		platform = DefaultPlatform
	}
	spec, err := parsePlatformSpec(platform)
	if err != nil {
		return Result{}, err
	}

	opts := append(r.remoteOptions(ctx), remote.WithPlatform(*spec.toPlatform()))
	img, err := remoteImageFunc(srcRef, opts...)
	if err != nil {
		logRegistryAuthError(r.logger, err, "pull")
		return failedResult(err), nil
	}
	digest, err := img.Digest()
	if err != nil {
		return failedResult(fmt.Errorf("digest %s: %w", ref, err)), nil
	}
	r.logger.V(1).Info("pulled image", "reference", ref, "digest", digest.String(), "platform", spec.String())

	r.mu.Lock()
	r.images[ref] = img
	r.mu.Unlock()
	return Result{Success: true}, nil
}

func (r *remoteRuntime) Tag(_ context.Context, source, target string) (Result, error) {
	if _, err := name.NewTag(target, r.nameOptions()...); err != nil {
		return failedResult(fmt.Errorf("parse target: %w", err)), nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	img, ok := r.images[source]
	if !ok {
		return Result{Success: false, Output: fmt.Sprintf("no such image: %s", source)}, nil
	}
	r.images[target] = img
	return Result{Success: true}, nil
}

func (r *remoteRuntime) Push(ctx context.Context, ref string) (Result, error) {
	tag, err := name.NewTag(ref, r.nameOptions()...)
	if err != nil {
		return failedResult(fmt.Errorf("parse target: %w", err)), nil
	}
	r.mu.Lock()
	img, ok := r.images[ref]
	r.mu.Unlock()
	if !ok {
		return Result{Success: false, Output: fmt.Sprintf("no such image: %s", ref)}, nil
	}

	log := r.logger.WithValues("target", ref)
	updates := make(chan v1.Update, 16)
	var progressWG sync.WaitGroup
	progressWG.Add(1)
	go func() {
		defer progressWG.Done()
		logProgressUpdates(log, "push", updates)
	}()

	opts := append(r.remoteOptions(ctx), remote.WithProgress(updates))
	err = remoteWriteFunc(tag, img, opts...)
	progressWG.Wait()
	if err != nil {
		logRegistryAuthError(log, err, "push")
		return failedResult(err), nil
	}

	r.mu.Lock()
	delete(r.images, ref)
	r.mu.Unlock()
	return Result{Success: true}, nil
}

type platformSpec struct {
	Architecture string
	OS           string
}

func (p platformSpec) toPlatform() *v1.Platform {
	return &v1.Platform{Architecture: p.Architecture, OS: p.OS}
}

func (p platformSpec) String() string {
	return p.OS + "/" + p.Architecture
}

func parsePlatformSpec(value string) (platformSpec, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return platformSpec{}, fmt.Errorf("empty platform")
	}
	var spec platformSpec
	if strings.Contains(trimmed, "/") {
		parts := strings.SplitN(trimmed, "/", 2)
		spec.OS = strings.TrimSpace(parts[0])
		spec.Architecture = strings.TrimSpace(parts[1])
	} else {
		spec.OS = "linux"
		spec.Architecture = trimmed
	}
	if spec.Architecture == "" {
		return platformSpec{}, fmt.Errorf("missing architecture in platform %q", value)
	}
	if spec.OS == "" {
		spec.OS = "linux"
	}
	return spec, nil
}

func logProgressUpdates(log logr.Logger, operation string, updates <-chan v1.Update) {
	const step = 10.0

	nextThreshold := step
	loggedFinal := false
	failed := false

	for update := range updates {
		if update.Error != nil {
			failed = true
			log.Error(update.Error, fmt.Sprintf("%s progress error", operation))
			continue
		}

		if update.Total <= 0 {
			continue
		}

		percent := (float64(update.Complete) / float64(update.Total)) * 100
		for percent >= nextThreshold && nextThreshold < 100 {
			log.V(1).Info(
				fmt.Sprintf("%s progress update", operation),
				"percentage", fmt.Sprintf("%.0f%%", nextThreshold),
				"completeBytes", update.Complete,
				"totalBytes", update.Total,
			)
			nextThreshold += step
		}

		if percent >= 100 && !loggedFinal {
			log.V(1).Info(
				fmt.Sprintf("%s progress update", operation),
				"percentage", "100%",
				"completeBytes", update.Complete,
				"totalBytes", update.Total,
			)
			loggedFinal = true
		}
	}

	if !failed && !loggedFinal {
		log.V(1).Info(
			fmt.Sprintf("%s progress update", operation),
			"percentage", "100%",
		)
	}
}

type registryAuthError struct {
	statusCode  int
	diagnostics []string
}

func logRegistryAuthError(log logr.Logger, err error, phase string) {
	if info, ok := detectRegistryAuthError(err); ok {
		msg := fmt.Sprintf("authentication to registry failed during %s", phase)
		fields := []any{"statusCode", info.statusCode}
		if len(info.diagnostics) > 0 {
			fields = append(fields, "details", info.diagnostics)
		}
		log.Error(err, msg, fields...)
	}
}

func detectRegistryAuthError(err error) (*registryAuthError, bool) {
	var transportErr *remotetransport.Error
	if !errors.As(err, &transportErr) {
		return nil, false
	}

	if !isRegistryAuthStatus(transportErr.StatusCode) && !hasRegistryAuthDiagnostic(transportErr.Errors) {
		return nil, false
	}

	diagnostics := make([]string, 0, len(transportErr.Errors))
	for _, diag := range transportErr.Errors {
		diagnostics = append(diagnostics, diag.String())
	}

	return &registryAuthError{statusCode: transportErr.StatusCode, diagnostics: diagnostics}, true
}

func isRegistryAuthStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

func hasRegistryAuthDiagnostic(diags []remotetransport.Diagnostic) bool {
	for _, diag := range diags {
		if diag.Code == remotetransport.UnauthorizedErrorCode || diag.Code == remotetransport.DeniedErrorCode {
			return true
		}
	}
	return false
}
