package mirror

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"

	"github.com/go-logr/logr"
)

// Executor runs an external command and captures its streams.
type Executor interface {
	Run(ctx context.Context, stdin io.Reader, name string, args ...string) (stdout, stderr string, exitCode int, err error)
}

type execExecutor struct{}

// NewExecutor returns an Executor backed by os/exec.
func NewExecutor() Executor { return execExecutor{} }

func (execExecutor) Run(ctx context.Context, stdin io.Reader, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), stderr.String(), exitErr.ExitCode(), nil
	}
	if err != nil {
		return stdout.String(), stderr.String(), -1, err
	}
	return stdout.String(), stderr.String(), 0, nil
}

type dockerRuntime struct {
	binary string
	exec   Executor
	logger logr.Logger
}

// NewDockerRuntime drives the docker CLI. binary defaults to "docker".
func NewDockerRuntime(binary string, executor Executor, logger logr.Logger) Runtime {
	if strings.TrimSpace(binary) == "" {
		binary = "docker"
	}
	if executor == nil {
		executor = NewExecutor()
	}
	return &dockerRuntime{binary: binary, exec: executor, logger: logger.WithName("docker")}
}

func (d *dockerRuntime) Name() string { return d.binary }

func (d *dockerRuntime) run(ctx context.Context, stdin io.Reader, args ...string) (Result, error) {
	d.logger.V(1).Info("running command", "command", d.binary+" "+args[0])
	stdout, stderr, code, err := d.exec.Run(ctx, stdin, d.binary, args...)
	if err != nil {
		return Result{}, err
	}
	if code != 0 {
		d.logger.V(1).Info("command exited non-zero", "command", args[0], "exitCode", code)
		return Result{Success: false, Output: strings.TrimSpace(stderr)}, nil
	}
	if out := strings.TrimSpace(stdout); out != "" {
		d.logger.V(2).Info("command output", "command", args[0], "stdout", out)
	}
	return Result{Success: true}, nil
}

func (d *dockerRuntime) Login(ctx context.Context, registry, username, password string) (Result, error) {
	return d.run(ctx, strings.NewReader(password), "login", "-u", username, "--password-stdin", registry)
}

func (d *dockerRuntime) Pull(ctx context.Context, ref, platform string) (Result, error) {
	if platform == "" {
		platform = DefaultPlatform
	}
	return d.run(ctx, nil, "pull", "--platform", platform, ref)
}

func (d *dockerRuntime) Tag(ctx context.Context, source, target string) (Result, error) {
	return d.run(ctx, nil, "tag", source, target)
}

func (d *dockerRuntime) Push(ctx context.Context, ref string) (Result, error) {
	return d.run(ctx, nil, "push", ref)
}
