package mirror

import "context"

// DefaultPlatform is the platform pinned on every pull.
const DefaultPlatform = "linux/amd64"

// Result is the outcome of a single runtime command. Output holds the captured
// diagnostic text when the command failed.
type Result struct {
	Success bool
	Output  string
}

// Runtime is the "transfer image by reference" capability. A returned error
// means the command could not be invoked at all; a command that ran and failed
// is reported through Result.
type Runtime interface {
	Name() string
	Login(ctx context.Context, registry, username, password string) (Result, error)
	Pull(ctx context.Context, ref, platform string) (Result, error)
	Tag(ctx context.Context, source, target string) (Result, error)
	Push(ctx context.Context, ref string) (Result, error)
}
