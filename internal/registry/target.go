// Package registry describes the destination container registry.
package registry

import (
	"context"
	"strings"
)

// Target abstracts a destination registry (generic Docker registry or ECR).
type Target interface {
	// Registry is the host used for login.
	Registry() string
	// Root is the prefix every mirrored reference is placed under.
	Root() string
	EnsureRepository(ctx context.Context, name string) error
	BasicAuth(ctx context.Context) (username, password string, err error)
}

// RepositoryName returns the repository path of a target reference within its
// registry, without host or tag.
func RepositoryName(t Target, targetRef string) string {
	repo := strings.TrimPrefix(targetRef, t.Registry()+"/")
	if idx := strings.LastIndex(repo, ":"); idx >= 0 && !strings.Contains(repo[idx:], "/") {
		repo = repo[:idx]
	}
	return repo
}
