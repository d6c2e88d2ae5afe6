// Package locator resolves source identities from installer scripts and image
// references, and derives the deterministic target identity for each.
package locator

import (
	"strings"
)

const (
	// DefaultRegistry is assumed when a reference names no registry host.
	DefaultRegistry = "docker.io"
	// DefaultNamespace is inserted for single-segment names on DefaultRegistry.
	DefaultNamespace = "library"
	// DefaultTag is used when a reference carries no tag.
	DefaultTag = "latest"

	targetSeparator = "-"
)

// Image is a parsed container image reference.
type Image struct {
	Registry string
	Path     string
	Tag      string
}

// String renders the fully qualified reference.
func (i Image) String() string {
	return i.Registry + "/" + i.Path + ":" + i.Tag
}

// ParseImage splits ref into registry, path and tag. It accepts any input.
//
// The tag is whatever follows the right-most colon, so a registry port without
// a tag ("localhost:5000/app") is read as tag "5000/app".
func ParseImage(ref string) Image {
	ref = strings.TrimSpace(ref)

	remainder, tag := ref, DefaultTag
	if idx := strings.LastIndex(ref, ":"); idx >= 0 {
		remainder, tag = ref[:idx], ref[idx+1:]
	}

	registry := DefaultRegistry
	parts := strings.Split(remainder, "/")
	if len(parts) > 1 && isRegistryHost(parts[0]) {
		registry = parts[0]
		parts = parts[1:]
	}
	path := strings.Trim(strings.Join(parts, "/"), "/")

	if registry == DefaultRegistry && path != "" && !strings.Contains(path, "/") {
		path = DefaultNamespace + "/" + path
	}
	return Image{Registry: registry, Path: path, Tag: tag}
}

func isRegistryHost(segment string) bool {
	return strings.Contains(segment, ".") || segment == "localhost"
}

// TargetName builds the destination reference for img under root. The
// registry and every path segment are joined with a hyphen.
func TargetName(root string, img Image) string {
	flat := img.Registry + targetSeparator + strings.ReplaceAll(img.Path, "/", targetSeparator)
	return strings.TrimSuffix(root, "/") + "/" + flat + ":" + img.Tag
}

// RegistryHost extracts the host used for login from a destination base URL
// such as "https://registry.example.com/mirror" or "registry.example.com/mirror".
func RegistryHost(baseURL string) string {
	trimmed := strings.TrimSpace(baseURL)
	if idx := strings.Index(trimmed, "://"); idx >= 0 {
		trimmed = trimmed[idx+3:]
	}
	if idx := strings.Index(trimmed, "/"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return trimmed
}

// TargetRoot strips any scheme and trailing slash from a destination base URL
// so it can prefix image references.
func TargetRoot(baseURL string) string {
	trimmed := strings.TrimSpace(baseURL)
	if idx := strings.Index(trimmed, "://"); idx >= 0 {
		trimmed = trimmed[idx+3:]
	}
	return strings.TrimRight(trimmed, "/")
}
