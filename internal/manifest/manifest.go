// Package manifest discovers the per-platform binaries of a release from its
// version pointer and platform manifest.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/matzegebbe/replicator/internal/failure"
)

const (
	// VersionFile is the pointer to the current release.
	VersionFile  = "stable"
	manifestFile = "manifest.json"

	binaryName        = "claude"
	windowsBinaryName = "claude.exe"
	windowsPrefix     = "win"
)

// Version is the trimmed release identifier read from the version pointer.
type Version string

// ManifestPath returns the relative path of the platform manifest.
func (v Version) ManifestPath() string {
	return string(v) + "/" + manifestFile
}

// Platform holds the metadata published for a single platform. Checksum and
// Size are optional.
type Platform struct {
	Checksum string `json:"checksum,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Document is a parsed platform manifest.
type Document struct {
	Version   string              `json:"version,omitempty"`
	Platforms map[string]Platform `json:"platforms"`
	// Unreadable lists platforms whose metadata could not be decoded. They are
	// still published, without checksum or size.
	Unreadable []string `json:"-"`
}

// Names returns the platform identifiers in sorted order.
func (d Document) Names() []string {
	names := make([]string, 0, len(d.Platforms))
	for name := range d.Platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Binary is one platform binary of a release.
type Binary struct {
	Platform string
	Name     string
	Path     string
	Checksum string
	Size     int64
}

// ParseVersion reads the version pointer.
func ParseVersion(raw []byte) (Version, error) {
	v := strings.TrimSpace(string(raw))
	if v == "" {
		return "", &failure.ResolutionError{What: "version", Source: VersionFile, Err: errors.New("empty version pointer")}
	}
	if err := checkSegment(v); err != nil {
		return "", &failure.ResolutionError{What: "version", Source: VersionFile, Err: err}
	}
	return Version(v), nil
}

// checkSegment rejects values that cannot be used as a single key segment.
func checkSegment(v string) error {
	if strings.ContainsAny(v, `/\`) || strings.Contains(v, "..") {
		return fmt.Errorf("%q is not a single path segment", v)
	}
	return nil
}

// Parse decodes a platform manifest. A manifest without a platforms object is
// rejected.
func Parse(raw []byte) (Document, error) {
	var doc struct {
		Version   string                     `json:"version"`
		Platforms map[string]json.RawMessage `json:"platforms"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, &failure.ResolutionError{What: "platforms", Source: manifestFile, Err: err}
	}
	if doc.Platforms == nil {
		return Document{}, &failure.ResolutionError{What: "platforms", Source: manifestFile}
	}

	out := Document{Version: doc.Version, Platforms: make(map[string]Platform, len(doc.Platforms))}
	for name, rawMeta := range doc.Platforms {
		if name == "" {
			return Document{}, &failure.ResolutionError{What: "platforms", Source: manifestFile, Err: errors.New("empty platform name")}
		}
		if err := checkSegment(name); err != nil {
			return Document{}, &failure.ResolutionError{What: "platforms", Source: manifestFile, Err: err}
		}
		var meta Platform
		if err := json.Unmarshal(rawMeta, &meta); err != nil {
			meta = Platform{}
			out.Unreadable = append(out.Unreadable, name)
		}
		out.Platforms[name] = meta
	}
	sort.Strings(out.Unreadable)
	return out, nil
}

// BinaryName returns the executable name published for a platform.
func BinaryName(platform string) string {
	if strings.HasPrefix(platform, windowsPrefix) {
		return windowsBinaryName
	}
	return binaryName
}

// Binaries enumerates the binary locators of version described by doc.
func Binaries(version Version, doc Document) []Binary {
	names := doc.Names()
	out := make([]Binary, 0, len(names))
	for _, platform := range names {
		meta := doc.Platforms[platform]
		name := BinaryName(platform)
		out = append(out, Binary{
			Platform: platform,
			Name:     name,
			Path:     string(version) + "/" + platform + "/" + name,
			Checksum: strings.ToLower(strings.TrimSpace(meta.Checksum)),
			Size:     meta.Size,
		})
	}
	return out
}
