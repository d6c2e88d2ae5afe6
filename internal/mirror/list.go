package mirror

import (
	"context"
	"strings"

	"github.com/go-logr/logr"

	"github.com/matzegebbe/replicator/internal/failure"
	"github.com/matzegebbe/replicator/internal/fetch"
)

const listScheme = "https://"

// ParseList returns the image references in a newline-delimited list. Lines
// are trimmed; blank lines and lines starting with "#" are skipped.
func ParseList(text string) []string {
	var images []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		images = append(images, line)
	}
	return images
}

// LoadBatch expands args into the ordered image batch. An arg starting with
// https:// is fetched and parsed as a list; anything else is a literal
// reference.
func LoadBatch(ctx context.Context, f fetch.Fetcher, args []string, log logr.Logger) ([]string, error) {
	var images []string
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		if !strings.HasPrefix(arg, listScheme) {
			images = append(images, arg)
			continue
		}
		log.Info("fetching image list", "url", arg)
		body, err := f.Get(ctx, arg)
		if err != nil {
			return nil, err
		}
		listed := ParseList(string(body))
		log.Info("found images in list", "url", arg, "count", len(listed))
		images = append(images, listed...)
	}
	if len(images) == 0 {
		return nil, &failure.ConfigurationError{Reason: "no images provided; pass image references or https:// list URLs"}
	}
	return images, nil
}
