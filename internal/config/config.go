package config

import (
	"errors"
	"io/fs"
	"os"

	"sigs.k8s.io/yaml"
)

// FilePath returns default config path inside the container.
const FilePath = "/config/config.yaml"

type Installer struct {
	SourceURL  string  `json:"sourceURL"`
	Bucket     string  `json:"bucket"`
	Region     string  `json:"region"`
	Endpoint   string  `json:"endpoint"`
	PublicURL  string  `json:"publicURL"`
	PathPrefix *string `json:"pathPrefix"`
	PathStyle  bool    `json:"pathStyle"`
	PartSizeMB int64   `json:"partSizeMB"`
	Verify     *bool   `json:"verify"`
	// OutputDir publishes to a local directory instead of object storage.
	OutputDir string `json:"outputDir"`
	// Credentials should come from Secret envs, not the config file.
}

type ECR struct {
	AccountID       string `json:"accountID"`
	Region          string `json:"region"`
	RepoPrefix      string `json:"repoPrefix"`
	CreateRepo      *bool  `json:"createRepo"`
	LifecyclePolicy string `json:"lifecyclePolicy"`
}

type Images struct {
	TargetKind   string `json:"targetKind"` // docker | ecr
	BaseURL      string `json:"baseURL"`
	Runtime      string `json:"runtime"` // docker | remote
	Platform     string `json:"platform"`
	DockerBinary string `json:"dockerBinary"`
	Insecure     bool   `json:"insecure"`
	ECR          ECR    `json:"ecr"`
}

type HTTP struct {
	RetryMax *int   `json:"retryMax"`
	Timeout  string `json:"timeout"`
}

type Config struct {
	Installer      Installer `json:"installer"`
	Images         Images    `json:"images"`
	HTTP           HTTP      `json:"http"`
	DryRun         bool      `json:"dryRun"`
	PushgatewayURL string    `json:"pushgatewayURL"`
}

// Load reads the config file at path. A missing or unreadable file is not an
// error; ok reports whether a file was read.
func Load(path string) (Config, bool, error) {
	var c Config
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return c, false, nil
		}
		return c, false, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, false, err
	}
	return c, true, nil
}
