package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/matzegebbe/replicator/internal/config"
	"github.com/matzegebbe/replicator/internal/failure"
	"github.com/matzegebbe/replicator/internal/fetch"
	"github.com/matzegebbe/replicator/internal/installer"
	"github.com/matzegebbe/replicator/internal/mirror"
	"github.com/matzegebbe/replicator/internal/registry"
	"github.com/matzegebbe/replicator/internal/storage"
)

const (
	defaultCOSRegion  = "ap-guangzhou"
	defaultPathPrefix = "cc"

	targetDocker = "docker"
	targetECR    = "ecr"

	runtimeDocker = "docker"
	runtimeRemote = "remote"
)

// lookupFunc reads one environment variable. os.LookupEnv in production.
type lookupFunc func(string) (string, bool)

type env struct {
	lookup lookupFunc
}

func (e env) raw(key string) (string, bool) {
	if e.lookup == nil {
		return "", false
	}
	return e.lookup(key)
}

func (e env) get(key string) string {
	v, _ := e.raw(key)
	return strings.TrimSpace(v)
}

// or returns the first non-empty value of the env var and the fallbacks.
func (e env) or(key string, fallbacks ...string) string {
	if v := e.get(key); v != "" {
		return v
	}
	for _, f := range fallbacks {
		if f = strings.TrimSpace(f); f != "" {
			return f
		}
	}
	return ""
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true, true
	case "0", "false", "no":
		return false, true
	}
	return false, false
}

// sharedConfig holds the settings both pipelines use.
type sharedConfig struct {
	DryRun         bool
	HTTP           fetch.Options
	PushgatewayURL string
}

type installerConfig struct {
	sharedConfig
	Store     storage.S3Config
	OutputDir string
	Options   installer.Options
}

type imagesConfig struct {
	sharedConfig
	TargetKind   string
	Docker       registry.DockerConfig
	ECR          registry.ECRConfig
	Runtime      string
	Platform     string
	DockerBinary string
	Insecure     bool
}

// imagesFlags are command line overrides for the image pipeline. Empty values
// leave the env and file settings in place.
type imagesFlags struct {
	DryRun   bool
	Runtime  string
	Platform string
}

func loadFile(e env, pathFlag string) (config.Config, error) {
	path := strings.TrimSpace(pathFlag)
	if path == "" {
		path = e.or("CONFIG_PATH", config.FilePath)
	}
	cfg, _, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config file %s: %w", path, err)
	}
	return cfg, nil
}

func resolveShared(e env, file config.Config, dryRunFlag bool) (sharedConfig, error) {
	shared := sharedConfig{
		PushgatewayURL: e.or("PUSHGATEWAY_URL", file.PushgatewayURL),
		HTTP:           fetch.Options{RetryMax: fetch.DefaultRetryMax},
	}

	if v, ok := parseBool(e.get("DRY_RUN")); ok {
		shared.DryRun = v
	} else {
		shared.DryRun = dryRunFlag || file.DryRun
	}

	if file.HTTP.RetryMax != nil {
		shared.HTTP.RetryMax = *file.HTTP.RetryMax
	}
	if v := e.get("HTTP_RETRY_MAX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return sharedConfig{}, &failure.ConfigurationError{Reason: fmt.Sprintf("HTTP_RETRY_MAX %q is not an integer", v)}
		}
		shared.HTTP.RetryMax = n
	}
	if v := e.or("HTTP_TIMEOUT", file.HTTP.Timeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return sharedConfig{}, &failure.ConfigurationError{Reason: fmt.Sprintf("HTTP_TIMEOUT %q is not a duration", v)}
		}
		shared.HTTP.Timeout = d
	}
	return shared, nil
}

// loadInstallerConfig resolves the installer pipeline settings from env vars
// and the optional config file. It performs no network activity.
func loadInstallerConfig(lookup lookupFunc, configPath string, dryRunFlag bool) (installerConfig, error) {
	e := env{lookup: lookup}
	file, err := loadFile(e, configPath)
	if err != nil {
		return installerConfig{}, err
	}
	shared, err := resolveShared(e, file, dryRunFlag)
	if err != nil {
		return installerConfig{}, err
	}
	fc := file.Installer

	prefix := defaultPathPrefix
	if fc.PathPrefix != nil {
		prefix = *fc.PathPrefix
	}
	// an explicitly empty COS_PATH_PREFIX publishes at the bucket root
	if v, ok := e.raw("COS_PATH_PREFIX"); ok {
		prefix = v
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")

	region := e.or("COS_REGION", fc.Region, defaultCOSRegion)
	cfg := installerConfig{
		sharedConfig: shared,
		OutputDir:    e.or("INSTALLER_OUTPUT_DIR", fc.OutputDir),
		Store: storage.S3Config{
			Bucket:    e.or("COS_BUCKET", fc.Bucket),
			Region:    region,
			Endpoint:  e.or("COS_ENDPOINT", fc.Endpoint, fmt.Sprintf("https://cos.%s.myqcloud.com", region)),
			AccessKey: e.get("COS_SECRET_ID"),
			SecretKey: e.get("COS_SECRET_KEY"),
			Prefix:    prefix,
			PublicURL: strings.TrimRight(e.or("COS_PUBLIC_URL", fc.PublicURL), "/"),
			PartSize:  fc.PartSizeMB * 1024 * 1024,
			PathStyle: fc.PathStyle,
		},
		Options: installer.Options{
			SourceURL: strings.TrimRight(e.or("INSTALLER_SOURCE_URL", fc.SourceURL, installer.DefaultSourceURL), "/"),
			Verify:    true,
			DryRun:    shared.DryRun,
		},
	}
	if fc.Verify != nil {
		cfg.Options.Verify = *fc.Verify
	}
	if v, ok := parseBool(e.get("INSTALLER_VERIFY")); ok {
		cfg.Options.Verify = v
	}

	var missing []string
	if cfg.OutputDir == "" {
		if cfg.Store.Bucket == "" {
			missing = append(missing, "COS_BUCKET")
		}
		if cfg.Store.AccessKey == "" {
			missing = append(missing, "COS_SECRET_ID")
		}
		if cfg.Store.SecretKey == "" {
			missing = append(missing, "COS_SECRET_KEY")
		}
	}
	if cfg.Store.PublicURL == "" {
		missing = append(missing, "COS_PUBLIC_URL")
	}
	if len(missing) > 0 {
		return installerConfig{}, &failure.ConfigurationError{Missing: missing}
	}
	return cfg, nil
}

// loadImagesConfig resolves the image pipeline settings from flags, env vars
// and the optional config file. It performs no network activity.
func loadImagesConfig(lookup lookupFunc, configPath string, flags imagesFlags) (imagesConfig, error) {
	e := env{lookup: lookup}
	file, err := loadFile(e, configPath)
	if err != nil {
		return imagesConfig{}, err
	}
	shared, err := resolveShared(e, file, flags.DryRun)
	if err != nil {
		return imagesConfig{}, err
	}
	fc := file.Images

	cfg := imagesConfig{
		sharedConfig: shared,
		TargetKind:   strings.ToLower(e.or("TARGET_KIND", fc.TargetKind, targetDocker)),
		Runtime:      strings.ToLower(e.or("RUNTIME", fc.Runtime, runtimeDocker)),
		Platform:     e.or("MIRROR_PLATFORM", fc.Platform, mirror.DefaultPlatform),
		DockerBinary: e.or("DOCKER_BINARY", fc.DockerBinary, "docker"),
		Insecure:     fc.Insecure,
	}
	if flags.Runtime != "" {
		cfg.Runtime = strings.ToLower(strings.TrimSpace(flags.Runtime))
	}
	if flags.Platform != "" {
		cfg.Platform = strings.TrimSpace(flags.Platform)
	}
	if v, ok := parseBool(e.get("REGISTRY_INSECURE")); ok {
		cfg.Insecure = v
	}

	switch cfg.Runtime {
	case runtimeDocker, runtimeRemote:
	default:
		return imagesConfig{}, &failure.ConfigurationError{Reason: fmt.Sprintf("unknown RUNTIME %q (want docker or remote)", cfg.Runtime)}
	}

	var missing []string
	switch cfg.TargetKind {
	case targetDocker:
		cfg.Docker = registry.DockerConfig{
			BaseURL:  strings.TrimRight(e.or("REGISTRY_BASE_URL", fc.BaseURL), "/"),
			Username: e.get("REGISTRY_USERNAME"),
			Password: e.get("REGISTRY_PASSWORD"),
		}
		if cfg.Docker.Username == "" {
			missing = append(missing, "REGISTRY_USERNAME")
		}
		if cfg.Docker.Password == "" {
			missing = append(missing, "REGISTRY_PASSWORD")
		}
		if cfg.Docker.BaseURL == "" {
			missing = append(missing, "REGISTRY_BASE_URL")
		}
	case targetECR:
		create := true
		if fc.ECR.CreateRepo != nil {
			create = *fc.ECR.CreateRepo
		}
		if v, ok := parseBool(e.get("ECR_CREATE_REPO")); ok {
			create = v
		}
		cfg.ECR = registry.ECRConfig{
			AccountID:       e.or("ECR_ACCOUNT_ID", fc.ECR.AccountID),
			Region:          e.or("AWS_REGION", fc.ECR.Region),
			RepoPrefix:      e.or("ECR_REPO_PREFIX", fc.ECR.RepoPrefix),
			CreateRepo:      create,
			LifecyclePolicy: fc.ECR.LifecyclePolicy,
		}
		if cfg.ECR.AccountID == "" {
			missing = append(missing, "ECR_ACCOUNT_ID")
		}
		if cfg.ECR.Region == "" {
			missing = append(missing, "AWS_REGION")
		}
	default:
		return imagesConfig{}, &failure.ConfigurationError{Reason: fmt.Sprintf("unknown TARGET_KIND %q (want docker or ecr)", cfg.TargetKind)}
	}
	if len(missing) > 0 {
		return imagesConfig{}, &failure.ConfigurationError{Missing: missing}
	}
	return cfg, nil
}
