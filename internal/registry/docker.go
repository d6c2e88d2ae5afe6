package registry

import (
	"context"

	"github.com/matzegebbe/replicator/internal/locator"
)

type DockerConfig struct {
	// BaseURL is host[/path], optionally with a scheme.
	BaseURL  string
	Username string
	Password string
}

type dockerClient struct {
	cfg  DockerConfig
	host string
	root string
}

func NewDocker(cfg DockerConfig) (Target, error) {
	return &dockerClient{
		cfg:  cfg,
		host: locator.RegistryHost(cfg.BaseURL),
		root: locator.TargetRoot(cfg.BaseURL),
	}, nil
}

func (d *dockerClient) Registry() string                                        { return d.host }
func (d *dockerClient) Root() string                                            { return d.root }
func (d *dockerClient) EnsureRepository(ctx context.Context, name string) error { return nil }
func (d *dockerClient) BasicAuth(ctx context.Context) (string, string, error)   { return d.cfg.Username, d.cfg.Password, nil }
