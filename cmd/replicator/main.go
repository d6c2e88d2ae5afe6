package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/matzegebbe/replicator/internal/failure"
	"github.com/matzegebbe/replicator/internal/fetch"
	"github.com/matzegebbe/replicator/internal/installer"
	"github.com/matzegebbe/replicator/internal/mirror"
	"github.com/matzegebbe/replicator/internal/registry"
	"github.com/matzegebbe/replicator/internal/storage"
	"github.com/matzegebbe/replicator/pkg/metrics"
)

const defaultEnvFile = ".env"

type app struct {
	lookup     lookupFunc
	configPath string
	envFile    string
	logOpts    logOptions
	logger     logr.Logger
	sync       func()
	// reported is set once an error has been written to the log.
	reported bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{lookup: os.LookupEnv, logger: logr.Discard(), sync: func() {}}
	err := a.rootCmd().ExecuteContext(ctx)
	stop()
	a.sync()
	if err != nil {
		if !a.reported {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "replicator",
		Short:         "Mirror installer artifacts and container images into infrastructure you control",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(a.envFile, cmd.Flags().Changed("env-file")); err != nil {
				return err
			}
			z, err := a.logOpts.build()
			if err != nil {
				return err
			}
			a.logger = newLogger(z)
			a.sync = func() { _ = z.Sync() }
			return nil
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to the config file (default $CONFIG_PATH or /config/config.yaml)")
	flags.StringVar(&a.envFile, "env-file", defaultEnvFile, "dotenv file loaded before reading the environment")
	a.logOpts.bindFlags(flags)

	root.AddCommand(a.installerCmd(), a.imagesCmd())
	return root
}

func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil || (!explicit && errors.Is(err, fs.ErrNotExist)) {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", path, err)
}

func (a *app) installerCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "installer",
		Short: "Mirror the installer scripts, release manifest and platform binaries to object storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.report(a.runInstaller(cmd.Context(), dryRun))
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "resolve and fetch sources without uploading")
	return cmd
}

func (a *app) imagesCmd() *cobra.Command {
	var flags imagesFlags
	cmd := &cobra.Command{
		Use:   "images [IMAGE | https://LIST]...",
		Short: "Mirror container images into the destination registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.report(a.runImages(cmd.Context(), flags, args))
		},
	}
	cmd.Flags().BoolVar(&flags.DryRun, "dry-run", false, "resolve target names without pulling or pushing")
	cmd.Flags().StringVar(&flags.Runtime, "runtime", "", "image runtime: docker or remote (default $RUNTIME or docker)")
	cmd.Flags().StringVar(&flags.Platform, "platform", "", "platform pinned on every pull (default $MIRROR_PLATFORM or linux/amd64)")
	return cmd
}

func (a *app) report(err error) error {
	if err == nil {
		return nil
	}
	a.reported = true
	var cfgErr *failure.ConfigurationError
	if errors.As(err, &cfgErr) {
		a.logger.Error(err, "resolve configuration failed")
	} else {
		a.logger.Error(err, "replication failed")
	}
	return err
}

func (a *app) runInstaller(ctx context.Context, dryRun bool) error {
	cfg, err := loadInstallerConfig(a.lookup, a.configPath, dryRun)
	if err != nil {
		return err
	}
	store, err := a.newStore(ctx, cfg)
	if err != nil {
		return err
	}

	r := installer.NewReplicator(fetch.New(a.logger, cfg.HTTP), store, cfg.Options, a.logger)
	a.logger.Info("starting installer mirror", "source", cfg.Options.SourceURL, "destination", r.Destination(), "dryRun", cfg.DryRun)
	report, err := r.Run(ctx)
	a.pushMetrics(ctx, cfg.PushgatewayURL, "replicator_installer")
	if err != nil {
		return err
	}
	a.logger.Info("installer mirror complete", "version", report.Version, "objects", len(report.Objects))
	return nil
}

func (a *app) newStore(ctx context.Context, cfg installerConfig) (storage.Store, error) {
	if cfg.OutputDir != "" {
		return &storage.Dir{
			Root:      cfg.OutputDir,
			Prefix:    cfg.Store.Prefix,
			PublicURL: cfg.Store.PublicURL,
			Logger:    a.logger.WithName("storage"),
		}, nil
	}
	return storage.NewS3(ctx, cfg.Store, a.logger)
}

func (a *app) runImages(ctx context.Context, flags imagesFlags, args []string) error {
	if len(args) == 0 {
		return &failure.ConfigurationError{Reason: "no images provided; pass image references or https:// list URLs"}
	}
	cfg, err := loadImagesConfig(a.lookup, a.configPath, flags)
	if err != nil {
		return err
	}

	target, err := a.newTarget(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init registry target failed: %w", err)
	}
	var rt mirror.Runtime
	if cfg.Runtime == runtimeRemote {
		rt = mirror.NewRemoteRuntime(cfg.Insecure, a.logger)
	} else {
		rt = mirror.NewDockerRuntime(cfg.DockerBinary, nil, a.logger)
	}

	r := mirror.NewReplicator(rt, target, fetch.New(a.logger, cfg.HTTP), mirror.Options{
		Platform: cfg.Platform,
		DryRun:   cfg.DryRun,
	}, a.logger)
	a.logger.Info("starting image mirror", "target", target.Root(), "runtime", rt.Name(), "dryRun", cfg.DryRun)
	report, err := r.Run(ctx, args)
	a.pushMetrics(ctx, cfg.PushgatewayURL, "replicator_images")
	if err != nil {
		return err
	}
	a.logger.Info("image mirror complete", "images", len(report.Transfers))
	return nil
}

func (a *app) newTarget(ctx context.Context, cfg imagesConfig) (registry.Target, error) {
	if cfg.TargetKind == targetECR {
		return registry.NewECR(ctx, cfg.ECR, a.logger)
	}
	return registry.NewDocker(cfg.Docker)
}

func (a *app) pushMetrics(ctx context.Context, url, job string) {
	if err := metrics.Push(context.WithoutCancel(ctx), url, job); err != nil {
		a.logger.Error(err, "push metrics failed", "url", url)
	}
}
