package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type logOptions struct {
	development bool
	level       string
}

func (o *logOptions) bindFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.development, "zap-devel", false, "development logging: console encoder, debug level, stack traces on warnings")
	fs.StringVar(&o.level, "zap-log-level", "", "log verbosity: debug, info, error, or an integer > 0 for more verbose V levels")
}

func (o logOptions) build() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if o.development {
		cfg = zap.NewDevelopmentConfig()
	}
	if o.level != "" {
		lvl, err := parseLevel(o.level)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	z, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return z, nil
}

// parseLevel accepts zap level names or a positive integer, where n enables
// logr V(n) messages.
func parseLevel(v string) (zapcore.Level, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("invalid log level %q: must be positive", v)
		}
		return zapcore.Level(-n), nil
	}
	lvl, err := zapcore.ParseLevel(v)
	if err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", v, err)
	}
	return lvl, nil
}

func newLogger(z *zap.Logger) logr.Logger {
	return zapr.NewLogger(z).WithName("replicator")
}
