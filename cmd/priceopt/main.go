// priceopt - profit-maximizing retail price optimizer
//
// Usage:
//
//	priceopt serve --model model.json
//	priceopt optimize --model model.json --category perfumery --cogs 45 ...
//	priceopt predict --model model.json --request req.json --price 99.90
//	priceopt model inspect --model model.json
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"price-optimizer/internal/artifact"
	"price-optimizer/internal/optimizer"
	"price-optimizer/pkg/platform"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := platform.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load .env: %v\n", err)
		os.Exit(1)
	}

	if err := newApp().Run(os.Args); err != nil {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "priceopt",
		Usage:   "Profit-maximizing price recommendations from a fitted demand model",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"PRICEOPT_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "json",
				Usage:   "Log format (json, console)",
				EnvVars: []string{"PRICEOPT_LOG_FORMAT"},
			},
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Value:   "model.json",
				Usage:   "Model artifact location (path, http(s):// URL or s3://bucket/key)",
				EnvVars: []string{"MODEL_PATH"},
			},
			&cli.StringFlag{
				Name:    "aws-region",
				Usage:   "AWS region for s3:// model locations",
				EnvVars: []string{"AWS_REGION"},
			},
			&cli.IntFlag{
				Name:    "samples",
				Value:   optimizer.DefaultConfig().Samples,
				Usage:   "Candidate prices evaluated per optimization",
				EnvVars: []string{"PRICEOPT_SAMPLES"},
			},
			&cli.Float64Flag{
				Name:    "upper-multiplier",
				Value:   optimizer.DefaultConfig().UpperMultiplier,
				Usage:   "Upper search bound as a multiple of the highest competitor price",
				EnvVars: []string{"PRICEOPT_UPPER_MULTIPLIER"},
			},
			&cli.Float64Flag{
				Name:    "price-floor",
				Value:   optimizer.DefaultConfig().PriceFloor,
				Usage:   "Lowest candidate price when landed cost is zero",
				EnvVars: []string{"PRICEOPT_PRICE_FLOOR"},
			},
		},

		Commands: []*cli.Command{
			serveCommand(),
			optimizeCommand(),
			predictCommand(),
			modelCommand(),
		},
	}
}

// newLogger logs to stderr so command output on stdout stays parseable.
// serve overrides this and logs to stdout.
func newLogger(c *cli.Context) zerolog.Logger {
	return platform.InitLogger(platform.LogConfig{
		Level:  c.String("log-level"),
		Format: c.String("log-format"),
		Output: c.App.ErrWriter,
	})
}

func optimizerConfig(c *cli.Context) optimizer.Config {
	return optimizer.Config{
		Samples:         c.Int("samples"),
		UpperMultiplier: c.Float64("upper-multiplier"),
		PriceFloor:      c.Float64("price-floor"),
	}
}

// loadOptimizer fetches the model and builds an optimizer over it.
func loadOptimizer(ctx context.Context, c *cli.Context, logger zerolog.Logger) (*artifact.Loaded, *optimizer.Optimizer, error) {
	loader := artifact.NewLoader(
		artifact.WithRegion(c.String("aws-region")),
		artifact.WithLogger(logger),
	)
	loaded, err := loader.Load(ctx, c.String("model"))
	if err != nil {
		return nil, nil, err
	}
	opt, err := optimizer.New(loaded.Model, optimizerConfig(c), optimizer.WithLogger(logger))
	if err != nil {
		return nil, nil, fmt.Errorf("model %s is not usable: %w", loaded.Model.Version(), err)
	}
	return loaded, opt, nil
}
