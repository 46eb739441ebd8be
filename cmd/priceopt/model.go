package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"
)

func modelCommand() *cli.Command {
	return &cli.Command{
		Name:  "model",
		Usage: "Inspect and validate model artifacts",
		Subcommands: []*cli.Command{
			{
				Name:  "inspect",
				Usage: "Print the model's version, transform and features",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "table",
						Usage:   "Output format (table, json)",
					},
				},
				Action: runModelInspect,
			},
			{
				Name:  "validate",
				Usage: "Check that the model loads and every feature can be derived",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "strict",
						Usage: "Fail on warnings (non-finite parameters, zero scales)",
					},
				},
				Action: runModelValidate,
			},
		},
	}
}

func runModelInspect(c *cli.Context) error {
	logger := newLogger(c)
	loaded, _, err := loadOptimizer(context.Background(), c, logger)
	if err != nil {
		return err
	}
	m := loaded.Model
	out := c.App.Writer

	if c.String("format") == "json" {
		type feature struct {
			Name        string  `json:"name"`
			Coefficient float64 `json:"coefficient"`
			Mean        float64 `json:"mean"`
			Scale       float64 `json:"scale"`
		}
		features := make([]feature, m.Len())
		for i := range features {
			mean, scale := m.Standardization(i)
			features[i] = feature{m.Schema().Name(i), m.Coefficient(i), mean, scale}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"version":          m.Version(),
			"source":           loaded.Source,
			"sha256":           loaded.Checksum,
			"target_transform": m.Transform(),
			"intercept":        m.Intercept(),
			"categories":       m.Categories(),
			"features":         features,
			"warnings":         m.Warnings(),
		})
	}

	fmt.Fprintf(out, "Version:    %s\n", m.Version())
	fmt.Fprintf(out, "Source:     %s\n", loaded.Source)
	fmt.Fprintf(out, "SHA-256:    %s\n", loaded.Checksum)
	fmt.Fprintf(out, "Transform:  %s\n", m.Transform())
	fmt.Fprintf(out, "Intercept:  %.6f\n", m.Intercept())
	fmt.Fprintf(out, "Categories: %d\n\n", len(m.Categories()))
	fmt.Fprintf(out, "%-28s %12s %12s %12s\n", "FEATURE", "COEF", "MEAN", "SCALE")
	for i := 0; i < m.Len(); i++ {
		mean, scale := m.Standardization(i)
		fmt.Fprintf(out, "%-28s %12.6f %12.4f %12.4f\n", truncate(m.Schema().Name(i), 28), m.Coefficient(i), mean, scale)
	}
	for _, w := range m.Warnings() {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
	return nil
}

func runModelValidate(c *cli.Context) error {
	logger := newLogger(c)
	loaded, _, err := loadOptimizer(context.Background(), c, logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid: %v", err), 1)
	}

	warnings := loaded.Model.Warnings()
	for _, w := range warnings {
		fmt.Fprintf(c.App.Writer, "warning: %s\n", w)
	}
	if c.Bool("strict") && len(warnings) > 0 {
		return cli.Exit(fmt.Sprintf("invalid: %d warnings in strict mode", len(warnings)), 1)
	}

	fmt.Fprintf(c.App.Writer, "ok: %s (%d features, %s)\n", loaded.Model.Version(), loaded.Model.Len(), loaded.Model.Transform())
	return nil
}
