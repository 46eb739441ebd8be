package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"price-optimizer/pkg/api"
	apperrors "price-optimizer/pkg/errors"
)

// exitNoFeasiblePrice is the exit code when every candidate was skipped.
const exitNoFeasiblePrice = 2

func requestFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "request",
			Aliases: []string{"r"},
			Usage:   "Path to a JSON pricing request (flags below override its fields)",
		},
		&cli.StringFlag{Name: "category", Usage: "Product category"},
		&cli.Float64Flag{Name: "cogs", Usage: "Cost of goods sold per unit"},
		&cli.Float64Flag{Name: "freight", Usage: "Freight cost per unit"},
		&cli.Float64Flag{Name: "comp1", Usage: "Competitor 1 price"},
		&cli.Float64Flag{Name: "comp2", Usage: "Competitor 2 price"},
		&cli.Float64Flag{Name: "comp3", Usage: "Competitor 3 price"},
		&cli.Float64Flag{Name: "score", Usage: "Product review score (1-5)"},
		&cli.Int64Flag{Name: "customers", Usage: "Customer count"},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Value:   "table",
			Usage:   "Output format (table, json, markdown)",
		},
	}
}

// readPayload merges the --request file with any explicitly set flags.
func readPayload(c *cli.Context) (api.PredictRequestPayload, error) {
	var payload api.PredictRequestPayload
	if path := c.String("request"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return payload, fmt.Errorf("failed to read request: %w", err)
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return payload, fmt.Errorf("failed to parse request %s: %w", path, err)
		}
	}

	p := &payload.PricingRequestPayload
	if c.IsSet("category") {
		v := c.String("category")
		p.Category = &v
	}
	floats := []struct {
		name string
		dst  **float64
	}{
		{"cogs", &p.Cogs},
		{"freight", &p.Freight},
		{"comp1", &p.Comp1},
		{"comp2", &p.Comp2},
		{"comp3", &p.Comp3},
		{"score", &p.Score},
		{"price", &payload.UnitPrice},
	}
	for _, f := range floats {
		if c.IsSet(f.name) {
			v := c.Float64(f.name)
			*f.dst = &v
		}
	}
	if c.IsSet("customers") {
		v := c.Int64("customers")
		p.Customers = &v
	}
	return payload, nil
}

func optimizeCommand() *cli.Command {
	flags := append(requestFlags(),
		&cli.Float64Flag{Name: "min-price", Usage: "Override the lowest candidate price (never below break-even)"},
		&cli.Float64Flag{Name: "max-price", Usage: "Override the highest candidate price"},
	)
	return &cli.Command{
		Name:   "optimize",
		Usage:  "Find the profit-maximizing price for one product",
		Flags:  flags,
		Action: runOptimize,
	}
}

func runOptimize(c *cli.Context) error {
	ctx := context.Background()
	logger := newLogger(c)

	payload, err := readPayload(c)
	if err != nil {
		return err
	}
	req, err := payload.PricingRequestPayload.ToRequest()
	if err != nil {
		return err
	}

	var opts api.SearchOptions
	if c.IsSet("min-price") {
		v := c.Float64("min-price")
		opts.MinPrice = &v
	}
	if c.IsSet("max-price") {
		v := c.Float64("max-price")
		opts.MaxPrice = &v
	}

	loaded, opt, err := loadOptimizer(ctx, c, logger)
	if err != nil {
		return err
	}

	outcome, err := opt.Optimize(ctx, req, opts)
	if errors.Is(err, apperrors.ErrNoFeasiblePrice) {
		return cli.Exit(err.Error(), exitNoFeasiblePrice)
	}
	if err != nil {
		return err
	}

	report := optimizeReport{
		ModelVersion: loaded.Model.Version(),
		Request:      req,
		Result:       outcome.OptimizationResult,
		Search:       outcome.Search,
	}
	return writeOptimize(c.App.Writer, c.String("format"), report)
}

func predictCommand() *cli.Command {
	flags := append(requestFlags(),
		&cli.Float64Flag{Name: "price", Aliases: []string{"p"}, Usage: "Unit price to evaluate"},
		&cli.BoolFlag{Name: "explain", Usage: "Show each feature's raw value, standardized value and contribution"},
	)
	return &cli.Command{
		Name:   "predict",
		Usage:  "Predict demand and profit at a single price",
		Flags:  flags,
		Action: runPredict,
	}
}

func runPredict(c *cli.Context) error {
	ctx := context.Background()
	logger := newLogger(c)

	payload, err := readPayload(c)
	if err != nil {
		return err
	}
	req, price, err := payload.ToRequest()
	if err != nil {
		return err
	}

	loaded, opt, err := loadOptimizer(ctx, c, logger)
	if err != nil {
		return err
	}
	ev, err := opt.Evaluate(req, price)
	if err != nil {
		return err
	}
	var features []featureContribution
	if c.Bool("explain") {
		features = explain(opt, req, price)
	}
	return writePredict(c.App.Writer, c.String("format"), loaded.Model.Version(), req, *ev, features)
}
