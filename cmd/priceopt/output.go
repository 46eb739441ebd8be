package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"price-optimizer/internal/optimizer"
	"price-optimizer/pkg/api"
)

type optimizeReport struct {
	ModelVersion string                 `json:"model_version"`
	Request      api.PricingRequest     `json:"request"`
	Result       api.OptimizationResult `json:"result"`
	Search       api.SearchSummary      `json:"search"`
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func writeOptimize(w io.Writer, format string, r optimizeReport) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "markdown":
		fmt.Fprintln(w, "## Price Recommendation")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "| Metric | Value |")
		fmt.Fprintln(w, "|--------|-------|")
		fmt.Fprintf(w, "| **Optimal Price** | $%s |\n", money(r.Result.OptimalPrice))
		fmt.Fprintf(w, "| **Expected Profit** | $%s |\n", money(r.Result.MaxProfit))
		fmt.Fprintf(w, "| **Predicted Quantity** | %.2f |\n", r.Result.PredictedQty)
		fmt.Fprintf(w, "| **Break-even** | $%s |\n", money(r.Request.LandedCost()))
		fmt.Fprintf(w, "| **Search Range** | $%s - $%s (%d samples, %d skipped) |\n",
			money(r.Search.MinPrice), money(r.Search.MaxPrice), r.Search.Samples, r.Search.Skipped)
		fmt.Fprintf(w, "| **Model** | %s |\n", r.ModelVersion)
		return nil
	default:
		category := r.Request.Category
		if category == "" {
			category = "(none)"
		}
		line := "+--------------------------------------------------------------+"
		fmt.Fprintln(w, line)
		fmt.Fprintf(w, "| %-60s |\n", "PRICE RECOMMENDATION")
		fmt.Fprintln(w, line)
		fmt.Fprintf(w, "|  Category:            %-38s |\n", truncate(category, 38))
		fmt.Fprintf(w, "|  Optimal Price:       $%-37s |\n", money(r.Result.OptimalPrice))
		fmt.Fprintf(w, "|  Expected Profit:     $%-37s |\n", money(r.Result.MaxProfit))
		fmt.Fprintf(w, "|  Predicted Quantity:  %-38s |\n", fmt.Sprintf("%.2f", r.Result.PredictedQty))
		fmt.Fprintf(w, "|  Break-even:          $%-37s |\n", money(r.Request.LandedCost()))
		fmt.Fprintln(w, line)
		fmt.Fprintf(w, "|  Search:  $%-50s |\n", truncate(fmt.Sprintf("%s - %s, %d samples, %d skipped",
			money(r.Search.MinPrice), money(r.Search.MaxPrice), r.Search.Samples, r.Search.Skipped), 50))
		fmt.Fprintf(w, "|  Model:   %-51s |\n", truncate(r.ModelVersion, 51))
		fmt.Fprintln(w, line)
		return nil
	}
}

// featureContribution is one model term at the evaluated price.
type featureContribution struct {
	Name         string  `json:"name"`
	Raw          float64 `json:"raw"`
	Standardized float64 `json:"standardized"`
	Coefficient  float64 `json:"coefficient"`
	Contribution float64 `json:"contribution"`
}

// explain breaks the linear output at price down by feature, in model order.
func explain(opt *optimizer.Optimizer, req api.PricingRequest, price float64) []featureContribution {
	b := opt.Builder()
	raw := b.Raw(req, price)
	vec := b.Build(req, price)
	m := opt.Model()

	out := make([]featureContribution, len(vec.Values))
	for i, x := range vec.Values {
		name := vec.Schema.Name(i)
		coef := m.Coefficient(i)
		out[i] = featureContribution{
			Name:         name,
			Raw:          raw[name],
			Standardized: x,
			Coefficient:  coef,
			Contribution: coef * x,
		}
	}
	return out
}

type predictReport struct {
	api.PredictResponse
	Features []featureContribution `json:"features,omitempty"`
}

func writePredict(w io.Writer, format, modelVersion string, req api.PricingRequest, ev api.PriceEvaluation, features []featureContribution) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(predictReport{
			PredictResponse: api.PredictResponse{PriceEvaluation: ev, ModelVersion: modelVersion, Success: true},
			Features:        features,
		})
	case "markdown":
		fmt.Fprintln(w, "| Price | Predicted Qty | Margin | Profit |")
		fmt.Fprintln(w, "|-------|---------------|--------|--------|")
		fmt.Fprintf(w, "| $%s | %.2f | $%s | $%s |\n",
			money(ev.UnitPrice), ev.PredictedQty, money(ev.Margin), money(ev.PredictedProfit))
		if len(features) > 0 {
			fmt.Fprintln(w)
			fmt.Fprintln(w, "| Feature | Raw | Standardized | Coef | Contribution |")
			fmt.Fprintln(w, "|---------|-----|--------------|------|--------------|")
			for _, f := range features {
				fmt.Fprintf(w, "| %s | %.4f | %.4f | %.4f | %.4f |\n", f.Name, f.Raw, f.Standardized, f.Coefficient, f.Contribution)
			}
		}
		return nil
	default:
		fmt.Fprintf(w, "Price:          $%s\n", money(ev.UnitPrice))
		fmt.Fprintf(w, "Predicted qty:  %.2f\n", ev.PredictedQty)
		fmt.Fprintf(w, "Unit margin:    $%s\n", money(ev.Margin))
		fmt.Fprintf(w, "Profit:         $%s\n", money(ev.PredictedProfit))
		if ev.Margin < 0 {
			fmt.Fprintf(w, "warning: price is below break-even ($%s)\n", money(req.LandedCost()))
		}
		if len(features) > 0 {
			fmt.Fprintf(w, "\n%-28s %14s %12s %12s %12s\n", "FEATURE", "RAW", "STD", "COEF", "CONTRIB")
			for _, f := range features {
				fmt.Fprintf(w, "%-28s %14.4f %12.4f %12.4f %12.4f\n", truncate(f.Name, 28), f.Raw, f.Standardized, f.Coefficient, f.Contribution)
			}
		}
		return nil
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
