package hostcall

import (
	"context"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats provides descriptive statistics using gonum
type Stats struct{}

// NewStats creates the statistics provider
func NewStats() *Stats {
	return &Stats{}
}

// Methods returns statistics method definitions
func (s *Stats) Methods() []Method {
	return []Method{
		{
			Name:        "stats.describe",
			Description: "Count, mean, spread and extremes of a sample",
			Parameters: []Parameter{
				{Name: "numbers", Type: "array", Description: "Array of numbers", Required: true},
			},
			Returns: "object",
		},
		{
			Name:        "stats.quantile",
			Description: "Empirical quantile of a sample",
			Parameters: []Parameter{
				{Name: "numbers", Type: "array", Description: "Array of numbers", Required: true},
				{Name: "q", Type: "number", Description: "Quantile in [0, 1]", Required: true},
			},
			Returns: "number",
		},
	}
}

// Execute routes to the statistics method
func (s *Stats) Execute(_ context.Context, method string, params Params) (any, error) {
	numbers, err := params.Numbers("numbers")
	if err != nil {
		return nil, err
	}
	if len(numbers) == 0 {
		return nil, fmt.Errorf("%w: numbers is empty", ErrInvalidParams)
	}
	sort.Float64s(numbers)

	switch method {
	case "stats.describe":
		mean, std := stat.MeanStdDev(numbers, nil)
		out := map[string]any{
			"count":  len(numbers),
			"sum":    floats.Sum(numbers),
			"mean":   mean,
			"min":    numbers[0],
			"max":    numbers[len(numbers)-1],
			"median": stat.Quantile(0.5, stat.Empirical, numbers, nil),
		}
		// Sample spread is undefined for a single value.
		if len(numbers) > 1 {
			out["stddev"] = std
			out["variance"] = std * std
		}
		return out, nil
	case "stats.quantile":
		q, err := params.Float("q")
		if err != nil {
			return nil, err
		}
		if q < 0 || q > 1 {
			return nil, fmt.Errorf("%w: q must be in [0, 1]", ErrInvalidParams)
		}
		return stat.Quantile(q, stat.Empirical, numbers, nil), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
}
