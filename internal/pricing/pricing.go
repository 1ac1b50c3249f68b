// Package pricing holds the static per-model price table and cost computation.
// Prices are USD per million tokens, compiled into the binary.
package pricing

import "strings"

// ModelPrice holds the input and output token prices for one model.
type ModelPrice struct {
	// InputPerMillion is the USD price per million input tokens.
	InputPerMillion float64

	// OutputPerMillion is the USD price per million output tokens.
	OutputPerMillion float64
}

// prices maps model name prefixes to their price entries. Lookup matches the
// longest prefix so dated variants resolve to their family entry.
var prices = map[string]ModelPrice{
	"claude-sonnet-4-5":        {InputPerMillion: 3.0, OutputPerMillion: 15.0},
	"claude-sonnet-4":          {InputPerMillion: 3.0, OutputPerMillion: 15.0},
	"claude-opus-4":            {InputPerMillion: 15.0, OutputPerMillion: 75.0},
	"claude-3-7-sonnet":        {InputPerMillion: 3.0, OutputPerMillion: 15.0},
	"claude-3-5-haiku":         {InputPerMillion: 0.8, OutputPerMillion: 4.0},
	"claude-haiku-4-5":         {InputPerMillion: 1.0, OutputPerMillion: 5.0},
	"gemini-2.5-pro":           {InputPerMillion: 1.25, OutputPerMillion: 10.0},
	"gemini-2.5-flash":         {InputPerMillion: 0.3, OutputPerMillion: 2.5},
	"gemini-3-pro-preview":     {InputPerMillion: 2.0, OutputPerMillion: 12.0},
	"gpt-4o":                   {InputPerMillion: 2.5, OutputPerMillion: 10.0},
	"gpt-4o-mini":              {InputPerMillion: 0.15, OutputPerMillion: 0.6},
}

// defaultPrice is applied to models absent from the table so cost ceilings
// still accrue something rather than silently passing free traffic.
var defaultPrice = ModelPrice{InputPerMillion: 3.0, OutputPerMillion: 15.0}

// PriceOf returns the price entry for a model.
func PriceOf(model string) ModelPrice {
	best := ""
	for prefix := range prices {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return defaultPrice
	}
	return prices[best]
}

// Cost computes the USD cost of a request given its token counts.
func Cost(model string, inputTokens, outputTokens int64) float64 {
	p := PriceOf(model)
	return float64(inputTokens)*p.InputPerMillion/1e6 + float64(outputTokens)*p.OutputPerMillion/1e6
}
