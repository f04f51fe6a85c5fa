package providers

// ModelPrice is the per-million-token rate for one model, in USD. Rates are
// list prices as published by each provider and are approximate; callers
// that need exact billing reconciliation should treat Cost as an estimate.
type ModelPrice struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// pricingTable maps a model name to its ModelPrice. Models absent from this
// table fall back to PriceForModel's zero-cost default rather than a guess.
var pricingTable = map[string]ModelPrice{
	"claude-sonnet-4-20250514":   {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-opus-4-20250514":     {InputPerMTok: 15.00, OutputPerMTok: 75.00},
	"claude-3-5-sonnet-20241022": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-3-opus-20240229":     {InputPerMTok: 15.00, OutputPerMTok: 75.00},
	"claude-3-haiku-20240307":    {InputPerMTok: 0.25, OutputPerMTok: 1.25},

	"gpt-4o":        {InputPerMTok: 2.50, OutputPerMTok: 10.00},
	"gpt-4-turbo":   {InputPerMTok: 10.00, OutputPerMTok: 30.00},
	"gpt-4":         {InputPerMTok: 30.00, OutputPerMTok: 60.00},
	"gpt-3.5-turbo": {InputPerMTok: 0.50, OutputPerMTok: 1.50},
}

// PriceForModel returns the known rate for a model, and false if the model
// isn't in the table (e.g. a fine-tune or a provider we don't price yet).
func PriceForModel(model string) (ModelPrice, bool) {
	p, ok := pricingTable[model]
	return p, ok
}

// EstimateCost converts a token Usage into a USD estimate for the given
// model. Unknown models price as zero rather than erroring, since cost
// tracking is advisory, not billing-authoritative.
func EstimateCost(model string, usage Usage) float64 {
	price, ok := pricingTable[model]
	if !ok {
		return 0
	}
	inputCost := float64(usage.InputTokens) / 1_000_000 * price.InputPerMTok
	outputCost := float64(usage.OutputTokens) / 1_000_000 * price.OutputPerMTok
	return inputCost + outputCost
}
