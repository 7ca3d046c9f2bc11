// Package cost computes estimated spend for AI resolver calls. Cache hits
// are logged at zero cost; batch-submitted requests get the batch discount.
package cost

// ModelRate holds per-model token pricing in USD per million tokens.
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	BatchDiscount float64 `yaml:"batch_discount" mapstructure:"batch_discount"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// Rates maps model name to pricing.
type Rates map[string]ModelRate

// Calculator computes estimated costs from token counts.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates. Unknown models
// cost 0 so a missing rate entry never inflates a report.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Estimate computes the cost of one call.
func (c *Calculator) Estimate(model string, isBatch bool, input, output int) float64 {
	rate, ok := c.rates[model]
	if !ok {
		return 0
	}

	mul := 1.0
	if isBatch {
		mul = rate.BatchDiscount
	}

	inCost := (float64(input) / 1e6) * rate.Input * mul
	outCost := (float64(output) / 1e6) * rate.Output * mul
	return inCost + outCost
}

// EstimateCached computes the cost of one call that used prompt caching.
func (c *Calculator) EstimateCached(model string, isBatch bool, input, output, cacheWrite, cacheRead int) float64 {
	rate, ok := c.rates[model]
	if !ok {
		return 0
	}

	mul := 1.0
	if isBatch {
		mul = rate.BatchDiscount
	}

	base := c.Estimate(model, isBatch, input, output)
	cwCost := (float64(cacheWrite) / 1e6) * rate.Input * rate.CacheWriteMul * mul
	crCost := (float64(cacheRead) / 1e6) * rate.Input * rate.CacheReadMul * mul
	return base + cwCost + crCost
}

// DefaultRates returns current published Anthropic pricing.
func DefaultRates() Rates {
	return Rates{
		"claude-haiku-4-5-20251001": {
			Input: 0.80, Output: 4.00,
			BatchDiscount: 0.5, CacheWriteMul: 1.25, CacheReadMul: 0.1,
		},
		"claude-sonnet-4-5-20250929": {
			Input: 3.00, Output: 15.00,
			BatchDiscount: 0.5, CacheWriteMul: 1.25, CacheReadMul: 0.1,
		},
		"claude-opus-4-6": {
			Input: 15.00, Output: 75.00,
			BatchDiscount: 0.5, CacheWriteMul: 1.25, CacheReadMul: 0.1,
		},
	}
}
