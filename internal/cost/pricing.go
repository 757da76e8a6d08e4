package cost

import "strings"

// Rate is the USD price per million tokens for one model.
type Rate struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// rates maps model name prefixes to prices. Longest-prefix entries come
// first so e.g. gpt-4o-mini matches before gpt-4o.
var rates = []struct {
	prefix string
	rate   Rate
}{
	{"claude-opus", Rate{15.00, 75.00}},
	{"claude-sonnet", Rate{3.00, 15.00}},
	{"claude-haiku", Rate{1.00, 5.00}},
	{"gpt-4o-mini", Rate{0.15, 0.60}},
	{"gpt-4o", Rate{2.50, 10.00}},
	{"gpt-4", Rate{2.50, 10.00}},
	{"gemini-2.0-flash", Rate{0.10, 0.40}},
	{"gemini", Rate{1.25, 5.00}},
	{"sonar-pro", Rate{3.00, 15.00}},
	{"sonar", Rate{1.00, 1.00}},
	{"llama", Rate{0, 0}}, // local models are free
}

// defaultRate prices unknown models conservatively so new upstream models
// never record as free.
var defaultRate = Rate{InputPerMTok: 1.00, OutputPerMTok: 2.00}

// RateFor returns the price for a model name.
func RateFor(model string) Rate {
	for _, r := range rates {
		if strings.HasPrefix(model, r.prefix) {
			return r.rate
		}
	}
	return defaultRate
}

// Calculate returns the USD cost of one call.
func Calculate(model string, inputTokens, outputTokens int) float64 {
	r := RateFor(model)
	return float64(inputTokens)/1e6*r.InputPerMTok +
		float64(outputTokens)/1e6*r.OutputPerMTok
}
