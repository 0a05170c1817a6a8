package tokens

import (
	"fmt"
	"strings"
	"sync"
)

// Price is the cost in dollars per thousand tokens.
type Price struct {
	Input  float64
	Output float64
}

// DefaultPricing covers the models torch is configured with out of the box.
var DefaultPricing = map[string]Price{
	"gpt-3.5-turbo":      {Input: 0.0005, Output: 0.0015},
	"gpt-4":              {Input: 0.03, Output: 0.06},
	"gpt-4-1106-preview": {Input: 0.01, Output: 0.03},
	"gpt-4-turbo":        {Input: 0.01, Output: 0.03},
	"gpt-4o":             {Input: 0.005, Output: 0.015},
	"gpt-4o-mini":        {Input: 0.00015, Output: 0.0006},
}

// Usage is the accumulated token count for one model.
type Usage struct {
	Input  int
	Output int
}

// Meter accumulates token usage across concurrent callers.
type Meter struct {
	mu      sync.Mutex
	pricing map[string]Price
	usage   map[string]*Usage
	order   []string
}

// NewMeter creates a meter with the given pricing. Nil selects DefaultPricing.
func NewMeter(pricing map[string]Price) *Meter {
	if pricing == nil {
		pricing = DefaultPricing
	}
	return &Meter{pricing: pricing, usage: make(map[string]*Usage)}
}

// Add records one request against model.
func (m *Meter) Add(model string, input, output int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.usage[model]
	if !ok {
		u = &Usage{}
		m.usage[model] = u
		m.order = append(m.order, model)
	}
	u.Input += input
	u.Output += output
}

// Totals returns the token counts summed over every model.
func (m *Meter) Totals() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var t Usage
	for _, u := range m.usage {
		t.Input += u.Input
		t.Output += u.Output
	}
	return t
}

// Cost returns the dollar cost of input and output tokens. Models without a
// price contribute zero.
func (m *Meter) Cost() (input, output float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for model, u := range m.usage {
		p := m.pricing[model]
		input += float64(u.Input) * p.Input / 1000
		output += float64(u.Output) * p.Output / 1000
	}
	return input, output
}

// Summary renders the cost analysis printed when the session ends.
func (m *Meter) Summary() string {
	t := m.Totals()
	in, out := m.Cost()

	var b strings.Builder
	b.WriteString("Total tokens used:\n")
	fmt.Fprintf(&b, "  Input tokens: %d => $%.2f\n", t.Input, in)
	fmt.Fprintf(&b, "  Output tokens: %d => $%.2f\n", t.Output, out)
	fmt.Fprintf(&b, "  Total cost: $%.2f", in+out)
	return b.String()
}
