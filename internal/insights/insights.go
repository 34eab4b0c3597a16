package insights

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/smukkama/carbon-footprint/internal/emissions"
)

// Advisor produces free-form advice for a prompt
type Advisor interface {
	Advise(ctx context.Context, prompt string) (string, error)
}

// Engine renders recommendations for a computed footprint
type Engine struct {
	advisor Advisor
	logger  *slog.Logger
}

// NewEngine creates an engine. A nil advisor always yields the fallback text.
func NewEngine(advisor Advisor, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{advisor: advisor, logger: logger}
}

// Recommend asks the advisor for recommendations, falling back to static
// advice when the advisor is absent, fails or answers with nothing.
func (e *Engine) Recommend(ctx context.Context, v emissions.ValidatedInput, b emissions.Breakdown) string {
	if e.advisor == nil {
		return Fallback(v)
	}

	prompt, err := Prompt(v, b)
	if err != nil {
		e.logger.Error("failed to render prompt", "error", err)
		return Fallback(v)
	}

	advice, err := e.advisor.Advise(ctx, prompt)
	if err != nil {
		e.logger.Warn("advisor unavailable, using fallback", "error", err)
		return Fallback(v)
	}
	if strings.TrimSpace(advice) == "" {
		return Fallback(v)
	}
	return advice
}

var promptTemplate = template.Must(template.New("prompt").Parse(`
As a sustainability expert, analyze this user's carbon footprint data and provide specific,
actionable insights with estimated impact. Use the following data:

Daily Transportation:
- Car travel: {{printf "%.1f" .Input.CarKm}} km
- Bus travel: {{printf "%.1f" .Input.BusKm}} km
- Train travel: {{printf "%.1f" .Input.TrainKm}} km

Daily Energy Usage:
- Electricity: {{printf "%.1f" .Input.Electricity}} kWh

Daily Diet:
- Meat-based meals: {{printf "%.1f" .Input.MeatMeals}}
- Vegetarian meals: {{printf "%.1f" .Input.VegMeals}}
- Vegan meals: {{printf "%.1f" .Input.VeganMeals}}

Emissions by category: transport {{printf "%.2f" .Breakdown.Transport}}, energy {{printf "%.2f" .Breakdown.Energy}}, diet {{printf "%.2f" .Breakdown.Diet}} kg CO2
Total daily emissions: {{printf "%.1f" .Breakdown.Total}} kg CO2

Please provide:
1. Specific, actionable recommendations prioritized by impact
2. Estimated CO2 reduction for each suggestion
3. Categorize each action as 'Easy', 'Medium', or 'Challenging'
4. Implementation timeframe (Immediate, Short-term, Long-term)
5. Additional context and motivation

Format the response with clear sections and bullet points.
`))

// Prompt renders the recommendation request for an advisor
func Prompt(v emissions.ValidatedInput, b emissions.Breakdown) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Input     emissions.ValidatedInput
		Breakdown emissions.Breakdown
	}{v, b}
	if err := promptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}

// Fallback returns general advice for each category with activity
func Fallback(v emissions.ValidatedInput) string {
	var sb strings.Builder
	sb.WriteString("\n=== Carbon Footprint Insights ===\n")
	sb.WriteString("\nUnable to generate AI insights. Here are some general recommendations:\n")

	if v.CarKm > 0 {
		sb.WriteString("\nTransportation:\n")
		sb.WriteString("- Consider using public transportation more frequently\n")
		sb.WriteString("- Look into carpooling options\n")
		sb.WriteString("- Try walking or cycling for short trips\n")
	}
	if v.Electricity > 0 {
		sb.WriteString("\nEnergy Usage:\n")
		sb.WriteString("- Switch to energy-efficient appliances\n")
		sb.WriteString("- Use LED lighting\n")
		sb.WriteString("- Optimize heating and cooling\n")
	}
	if v.MeatMeals > 0 {
		sb.WriteString("\nDiet:\n")
		sb.WriteString("- Try incorporating more plant-based meals\n")
		sb.WriteString("- Start with one meatless day per week\n")
		sb.WriteString("- Choose local and seasonal products\n")
	}
	return sb.String()
}
