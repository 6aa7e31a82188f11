package report

import (
	"fmt"

	"github.com/atlas-desktop/montecarlo-sim/pkg/types"
)

// numShades is how many grey levels the run lines cycle through
const numShades = 9

// Point is one balance observation
type Point struct {
	X int     `json:"x"` // Trade number, 0 is the starting balance
	Y float64 `json:"y"`
}

// Series is one run's balance curve
type Series struct {
	Name   string  `json:"name"`
	Shade  float64 `json:"shade"` // Grey level, 0 black to 1 white
	Points []Point `json:"points"`
}

// ReferenceLine is a horizontal marker across the chart
type ReferenceLine struct {
	Label string  `json:"label"`
	Y     float64 `json:"y"`
	Style string  `json:"style"`
}

// Chart is everything a client needs to draw the balance curves
type Chart struct {
	Title     string        `json:"title"`
	XLabel    string        `json:"x_label"`
	YLabel    string        `json:"y_label"`
	Series    []Series      `json:"series"`
	Reference ReferenceLine `json:"reference"`
}

// BuildChart turns each run's history into a series and adds the
// initial balance reference line.
func BuildChart(batch *types.BatchResult) Chart {
	chart := Chart{
		Title:  "Expected Account Balance Over Trades",
		XLabel: "Trade Number",
		YLabel: "Account Balance",
		Series: make([]Series, 0, len(batch.Runs)),
		Reference: ReferenceLine{
			Label: "Initial Balance",
			Y:     batch.Params.InitialBalance,
			Style: "dashed",
		},
	}

	for _, run := range batch.Runs {
		points := make([]Point, len(run.History))
		for i, balance := range run.History {
			points[i] = Point{X: i, Y: balance}
		}
		chart.Series = append(chart.Series, Series{
			Name:   fmt.Sprintf("run %d", run.Index+1),
			Shade:  Shade(run.Index),
			Points: points,
		})
	}

	return chart
}

// Shade returns the grey level for a run index.
func Shade(index int) float64 {
	return float64(index%numShades+1) / 20
}
