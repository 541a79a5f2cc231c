package web

import (
	"fmt"
	"time"

	"github.com/guptarohit/asciigraph"

	"github.com/sweeney/boiler-controller/internal/store"
)

const (
	plotHeight = 15
	plotWidth  = 80
)

// Plot renders the temperature and duty cycle series as ASCII charts.
func Plot(rows []store.Sample, window time.Duration) string {
	if len(rows) == 0 {
		return fmt.Sprintf("no samples in the last %s\n", window)
	}

	temps := make([]float64, len(rows))
	duty := make([]float64, len(rows))
	for i, s := range rows {
		temps[i] = s.Temperature
		duty[i] = s.DutyCycle
	}
	// asciigraph needs two points to draw a line.
	if len(rows) == 1 {
		temps = append(temps, temps[0])
		duty = append(duty, duty[0])
	}

	first := rows[0].Timestamp.UTC().Format(store.TimeLayout[:19])
	last := rows[len(rows)-1].Timestamp.UTC().Format(store.TimeLayout[:19])

	tempGraph := asciigraph.Plot(temps,
		asciigraph.Height(plotHeight),
		asciigraph.Width(plotWidth),
		asciigraph.Caption(fmt.Sprintf("temperature °C, %s to %s (%d samples)", first, last, len(rows))),
	)
	dutyGraph := asciigraph.Plot(duty,
		asciigraph.Height(plotHeight/3),
		asciigraph.Width(plotWidth),
		asciigraph.LowerBound(0),
		asciigraph.UpperBound(100),
		asciigraph.Caption("duty cycle %"),
	)
	return tempGraph + "\n\n" + dutyGraph + "\n"
}
