package web

import (
	"time"

	"github.com/sweeney/boiler-controller/internal/store"
)

// LatestJSON is the live reading served at /status.
type LatestJSON struct {
	Temperature float64 `json:"temp"`
	Time        string  `json:"time"`
	DutyCycle   float64 `json:"duty_cycle"`
}

// HistoryJSON is the windowed history served at /history.json.
type HistoryJSON struct {
	WindowSeconds int64        `json:"window_seconds"`
	Count         int          `json:"count"`
	Samples       []SampleJSON `json:"samples"`
}

// SampleJSON is one row of the temperature table.
type SampleJSON struct {
	Timestamp    string  `json:"timestamp"`
	Temperature  float64 `json:"temp"`
	Proportional float64 `json:"proportional"`
	Integral     float64 `json:"integral"`
	Derivative   float64 `json:"derivative"`
	DutyCycle    float64 `json:"duty_cycle"`
}

func formatLatest(s store.Sample) LatestJSON {
	return LatestJSON{
		Temperature: s.Temperature,
		Time:        s.Timestamp.UTC().Format(store.TimeLayout),
		DutyCycle:   s.DutyCycle,
	}
}

func formatHistory(rows []store.Sample, window time.Duration) HistoryJSON {
	out := HistoryJSON{
		WindowSeconds: int64(window / time.Second),
		Count:         len(rows),
		Samples:       make([]SampleJSON, len(rows)),
	}
	for i, s := range rows {
		out.Samples[i] = SampleJSON{
			Timestamp:    s.Timestamp.UTC().Format(store.TimeLayout),
			Temperature:  s.Temperature,
			Proportional: s.Proportional,
			Integral:     s.Integral,
			Derivative:   s.Derivative,
			DutyCycle:    s.DutyCycle,
		}
	}
	return out
}
