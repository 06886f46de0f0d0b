// Package datalog appends one record per plant and tick to durable logs.
package datalog

import (
	"errors"
	"strconv"
	"time"
)

// Headers is the column order of the CSV logs.
var Headers = []string{
	"plant_order", "plant_family", "plant_subfamily", "plant_genus", "day", "time",
	"soil_moisture_percent", "lux", "temperature", "humidity", "was_watered", "ml",
	"environment", "plant_id", "tick_id",
}

// Entry is one logged reading. Nil fields were unavailable in that tick.
type Entry struct {
	ID             uint64    `json:"id" gorm:"primaryKey"`
	TickID         string    `json:"tickID" gorm:"index"`
	PlantID        string    `json:"plantID" gorm:"index:idx_plant_taken"`
	TakenAt        time.Time `json:"takenAt" gorm:"index:idx_plant_taken"`
	PlantOrder     string    `json:"plantOrder"`
	PlantFamily    string    `json:"plantFamily"`
	PlantSubfamily string    `json:"plantSubfamily"`
	PlantGenus     string    `json:"plantGenus"`
	Environment    string    `json:"environment"`

	SoilMoisture *float64 `json:"soilMoisturePercent"`
	Lux          *float64 `json:"lux"`
	Temperature  *float64 `json:"temperature"`
	Humidity     *float64 `json:"humidity"`
	WasWatered   *bool    `json:"wasWatered"`
	ML           *int     `json:"ml"`
}

// Row renders the entry in Headers order. Booleans are written as 1/0.
func (e *Entry) Row() []string {
	return []string{
		e.PlantOrder,
		e.PlantFamily,
		e.PlantSubfamily,
		e.PlantGenus,
		e.TakenAt.Format("2006-01-02"),
		e.TakenAt.Format("15:04:05"),
		formatFloat(e.SoilMoisture),
		formatFloat(e.Lux),
		formatFloat(e.Temperature),
		formatFloat(e.Humidity),
		formatBool(e.WasWatered),
		formatInt(e.ML),
		e.Environment,
		e.PlantID,
		e.TickID,
	}
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatBool(v *bool) string {
	if v == nil {
		return ""
	}
	if *v {
		return "1"
	}
	return "0"
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

type Sink interface {
	Write(e *Entry) error
	Close() error
}

// MultiSink writes every entry to all of its sinks, even when one fails.
type MultiSink []Sink

func (m MultiSink) Write(e *Entry) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
