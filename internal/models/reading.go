package models

import (
	"fmt"
	"time"
)

// Reading represents one ultrasonic sensor observation: a distance measured
// at a sweep angle, plus optional identifying metadata from the producer.
type Reading struct {
	ID             int64     `json:"id,omitempty"`
	Distance       float64   `json:"distance"`
	Angle          float64   `json:"angle"`
	DeviceID       string    `json:"device_id,omitempty"`
	RawMeasurement *int64    `json:"raw_measurement,omitempty"`
	CorrelationID  string    `json:"correlation_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewReading creates a new Reading with the current timestamp
func NewReading(distance, angle float64) *Reading {
	return &Reading{
		Distance:  distance,
		Angle:     angle,
		Timestamp: time.Now().UTC(),
	}
}

// get the reading as a string
func (r *Reading) String() string {
	return fmt.Sprintf("Distance: %.1fcm, Angle: %.1f°, DeviceID: %s, Timestamp: %s",
		r.Distance,
		r.Angle,
		r.DeviceID,
		r.Timestamp.Format(time.RFC3339))
}

// Copy returns a deep copy of the Reading
func (r *Reading) Copy() *Reading {
	if r == nil {
		return nil
	}
	c := *r
	if r.RawMeasurement != nil {
		raw := *r.RawMeasurement
		c.RawMeasurement = &raw
	}
	return &c
}
