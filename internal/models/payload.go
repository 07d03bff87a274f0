package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"
)

// Producers disagree on field names: the ESP32 firmware publishes
// distance/angle/deviceId while the older sketch publishes
// distance_cm/angle_deg/device_id. DecodePayload accepts both and
// normalizes to the canonical Reading fields.

// DecodeError describes why an inbound payload could not be turned into a
// Reading. The raw payload is kept so the failure can be diagnosed from logs.
type DecodeError struct {
	Reason string
	Raw    []byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode payload: %s", e.Reason)
}

// DecodePayload parses one inbound MQTT payload into a Reading.
// It is pure: no side effects, no clock reads. The returned Reading has a
// zero Timestamp; the storage layer assigns one at insert time.
func DecodePayload(payload []byte) (*Reading, error) {
	if !utf8.Valid(payload) {
		return nil, &DecodeError{Reason: "payload is not valid UTF-8", Raw: payload}
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, &DecodeError{Reason: fmt.Sprintf("not a JSON object: %v", err), Raw: payload}
	}

	distance, ok, err := numberField(doc, "distance", "distance_cm")
	if err != nil {
		return nil, &DecodeError{Reason: err.Error(), Raw: payload}
	}
	if !ok {
		return nil, &DecodeError{Reason: "missing required field distance", Raw: payload}
	}

	angle, _, err := numberField(doc, "angle", "angle_deg")
	if err != nil {
		return nil, &DecodeError{Reason: err.Error(), Raw: payload}
	}

	reading := &Reading{
		Distance: distance,
		Angle:    angle,
	}

	if v, ok := stringField(doc, "deviceId", "device_id"); ok {
		reading.DeviceID = v
	}
	if v, ok := stringField(doc, "correlationId", "correlation_id"); ok {
		reading.CorrelationID = v
	}

	if raw, ok, err := numberField(doc, "raw_us", "raw_measurement"); err != nil {
		return nil, &DecodeError{Reason: err.Error(), Raw: payload}
	} else if ok {
		us := int64(raw)
		reading.RawMeasurement = &us
	}

	return reading, nil
}

// numberField extracts the first present alias as a float64. Numeric strings
// are coerced ("42.5" is as good as 42.5); anything else is an error.
// Returns ok=false when no alias is present.
func numberField(doc map[string]json.RawMessage, names ...string) (float64, bool, error) {
	for _, name := range names {
		raw, present := doc[name]
		if !present {
			continue
		}

		var num float64
		if err := json.Unmarshal(raw, &num); err == nil {
			return num, true, nil
		}

		var str string
		if err := json.Unmarshal(raw, &str); err == nil {
			num, err := strconv.ParseFloat(str, 64)
			if err != nil || math.IsNaN(num) || math.IsInf(num, 0) {
				return 0, false, fmt.Errorf("field %s: %q is not a finite number", name, str)
			}
			return num, true, nil
		}

		return 0, false, fmt.Errorf("field %s: not a number or numeric string", name)
	}
	return 0, false, nil
}

// stringField extracts the first present alias as a string.
func stringField(doc map[string]json.RawMessage, names ...string) (string, bool) {
	for _, name := range names {
		raw, present := doc[name]
		if !present {
			continue
		}
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return "", false
		}
		return str, true
	}
	return "", false
}
