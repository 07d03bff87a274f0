package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// canonicalPayload mirrors the ESP32 firmware's field names.
type canonicalPayload struct {
	Distance      float64 `json:"distance"`
	Angle         float64 `json:"angle"`
	DeviceID      string  `json:"deviceId"`
	RawUS         int64   `json:"raw_us"`
	CorrelationID string  `json:"correlationId"`
}

// legacyPayload mirrors the older sketch's field names, useful for
// exercising the server's alias normalization.
type legacyPayload struct {
	DistanceCM    float64 `json:"distance_cm"`
	AngleDeg      float64 `json:"angle_deg"`
	DeviceID      string  `json:"device_id"`
	Raw           int64   `json:"raw_measurement"`
	CorrelationID string  `json:"correlation_id"`
}

// sweep models a servo sweeping 0→180→0 in fixed steps.
type sweep struct {
	angle float64
	step  float64
}

func (s *sweep) next() float64 {
	s.angle += s.step
	if s.angle >= 180 {
		s.angle = 180
		s.step = -s.step
	}
	if s.angle <= 0 {
		s.angle = 0
		s.step = math.Abs(s.step)
	}
	return s.angle
}

// simulateDistance synthesizes an HC-SR04 style distance for the given
// angle: open space with a couple of fixed targets plus measurement jitter.
func simulateDistance(angle, baseline, jitter float64) float64 {
	distance := baseline

	// Two stationary targets in the sweep arc
	targets := []struct {
		angle, distance, width float64
	}{
		{angle: 45, distance: 60, width: 12},
		{angle: 120, distance: 150, width: 20},
	}
	for _, t := range targets {
		if math.Abs(angle-t.angle) < t.width {
			distance = t.distance
			break
		}
	}

	return distance + (rand.Float64()*2-1)*jitter
}

// pulseWidthUS converts a distance in cm back to the echo pulse width the
// sensor would have reported (speed of sound, round trip).
func pulseWidthUS(distanceCM float64) int64 {
	return int64(distanceCM * 58.0)
}

func main() {
	brokerAddr := flag.String("broker", "tcp://localhost:1883", "MQTT broker address, e.g. tcp://localhost:1883")
	topic := flag.String("topic", "sensor/ultrasonic", "Topic to publish readings on")
	deviceID := flag.String("device-id", "esp32_01", "Device identifier included in readings")
	interval := flag.Duration("interval", 500*time.Millisecond, "Interval between published readings")
	step := flag.Float64("step", 5, "Sweep step in degrees per reading")
	baseline := flag.Float64("baseline", 300, "Open-space distance in cm")
	jitter := flag.Float64("jitter", 2, "Maximum random jitter applied to distances, in cm")
	legacyFields := flag.Bool("legacy-fields", false, "Publish with the older sketch's field names (distance_cm, angle_deg)")

	flag.Parse()

	clientID := fmt.Sprintf("%s-simulator-%d", *deviceID, time.Now().UnixNano())
	opts := mqtt.NewClientOptions().AddBroker(*brokerAddr).SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("failed to connect to broker: %v", token.Error())
	}
	log.Printf("connected to MQTT broker %s as %s", *brokerAddr, clientID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	sw := &sweep{step: *step}
	seq := 0

	publish := func() {
		seq++
		angle := sw.next()
		distance := simulateDistance(angle, *baseline, *jitter)
		correlationID := fmt.Sprintf("%s-%d-%d", *deviceID, time.Now().Unix(), seq)

		var payload interface{}
		if *legacyFields {
			payload = legacyPayload{
				DistanceCM:    distance,
				AngleDeg:      angle,
				DeviceID:      *deviceID,
				Raw:           pulseWidthUS(distance),
				CorrelationID: correlationID,
			}
		} else {
			payload = canonicalPayload{
				Distance:      distance,
				Angle:         angle,
				DeviceID:      *deviceID,
				RawUS:         pulseWidthUS(distance),
				CorrelationID: correlationID,
			}
		}

		data, err := json.Marshal(payload)
		if err != nil {
			log.Printf("failed to encode payload: %v", err)
			return
		}

		token := client.Publish(*topic, 0, false, data)
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("publish error: %v", err)
			return
		}
		log.Printf("published angle=%.0f distance=%.1f", angle, distance)
	}

	publish()

	for {
		select {
		case <-ctx.Done():
			log.Print("received shutdown signal, disconnecting")
			client.Disconnect(250)
			return
		case <-ticker.C:
			publish()
		}
	}
}
