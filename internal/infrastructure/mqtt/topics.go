package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every Flora topic.
const TopicPrefix = "flora"

// DefaultSensorDataFilter is the subscription filter for device uploads.
// The single-level wildcard stands for the device ID.
const DefaultSensorDataFilter = TopicPrefix + "/sensors/+/data"

// Topics provides builders for Flora MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.SensorData("2f9c...") // "flora/sensors/2f9c.../data"
type Topics struct{}

// SensorData returns the topic a device publishes its readings to.
//
// Example: flora/sensors/2f9c1d2e/data
func (Topics) SensorData(deviceID string) string {
	return fmt.Sprintf("%s/sensors/%s/data", TopicPrefix, deviceID)
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: flora/system/status
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// ValidateFilter checks that filter is a usable device-upload filter: a
// well-formed MQTT filter with exactly one single-level wildcard and no
// multi-level wildcard.
func ValidateFilter(filter string) error {
	if filter == "" {
		return ErrInvalidTopic
	}
	wildcards := 0
	for _, level := range strings.Split(filter, "/") {
		switch {
		case level == "+":
			wildcards++
		case strings.ContainsAny(level, "+#"):
			return fmt.Errorf("%w: %q has a wildcard inside a level", ErrInvalidFilter, filter)
		}
	}
	if wildcards != 1 {
		return fmt.Errorf("%w: %q must contain exactly one '+' for the device id", ErrInvalidFilter, filter)
	}
	return nil
}

// DeviceExtractor returns a function that pulls the device ID out of a
// concrete topic matching filter. The ID is the level under the filter's
// '+'. Topics that do not match, or whose ID level is empty, yield false.
func DeviceExtractor(filter string) (func(topic string) (string, bool), error) {
	if err := ValidateFilter(filter); err != nil {
		return nil, err
	}
	pattern := strings.Split(filter, "/")
	idx := 0
	for i, level := range pattern {
		if level == "+" {
			idx = i
		}
	}

	return func(topic string) (string, bool) {
		levels := strings.Split(topic, "/")
		if len(levels) != len(pattern) {
			return "", false
		}
		for i, level := range pattern {
			if i != idx && level != levels[i] {
				return "", false
			}
		}
		id := levels[idx]
		return id, id != ""
	}, nil
}
