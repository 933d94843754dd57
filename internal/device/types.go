package device

import "time"

// UnknownBatteryLife marks a device that has not reported its battery yet.
const UnknownBatteryLife = -1

// Device is a registered plant sensor.
//
// JSON field names are the wire names shared with the sensor firmware and
// the mobile client.
type Device struct {
	DeviceID    string    `json:"DeviceId"`
	Nickname    string    `json:"Nickname"`
	BatteryLife int       `json:"BatteryLife"`
	Location    Location  `json:"Location"`
	OwnerID     string    `json:"OwnerId"`
	CreatedAt   time.Time `json:"CreatedAt"`
}

// Location is where a device is installed. Name and Key come from the
// weather provider's geoposition search at registration.
type Location struct {
	Lat          float64 `json:"Lat"`
	Long         float64 `json:"Long"`
	LocationName string  `json:"LocationName"`
	LocationKey  string  `json:"LocationKey"`
}

// Place is the result of resolving coordinates to a named location.
type Place struct {
	Name string
	Key  string
}

// HasDevice reports whether devices contains one with the given ID.
func HasDevice(devices []Device, deviceID string) bool {
	for i := range devices {
		if devices[i].DeviceID == deviceID {
			return true
		}
	}
	return false
}
