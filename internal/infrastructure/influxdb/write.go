package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/flora-iot/flora-core/internal/reading"
)

// SensorMeasurement is the measurement name readings are written under.
const SensorMeasurement = "sensor_readings"

// SensorReadingPoint converts a stored reading into a point tagged by
// device. Every numeric field becomes a point field and the reading ID is
// kept as a string field so the two stores can be joined.
func SensorReadingPoint(r reading.SensorReading) *write.Point {
	fields := make(map[string]interface{}, len(r.Fields)+1)
	for k, v := range r.Fields {
		fields[k] = v
	}
	fields["reading_id"] = r.ID

	return write.NewPoint(
		SensorMeasurement,
		map[string]string{"device_id": r.DeviceID},
		fields,
		time.Unix(r.Timestamp, 0),
	)
}

// WriteSensorReading queues one reading. It does nothing when the client
// is disconnected.
func (c *Client) WriteSensorReading(r reading.SensorReading) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(SensorReadingPoint(r))
	c.written.Add(1)
}

// Observer returns a reading observer that mirrors each stored reading.
//
//	ingestor.Observe(influx.Observer())
func (c *Client) Observer() func(reading.SensorReading) {
	return c.WriteSensorReading
}
