// Package reading stores and retrieves sensor readings.
//
// A reading is one upload from a plant monitor: a unique ID, the device
// it came from, the server-assigned Timestamp, an ExpireTimestamp two
// years later, and an open set of numeric measurements.
//
// The Store interface models a time-ordered key-value store partitioned
// by device and sorted by Timestamp. Queries name a device, optionally a
// Timestamp window, a direction and a page limit, and may resume from a
// previous page's LastEvaluatedKey. SQLiteStore is the production
// implementation.
//
// Ingestor is the write path: MQTT uploads in, stored readings out, with
// observers for the InfluxDB mirror and the WebSocket stream. Sweeper
// deletes expired rows.
package reading
