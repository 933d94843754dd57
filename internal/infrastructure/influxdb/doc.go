// Package influxdb mirrors ingested sensor readings into InfluxDB v2.
//
// SQLite stays the system of record for reading queries. The InfluxDB
// mirror exists for dashboards and Flux analysis, so writes are
// fire-and-forget: they are batched (batch_size, flush_interval) and
// failures surface through SetOnError and Stats rather than failing the
// upload.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	switch {
//	case errors.Is(err, influxdb.ErrDisabled):
//	    // run without a mirror
//	case err != nil:
//	    return err
//	default:
//	    defer client.Close()
//	    ingestor.Observe(client.Observer())
//	}
//
// Each reading becomes one point in the sensor_readings measurement,
// tagged with device_id and timestamped with the reading's server time.
package influxdb
