// Package mqtt connects Flora to the MQTT broker that sensor devices
// publish to.
//
// Devices upload readings as JSON objects on flora/sensors/{deviceId}/data.
// The service subscribes with a single-level wildcard filter and resolves
// the device ID from the concrete topic with DeviceExtractor:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	extract, err := mqtt.DeviceExtractor(cfg.MQTT.Topics.SensorData)
//	if err != nil {
//	    return err
//	}
//	err = client.Subscribe(cfg.MQTT.Topics.SensorData, byte(cfg.MQTT.QoS),
//	    ingestor.HandleUpload(extract))
//
// The client registers a retained Last Will on flora/system/status and
// publishes online and graceful offline statuses there. Reconnects use
// paho's backoff between the configured initial and maximum delays.
//
// TLS should be enabled outside local development; anonymous broker access
// is only for testing.
package mqtt
