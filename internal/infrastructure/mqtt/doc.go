// Package mqtt provides MQTT client connectivity for Labmill.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Labmill uses MQTT as the lab message bus. Run progress, gantry state
// and instrument captures are published as they happen so dashboards,
// recorders and other lab services can follow an execution without
// polling the run database.
//
//	Labmill Core → MQTT Broker → Dashboards / Recorders
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Follow every run's lifecycle
//	err = client.Subscribe(mqtt.Topics{}.AllRunStatuses(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish run status
//	topic := mqtt.Topics{}.RunStatus(runID)
//	client.Publish(topic, []byte(`{"status":"running"}`), 1, true)
package mqtt
