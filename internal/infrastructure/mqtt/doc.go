// Package mqtt connects AV Bridge to its MQTT broker.
//
// The broker is the bus between the orchestrator and the protocol bridges
// (IR blasters, serial controllers, HDMI matrices, network devices):
//
//	orchestrator -> {prefix}/command/{protocol}/{device_id} -> bridge
//	bridge       -> {prefix}/state/{protocol}/{device_id}   -> orchestrator
//
// The orchestrator also publishes events on {prefix}/core/event/{type} and
// the retained active scenario on {prefix}/core/scenario/active. A retained
// online/offline status with LWT lives on {prefix}/system/status.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := client.Topics().DeviceCommand("ir", "projector-1")
//	err = client.PublishJSON(topic, cmd, false)
//
// Handlers run on paho goroutines and are wrapped with panic recovery.
package mqtt
