// Package logging provides structured logging for AV Bridge.
//
// It wraps log/slog so every component logs with the same default fields
// (service, version) and the same level filtering.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("mqtt").Info("connected", "broker", addr)
//
// Never log secrets such as MQTT passwords, Valkey passwords or InfluxDB tokens.
package logging
