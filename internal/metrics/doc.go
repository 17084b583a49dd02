// Package metrics records task, step and live reload metrics.
//
// Components take a Recorder and default to NoopRecorder, so metrics never
// need nil checks at call sites. PrometheusRecorder is installed when a
// metrics listen address is configured and HTTPHandler serves the registry.
package metrics
