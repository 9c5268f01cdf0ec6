// Package metrics provides build metrics for edgebundle.
//
// Components receive a Recorder and default to NoopRecorder, so metrics cost
// nothing unless a real implementation is injected:
//
//	reg := prom.NewRegistry()
//	rec := metrics.NewPrometheusRecorder(reg)
//	// ... run the build with rec ...
//	_ = metrics.WriteTextfile(reg, "/var/lib/node_exporter/edgebundle.prom")
//
// The textfile form suits a one-shot CLI: node_exporter's textfile collector
// picks it up without the process serving HTTP.
package metrics
