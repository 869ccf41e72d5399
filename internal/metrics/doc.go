// Package metrics exposes conversion counters, durations and in-flight gauges
// through a private Prometheus registry. Collector implements
// convert.Observer so it can be registered directly on the converter.
package metrics
