// Package broadcaster implements a background job that periodically
// scans the run ledger for unpublished reports and publishes them to
// Kafka, marking each one published once the sink acknowledged it.
package broadcaster
