package output

import "time"

// MetricsCollector defines the secondary port for metrics collection.
type MetricsCollector interface {
	// IncOperationCount increments the session operation counter.
	IncOperationCount(operation string, success bool)

	// ObserveOperationDuration records session operation duration.
	ObserveOperationDuration(operation string, duration time.Duration)

	// AddRecordsWritten adds to the number of records inserted into a layer.
	AddRecordsWritten(layer string, n int)

	// AddRecordsRead adds to the number of records decoded from a layer.
	AddRecordsRead(layer string, n int)

	// SetPackagesLoaded sets the number of loaded packages.
	SetPackagesLoaded(count int)

	// IncStorageOperations increments storage operation counter.
	IncStorageOperations(operation string, success bool)

	// ObserveStorageDuration records storage operation duration.
	ObserveStorageDuration(operation string, duration time.Duration)
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// IncOperationCount implements MetricsCollector.
func (n *NoOpMetrics) IncOperationCount(_ string, _ bool) {}

// ObserveOperationDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveOperationDuration(_ string, _ time.Duration) {}

// AddRecordsWritten implements MetricsCollector.
func (n *NoOpMetrics) AddRecordsWritten(_ string, _ int) {}

// AddRecordsRead implements MetricsCollector.
func (n *NoOpMetrics) AddRecordsRead(_ string, _ int) {}

// SetPackagesLoaded implements MetricsCollector.
func (n *NoOpMetrics) SetPackagesLoaded(_ int) {}

// IncStorageOperations implements MetricsCollector.
func (n *NoOpMetrics) IncStorageOperations(_ string, _ bool) {}

// ObserveStorageDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveStorageDuration(_ string, _ time.Duration) {}
