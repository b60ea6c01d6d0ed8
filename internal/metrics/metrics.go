// Package metrics collects the Prometheus series exported by every
// TIPS daemon, one var block per subsystem, in the same
// promauto-at-package-scope style the teacher uses.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingress RPC metrics
var (
	IngressAdmittedBundles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingress_admitted_bundles_total",
		Help: "The total number of bundles admitted onto the ingress event log",
	})

	IngressRejectedBundles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingress_rejected_bundles_total",
		Help: "The total number of bundles rejected during admission, by error kind",
	}, []string{"kind"})

	IngressUserOpsAdmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingress_admitted_user_operations_total",
		Help: "The total number of UserOperations admitted onto the UserOp topic",
	})

	IngressUserOpsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingress_rejected_user_operations_total",
		Help: "The total number of UserOperations rejected during admission, by error kind",
	}, []string{"kind"})

	IngressSimulationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingress_simulation_duration_seconds",
		Help:    "Time spent waiting on base_validateUserOperation",
		Buckets: prometheus.DefBuckets,
	})

	IngressPublishDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingress_publish_duration_seconds",
		Help:    "Time spent waiting for the event log broker to acknowledge a publish",
		Buckets: prometheus.DefBuckets,
	})
)

// Bundle store metrics
var (
	BundleStoreLiveBundles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bundle_store_live_bundles",
		Help: "The number of bundles currently in the live catalog",
	})

	BundleStoreEventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bundle_store_events_applied_total",
		Help: "The total number of ingress/builder events applied to the catalog, by event type",
	}, []string{"event"})

	BundleStoreEventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bundle_store_events_dropped_total",
		Help: "The total number of events dropped as poison messages or unknown-uuid updates",
	}, []string{"reason"})
)

// Audit pipeline metrics
var (
	AuditEventsMerged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_events_merged_total",
		Help: "The total number of lifecycle events merged into an entity history",
	})

	AuditEventsDeduped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_duplicate_events_total",
		Help: "The total number of lifecycle events absorbed as duplicates by key",
	})

	AuditObjectStoreWriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "audit_object_store_write_duration_seconds",
		Help:    "Time taken to persist a history back to the object store",
		Buckets: prometheus.DefBuckets,
	})

	AuditObjectStoreRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_object_store_retries_total",
		Help: "The total number of retried object store writes",
	})
)

// UserOp bundler metrics
var (
	UserOpBundlerBatchesFlushed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "userop_bundler_batches_flushed_total",
		Help: "The total number of handleOps batches flushed, by trigger",
	}, []string{"trigger"})

	UserOpBundlerOpsDroppedOnSimulation = promauto.NewCounter(prometheus.CounterOpts{
		Name: "userop_bundler_ops_dropped_on_simulation_total",
		Help: "The total number of UserOperations dropped from a batch because simulation would now revert",
	})

	UserOpBundlerBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "userop_bundler_batch_size",
		Help:    "The number of UserOperations included in each flushed handleOps batch",
		Buckets: []float64{1, 5, 10, 25, 50, 100},
	})
)

// Maintenance metrics
var (
	MaintenanceDroppedBundles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_dropped_bundles_total",
		Help: "The total number of bundles dropped by the maintenance sweeper, by reason",
	}, []string{"reason"})

	MaintenanceSweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "maintenance_sweep_duration_seconds",
		Help:    "Time taken to complete one sweep of the live catalog",
		Buckets: prometheus.DefBuckets,
	})
)
