// Package retry is the pure retry orchestrator (C5): classification of a
// failure into a retry reason, the always-retry and
// allows-non-idempotent-retry policy tables, and the two backoff families.
// Nothing in this package performs I/O, so it is directly unit-testable
// (§8 properties 7-8) without a network.
//
// Grounded on the teacher's (twmb/kafka-go) retriable-error handling in
// consumer.go's handleListOrEpochResults (kerr.IsRetriable gate before
// re-adding a load), generalized from one axis (Kafka's single retriable
// flag) to Couchbase's richer, named retry-reason vocabulary, and on
// original_source/core/impl/retry_reason.cxx for the reason's own
// attribute table (SPEC_FULL.md "SUPPLEMENTED FEATURES").
package retry

// Reason enumerates the cause of a single retry attempt (§4.5, GLOSSARY
// "Retry reason"). Unlike a bare string, Reason carries its own
// AlwaysRetry/AllowsNonIdempotentRetry classification, mirroring
// retry_reason.cxx's attribute table rather than re-deriving it ad hoc at
// every call site.
type Reason uint8

const (
	ReasonUnknown Reason = iota

	// Always-retry reasons (§4.5): retried regardless of idempotency.
	ReasonNotMyVBucket
	ReasonCollectionOutdated
	ReasonViewsNoActivePartition

	// Reasons that are retried even when the request is not marked
	// idempotent (§4.5 "Allows non-idempotent retry").
	ReasonSocketNotAvailable
	ReasonServiceNotAvailable
	ReasonNodeNotAvailable
	ReasonKVErrorMapRetryIndicated
	ReasonKVLocked
	ReasonKVTemporaryFailure
	ReasonKVSyncWriteInProgress
	ReasonKVSyncWriteReCommitInProgress
	ReasonCircuitBreakerOpen
	ReasonQueryPreparedStatementFailure
	ReasonQueryIndexNotFound
	ReasonAnalyticsTemporaryFailure
	ReasonSearchTooManyRequests
	ReasonViewsTemporaryFailure
)

var reasonNames = map[Reason]string{
	ReasonUnknown:                        "unknown",
	ReasonNotMyVBucket:                   "kv_not_my_vbucket",
	ReasonCollectionOutdated:             "kv_collection_outdated",
	ReasonViewsNoActivePartition:         "views_no_active_partition",
	ReasonSocketNotAvailable:             "socket_not_available",
	ReasonServiceNotAvailable:            "service_not_available",
	ReasonNodeNotAvailable:               "node_not_available",
	ReasonKVErrorMapRetryIndicated:       "kv_error_map_retry_indicated",
	ReasonKVLocked:                       "kv_locked",
	ReasonKVTemporaryFailure:             "kv_temporary_failure",
	ReasonKVSyncWriteInProgress:          "kv_sync_write_in_progress",
	ReasonKVSyncWriteReCommitInProgress:  "kv_sync_write_re_commit_in_progress",
	ReasonCircuitBreakerOpen:             "circuit_breaker_open",
	ReasonQueryPreparedStatementFailure:  "query_prepared_statement_failure",
	ReasonQueryIndexNotFound:             "query_index_not_found",
	ReasonAnalyticsTemporaryFailure:      "analytics_temporary_failure",
	ReasonSearchTooManyRequests:          "search_too_many_requests",
	ReasonViewsTemporaryFailure:          "views_temporary_failure",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "unknown"
}

// AlwaysRetry reports whether this reason is retried unconditionally,
// regardless of the request's idempotency (§4.5 "Always-retry").
func (r Reason) AlwaysRetry() bool {
	switch r {
	case ReasonNotMyVBucket, ReasonCollectionOutdated, ReasonViewsNoActivePartition:
		return true
	}
	return false
}

// AllowsNonIdempotentRetry reports whether this reason is retried even for
// a non-idempotent request (§4.5 "Allows non-idempotent retry"). Reasons
// in the always-retry table trivially allow it too.
func (r Reason) AllowsNonIdempotentRetry() bool {
	if r.AlwaysRetry() {
		return true
	}
	switch r {
	case ReasonSocketNotAvailable, ReasonServiceNotAvailable, ReasonNodeNotAvailable,
		ReasonKVErrorMapRetryIndicated, ReasonKVLocked, ReasonKVTemporaryFailure,
		ReasonKVSyncWriteInProgress, ReasonKVSyncWriteReCommitInProgress,
		ReasonCircuitBreakerOpen, ReasonQueryPreparedStatementFailure,
		ReasonQueryIndexNotFound, ReasonAnalyticsTemporaryFailure,
		ReasonSearchTooManyRequests, ReasonViewsTemporaryFailure:
		return true
	}
	return false
}
