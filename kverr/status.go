// Package kverr holds the client's error taxonomy: the server status code
// to error-kind mapping, the error-map attribute fallback for statuses we
// do not hardcode, and the canonical error context shape that accompanies
// every surfaced result.
package kverr

// Status is a data-service response status code, as carried in the 2-byte
// status field of a response frame header (or vbucket-id field on request
// frames; see internal/kvproto).
type Status uint16

// The critical rows named in spec.md §8, plus the common statuses needed to
// drive the rest of the taxonomy. Values match the Couchbase/memcached
// binary protocol.
const (
	StatusSuccess            Status = 0x00
	StatusKeyNotFound         Status = 0x01
	StatusKeyExists           Status = 0x02
	StatusTooBig              Status = 0x03
	StatusInvalidArgs         Status = 0x04
	StatusNotStored           Status = 0x05
	StatusDeltaBadVal         Status = 0x06
	StatusNotMyVBucket        Status = 0x07
	StatusNoBucket            Status = 0x08
	StatusLocked              Status = 0x09
	StatusAuthStale           Status = 0x1f
	StatusAuthError           Status = 0x20
	StatusAuthContinue        Status = 0x21
	StatusRangeError          Status = 0x22
	StatusRollback            Status = 0x23
	StatusNoAccess            Status = 0x24
	StatusNotInitialized      Status = 0x25
	StatusRateLimited         Status = 0x30
	StatusScopeSizeLimitExceeded Status = 0x31
	StatusUnknownFrameInfo    Status = 0x80
	StatusUnknownCommand      Status = 0x81
	StatusOutOfMemory         Status = 0x82
	StatusNotSupported        Status = 0x83
	StatusInternalError       Status = 0x84
	StatusBusy                Status = 0x85
	StatusTemporaryFailure    Status = 0x86
	StatusUnknownCollection   Status = 0x88
	StatusNoCollectionsManifest Status = 0x89
	StatusCollectionOutdated  Status = 0x8a
	StatusUnknownScope        Status = 0x8c
	StatusDurabilityInvalidLevel     Status = 0xa0
	StatusDurabilityImpossible       Status = 0xa1
	StatusSyncWriteInProgress        Status = 0xa2
	StatusSyncWriteAmbiguousTimeout  Status = 0xa3
	StatusSyncWriteReCommitInProgress Status = 0xa5
	StatusSubdocPathNotFound  Status = 0xc0
	StatusSubdocPathMismatch  Status = 0xc1
	StatusSubdocPathInvalid   Status = 0xc2
	StatusSubdocPathTooBig    Status = 0xc3
	StatusSubdocDocTooDeep    Status = 0xc4
	StatusSubdocCantInsert    Status = 0xc5
	StatusSubdocNotJSON       Status = 0xc6
	StatusSubdocNumRange      Status = 0xc7
	StatusSubdocDeltaInvalid  Status = 0xc8
	StatusSubdocPathExists    Status = 0xc9
	StatusSubdocInvalidCombo  Status = 0xce
	StatusSubdocMultiPathFailure Status = 0xcc
)

// ErrorForStatus maps a status that the client hardcodes to a typed error.
// Statuses the client does not recognize return (nil, false); the
// dispatcher (internal/dispatch's execute) then consults the session's
// error map.
func ErrorForStatus(s Status) (error, bool) {
	switch s {
	case StatusSuccess:
		return nil, true
	case StatusKeyNotFound:
		return ErrDocumentNotFound, true
	case StatusKeyExists:
		return ErrCASMismatch, true
	case StatusTooBig:
		return ErrValueTooLarge, true
	case StatusInvalidArgs:
		return ErrInvalidArgument, true
	case StatusNotStored:
		return ErrDocumentNotFound, true
	case StatusDeltaBadVal:
		return ErrDeltaBadValue, true
	case StatusNotMyVBucket:
		return ErrNotMyVBucket, true
	case StatusNoBucket:
		return ErrBucketNotFound, true
	case StatusLocked:
		return ErrDocumentLocked, true
	case StatusAuthStale, StatusAuthError:
		return ErrAuthenticationFailure, true
	case StatusAuthContinue:
		return ErrAuthenticationContinue, true
	case StatusNoAccess:
		return ErrAuthenticationFailure, true
	case StatusRateLimited:
		return ErrRateLimited, true
	case StatusScopeSizeLimitExceeded:
		return ErrQuotaLimited, true
	case StatusUnknownCommand, StatusNotSupported:
		return ErrUnsupportedOperation, true
	case StatusOutOfMemory:
		return ErrOutOfMemory, true
	case StatusInternalError:
		return ErrInternalServerFailure, true
	case StatusBusy, StatusTemporaryFailure:
		return ErrTemporaryFailure, true
	case StatusUnknownCollection:
		return ErrCollectionNotFound, true
	case StatusUnknownScope:
		return ErrScopeNotFound, true
	case StatusNoCollectionsManifest:
		return ErrCollectionOutdated, true
	case StatusCollectionOutdated:
		return ErrCollectionOutdated, true
	case StatusDurabilityInvalidLevel:
		return ErrDurabilityLevelNotAvailable, true
	case StatusDurabilityImpossible:
		return ErrDurabilityImpossible, true
	case StatusSyncWriteInProgress:
		return ErrDurableWriteInProgress, true
	case StatusSyncWriteAmbiguousTimeout:
		return ErrDurabilityAmbiguous, true
	case StatusSyncWriteReCommitInProgress:
		return ErrDurableWriteReCommitInProgress, true
	case StatusSubdocPathNotFound:
		return ErrPathNotFound, true
	case StatusSubdocPathMismatch:
		return ErrPathMismatch, true
	case StatusSubdocPathInvalid:
		return ErrPathInvalid, true
	case StatusSubdocPathTooBig:
		return ErrPathTooBig, true
	case StatusSubdocDocTooDeep:
		return ErrDocumentTooDeep, true
	case StatusSubdocCantInsert:
		return ErrCannotInsertValue, true
	case StatusSubdocNotJSON:
		return ErrDocumentNotJSON, true
	case StatusSubdocNumRange:
		return ErrNumberTooBig, true
	case StatusSubdocDeltaInvalid:
		return ErrDeltaInvalid, true
	case StatusSubdocPathExists:
		return ErrPathExists, true
	case StatusSubdocInvalidCombo:
		return ErrInvalidArgument, true
	case StatusSubdocMultiPathFailure:
		return ErrMultiPathFailure, true
	}
	return nil, false
}

// IsRetriable reports whether err is one of the errors this package
// considers inherently retriable regardless of the retry-reason machinery
// in internal/retry (e.g. collection/vbucket map staleness).
func IsRetriable(err error) bool {
	switch err {
	case ErrNotMyVBucket, ErrCollectionOutdated, ErrTemporaryFailure, ErrOutOfMemory, ErrDurableWriteInProgress, ErrDurableWriteReCommitInProgress:
		return true
	}
	return false
}
