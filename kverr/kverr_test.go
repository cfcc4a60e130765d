package kverr

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestErrorForStatus(t *testing.T) {
	tests := []struct {
		status Status
		want   error
	}{
		{StatusKeyNotFound, ErrDocumentNotFound},
		{StatusKeyExists, ErrCASMismatch},
		{StatusNotMyVBucket, ErrNotMyVBucket},
		{StatusCollectionOutdated, ErrCollectionOutdated},
		{StatusSubdocPathNotFound, ErrPathNotFound},
	}
	for _, tt := range tests {
		got, ok := ErrorForStatus(tt.status)
		if !ok {
			t.Fatalf("status %#x: not recognized", tt.status)
		}
		if got != tt.want {
			t.Errorf("status %#x: got %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestErrorForStatus_Unknown(t *testing.T) {
	if _, ok := ErrorForStatus(Status(0xfe)); ok {
		t.Fatal("expected unknown status to return ok=false")
	}
}

func TestIsRetriable(t *testing.T) {
	if !IsRetriable(ErrNotMyVBucket) {
		t.Error("ErrNotMyVBucket should be retriable")
	}
	if IsRetriable(ErrDocumentNotFound) {
		t.Error("ErrDocumentNotFound should not be retriable")
	}
}

func TestErrorMapInfoAttributes(t *testing.T) {
	m := ErrorMapInfo{Attributes: []string{"retry-now", "item-only"}}
	if !m.RetryNow() {
		t.Error("expected retry-now attribute set")
	}
	if m.RetryLater() {
		t.Error("did not expect retry-later attribute set")
	}
}

func TestErrorContextCanonicalJSON(t *testing.T) {
	statusCode := uint16(0x07)
	ctx := &ErrorContext{
		Err:                ErrNotMyVBucket,
		OperationID:        "op-1",
		RetryAttempts:      2,
		RetryReasons:       []string{"kv_not_my_vbucket", "kv_not_my_vbucket"},
		LastDispatchedTo:   "node-a:11210",
		LastDispatchedFrom: "10.0.0.1:54321",
		StatusCode:         &statusCode,
	}

	raw, err := json.Marshal(ctx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := map[string]interface{}{
		"ec":                 map[string]interface{}{"value": "kv_not_my_vbucket", "message": "kv_not_my_vbucket"},
		"operation_id":       "op-1",
		"retry_attempts":     float64(2),
		"retry_reasons":      []interface{}{"kv_not_my_vbucket", "kv_not_my_vbucket"},
		"last_dispatched_to": "node-a:11210",
		"last_dispatched_from": "10.0.0.1:54321",
		"status_code":        float64(7),
	}
	if diff := cmp.Diff(want, decoded); diff != "" {
		t.Errorf("canonical JSON mismatch (-want +got):\n%s", diff)
	}
}

func TestErrorContextUnwrap(t *testing.T) {
	ctx := &ErrorContext{Err: ErrDocumentNotFound}
	if ctx.Unwrap() != ErrDocumentNotFound {
		t.Error("Unwrap should return underlying error")
	}
	if !Is(ctx, ErrDocumentNotFound) {
		t.Error("errors.Is should see through ErrorContext to the underlying error")
	}
}
