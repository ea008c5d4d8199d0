package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"gorm.io/gorm"
)

func TestFrom(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"nil", nil, 0, ""},
		{"passthrough", NotFound("thread_not_found", "nope"), http.StatusNotFound, "thread_not_found"},
		{"wrapped api error", fmt.Errorf("outer: %w", Conflict("already_converted", "done")), http.StatusConflict, "already_converted"},
		{"record not found", gorm.ErrRecordNotFound, http.StatusNotFound, "not_found"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := From(tt.err)
			if tt.err == nil {
				if got != nil {
					t.Fatalf("From(nil) = %v, want nil", got)
				}
				return
			}
			if got.Status != tt.wantStatus || got.Code != tt.wantCode {
				t.Fatalf("From(%v) = (%d, %q), want (%d, %q)", tt.err, got.Status, got.Code, tt.wantStatus, tt.wantCode)
			}
		})
	}
}

func TestIsCode(t *testing.T) {
	err := QuotaExceeded("message_limit_reached", "limit is %d", 5)
	if !IsCode(err, "message_limit_reached") {
		t.Fatal("expected code match")
	}
	if IsCode(err, "other_code") {
		t.Fatal("unexpected code match")
	}
	if IsCode(errors.New("plain"), "message_limit_reached") {
		t.Fatal("plain errors carry no code")
	}
	wrapped := fmt.Errorf("context: %w", err)
	if !IsCode(wrapped, "message_limit_reached") {
		t.Fatal("wrapped api errors must still match")
	}
}
