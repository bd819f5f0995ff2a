package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:     "nil error returns empty",
			err:      nil,
			wantCode: "",
		},
		{
			name:        "duplicate key maps correctly",
			err:         errors.New("ERROR: duplicate key value violates unique constraint \"products_permalink_key\""),
			wantCode:    "DB001",
			wantMessage: "A record with this key already exists",
		},
		{
			name:        "foreign key maps correctly",
			err:         errors.New("insert or update on table \"variants\" violates foreign key constraint"),
			wantCode:    "DB003",
			wantMessage: "Referenced record does not exist",
		},
		{
			name:        "connection refused maps correctly",
			err:         errors.New("dial tcp: connection refused"),
			wantCode:    "DB004",
			wantMessage: "Unable to connect to database",
		},
		{
			name:     "timeout wins over deadline",
			err:      errors.New("context deadline exceeded (timeout)"),
			wantCode: "DB006",
		},
		{
			name:     "file too large sentinel",
			err:      fmt.Errorf("%w: 60000000 bytes", ErrFileTooLarge),
			wantCode: "FILE001",
		},
		{
			name:     "unsupported file sentinel",
			err:      ErrUnsupportedFile,
			wantCode: "FILE002",
		},
		{
			name:     "unreadable datasheet",
			err:      fmt.Errorf("%w: zip: not a valid zip file", ErrDatasheetUnreadable),
			wantCode: "FILE003",
		},
		{
			name:     "run not found",
			err:      ErrRunNotFound,
			wantCode: "RUN001",
		},
		{
			name:     "run deleted",
			err:      ErrRunDeleted,
			wantCode: "RUN002",
		},
		{
			name:     "run busy",
			err:      ErrRunBusy,
			wantCode: "RUN003",
		},
		{
			name:     "too many runs",
			err:      ErrTooManyRuns,
			wantCode: "RUN004",
		},
		{
			name:     "cancelled request",
			err:      fmt.Errorf("perform run: %w", context.Canceled),
			wantCode: "RUN005",
		},
		{
			name:     "rate limit maps correctly",
			err:      errors.New("rate limit exceeded"),
			wantCode: "RATE001",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:     "case insensitive matching",
			err:      errors.New("DUPLICATE KEY value violates"),
			wantCode: "DB001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if tt.wantMessage != "" && got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrRunBusy)

	expected := "Datasheet is already being processed (Code: RUN003). Wait for the current run to finish"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error is not user facing", err: nil, want: false},
		{name: "known error is user facing", err: errors.New("duplicate key"), want: true},
		{name: "unknown error is not user facing", err: errors.New("random internal error xyz"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}
