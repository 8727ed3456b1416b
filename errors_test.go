package graft

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := NewError(ErrorTypePrecondition, "update without id")
	want := "precondition: update without id"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}

	cause := fmt.Errorf("connection refused")
	wrapped := NewErrorWithCause(ErrorTypeConnection, "ping failed", cause)
	want = "connection: ping failed (caused by: connection refused)"
	if wrapped.Error() != want {
		t.Errorf("Expected %q, got %q", want, wrapped.Error())
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("underlying")
	err := NewErrorWithCause(ErrorTypeDatabase, "query failed", cause)

	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to reach the cause")
	}
	if err.Unwrap() != cause {
		t.Errorf("Expected Unwrap to return the cause, got %v", err.Unwrap())
	}
}

func TestErrorIsMatchesType(t *testing.T) {
	err := NewError(ErrorTypePrecondition, "one message")
	other := NewError(ErrorTypePrecondition, "another message")
	different := NewError(ErrorTypeDatabase, "one message")

	if !errors.Is(err, other) {
		t.Error("Expected errors of the same type to match")
	}
	if errors.Is(err, different) {
		t.Error("Expected errors of different types not to match")
	}
}

func TestErrorTypeChecks(t *testing.T) {
	if !IsPrecondition(NewError(ErrorTypePrecondition, "x")) {
		t.Error("Expected IsPrecondition to match")
	}
	if !IsConfiguration(NewError(ErrorTypeConfiguration, "x")) {
		t.Error("Expected IsConfiguration to match")
	}
	if !IsConnection(NewError(ErrorTypeConnection, "x")) {
		t.Error("Expected IsConnection to match")
	}
	if IsPrecondition(fmt.Errorf("plain")) {
		t.Error("Expected plain errors not to match")
	}
	if IsErrorType(nil, ErrorTypePrecondition) {
		t.Error("Expected nil not to match")
	}
}
