package domain

import (
	"errors"
	"testing"
)

func TestOpErrorWrapUnwrap(t *testing.T) {
	root := errors.New("root")
	err := &OpError{
		Op:   "yamlpipeline.load",
		Kind: KindInvalidConfig,
		Path: "pipelines/demo.yaml",
		Err:  root,
	}

	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is to match wrapped error")
	}

	var got *OpError
	if !errors.As(err, &got) {
		t.Fatalf("expected errors.As to match OpError")
	}
	if got.Kind != KindInvalidConfig {
		t.Fatalf("expected kind %s", KindInvalidConfig)
	}
}

func TestIsKind(t *testing.T) {
	err := &OpError{
		Op:   "runstore.write",
		Kind: KindExecution,
	}

	if !IsKind(err, KindExecution) {
		t.Fatalf("expected IsKind to match")
	}
	if IsKind(err, KindNotFound) {
		t.Fatalf("expected IsKind to reject other kinds")
	}
	if IsKind(errors.New("plain"), KindExecution) {
		t.Fatalf("expected IsKind to reject non-OpError")
	}
}
