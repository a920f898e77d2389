package common

import (
	"errors"
	"fmt"
	"testing"
)

func TestWipeByteArray_ZerosBuffer(t *testing.T) {
	buf := []byte("hunter2")
	WipeByteArray(buf)
	for i, v := range buf {
		if v != 0 {
			t.Fatalf("expected buf[%d]==0, got %d", i, v)
		}
	}
}

func TestWipeByteArray_NilSafe(t *testing.T) {
	WipeByteArray(nil)
}

func TestSentinels_MatchThroughWrapping(t *testing.T) {
	err := fmt.Errorf("fetch records: %w: %w", ErrUnreachable, errors.New("dial tcp: refused"))
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable to match %v", err)
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Fatalf("ErrUnauthorized must not match %v", err)
	}
}
