package utils

import (
	"encoding/hex"
	"testing"
)

func TestNewMaskIDIsHexAndUnique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := NewMaskID()
		if len(id) != 32 {
			t.Fatalf("len(id) = %d, want 32", len(id))
		}
		if _, err := hex.DecodeString(id); err != nil {
			t.Fatalf("id %q is not hex: %v", id, err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestBytesMD5(t *testing.T) {
	if got, want := BytesMD5([]byte("abc")), "900150983cd24fb0d6963f7d28e17f72"; got != want {
		t.Fatalf("BytesMD5 = %q, want %q", got, want)
	}
}

func TestInitLoggerRejectsBadLevel(t *testing.T) {
	if err := InitLogger("debug", "loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if err := InitLogger("release", "warn"); err != nil {
		t.Fatalf("InitLogger: %v", err)
	}
	Sync()
}
