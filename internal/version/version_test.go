package version

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	v := Get()
	if v == "" {
		t.Fatal("Get() returned empty version")
	}
	if strings.ContainsAny(v, " \n") {
		t.Errorf("Get() = %q, want trimmed", v)
	}
}

func TestString_StartsWithRelease(t *testing.T) {
	if s := String(); !strings.HasPrefix(s, Get()) {
		t.Errorf("String() = %q, want prefix %q", s, Get())
	}
}
