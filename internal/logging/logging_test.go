package logging

import "testing"

func TestNew(t *testing.T) {
	for _, mode := range []string{"dev", "prod", "production", ""} {
		t.Run(mode, func(t *testing.T) {
			l, err := New(mode)
			if err != nil {
				t.Fatalf("New(%q) error: %v", mode, err)
			}
			if l == nil {
				t.Fatal("New returned nil logger")
			}
		})
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Error("OrNop(nil) must return a logger")
	}
}
