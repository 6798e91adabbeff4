package logging

import "testing"

func TestNew(t *testing.T) {
	for _, tc := range []struct {
		level, format string
		ok            bool
	}{
		{"info", "json", true},
		{"debug", "console", true},
		{"warn", "", true},
		{"loud", "json", false},
		{"info", "xml", false},
	} {
		l, err := New(tc.level, tc.format)
		if (err == nil) != tc.ok {
			t.Fatalf("New(%q, %q): err = %v", tc.level, tc.format, err)
		}
		if l != nil {
			_ = l.Sync()
		}
	}
	l, _ := New("warn", "json")
	if l.Core().Enabled(-1) {
		t.Fatal("debug must be disabled at warn level")
	}
}
