package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{" on ", false, true},
		{"false", true, false},
		{"0", true, false},
		{"off", true, false},
		{"", true, true},
		{"", false, false},
		{"maybe", true, true},
		{"maybe", false, false},
	}
	for _, tc := range cases {
		t.Setenv("TEST_BOOL", tc.value)
		if got := ParseBoolEnv("TEST_BOOL", tc.def); got != tc.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tc.value, tc.def, got, tc.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	cases := []struct {
		value string
		want  time.Duration
	}{
		{"30m", 30 * time.Minute},
		{" 1h ", time.Hour},
		{"", time.Minute},
		{"soon", time.Minute},
		{"-5m", time.Minute},
	}
	for _, tc := range cases {
		t.Setenv("TEST_DURATION", tc.value)
		if got := ParseDurationEnv("TEST_DURATION", time.Minute); got != tc.want {
			t.Errorf("ParseDurationEnv(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}
