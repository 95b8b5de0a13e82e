package main

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestRunReportsSetupErrors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.yaml")
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown flag", []string{"--bogus"}, "unknown flag"},
		{"failure rate", []string{"-c", missing, "--failure-rate", "2"}, "invalid config"},
		{"log level", []string{"-c", missing, "--log-level", "loud"}, "set up logging"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("run(%q) = %v, want error containing %q", tt.args, err, tt.want)
			}
		})
	}
}
