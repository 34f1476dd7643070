package config

import (
	"testing"
)

func TestResolveHost(t *testing.T) {
	tests := []struct {
		host     string
		inDocker bool
		expected string
	}{
		{"localhost", false, "localhost"},
		{"127.0.0.1", false, "127.0.0.1"},
		{"localhost", true, "host.docker.internal"},
		{"127.0.0.1", true, "host.docker.internal"},
		{"db.internal", true, "db.internal"},
		{"192.168.1.100", true, "192.168.1.100"},
	}

	for _, tt := range tests {
		if got := resolveHost(tt.host, tt.inDocker); got != tt.expected {
			t.Errorf("resolveHost(%q, %v) = %q, want %q", tt.host, tt.inDocker, got, tt.expected)
		}
	}
}

func TestResolveHostForDocker_RemoteHostsUnchanged(t *testing.T) {
	for _, host := range []string{"mydb.example.com", "host.docker.internal"} {
		if got := ResolveHostForDocker(host); got != host {
			t.Errorf("ResolveHostForDocker(%q) = %q, want unchanged", host, got)
		}
	}
}
