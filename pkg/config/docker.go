package config

import (
	"os"
	"sync"
)

// dockerHostAlias reaches services published on the host from inside a container.
const dockerHostAlias = "host.docker.internal"

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker reports whether the process runs inside a Docker container,
// detected by the /.dockerenv marker. The result is cached.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker rewrites loopback hosts to host.docker.internal when
// running in a container, so a dockerised service can reach a database or
// Redis started on the developer's machine. Other hosts are returned as-is.
func ResolveHostForDocker(host string) string {
	return resolveHost(host, IsRunningInDocker())
}

func resolveHost(host string, inDocker bool) string {
	if inDocker && (host == "localhost" || host == "127.0.0.1") {
		return dockerHostAlias
	}
	return host
}

// resolveServiceHosts applies ResolveHostForDocker to every backing service
// configured by host name. URL-based settings are left untouched.
func (c *Config) resolveServiceHosts() {
	c.Database.Host = ResolveHostForDocker(c.Database.Host)
	c.Redis.Host = ResolveHostForDocker(c.Redis.Host)
}
