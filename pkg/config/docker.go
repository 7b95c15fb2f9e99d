package config

import (
	"os"
	"sync"
)

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker reports whether the process runs inside a Docker container,
// based on the presence of /.dockerenv. The result is cached.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// resolveHost maps loopback hosts to host.docker.internal when inDocker is set.
func resolveHost(host string, inDocker bool) string {
	if !inDocker {
		return host
	}
	if host == "localhost" || host == "127.0.0.1" {
		return "host.docker.internal"
	}
	return host
}

// ResolveServiceHosts rewrites loopback PostgreSQL and Redis hosts so a
// containerised engine reaches services published on the Docker host.
func (c *Config) ResolveServiceHosts() {
	c.resolveServiceHosts(IsRunningInDocker())
}

func (c *Config) resolveServiceHosts(inDocker bool) {
	c.Database.Host = resolveHost(c.Database.Host, inDocker)
	if c.Redis.Host != "" {
		c.Redis.Host = resolveHost(c.Redis.Host, inDocker)
	}
}
