package config

import (
	"os"
	"sync"
)

var (
	dockerOnce sync.Once
	inDocker   bool

	// dockerMarker is the file Docker creates in every container.
	dockerMarker = "/.dockerenv"
)

// IsRunningInDocker reports whether the process runs inside a Docker container.
// The result is cached after the first call.
func IsRunningInDocker() bool {
	dockerOnce.Do(func() {
		_, err := os.Stat(dockerMarker)
		inDocker = err == nil
	})
	return inDocker
}

// ResolveSourceHost maps loopback hosts of an external source to
// host.docker.internal when running in Docker, so a source registered as
// "localhost" reaches the machine hosting the container.
func ResolveSourceHost(host string) string {
	return resolveSourceHost(host, IsRunningInDocker())
}

func resolveSourceHost(host string, docker bool) string {
	if !docker {
		return host
	}
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return "host.docker.internal"
	}
	return host
}
