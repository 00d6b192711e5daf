//go:build linux || darwin

package sockio

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	// EnvDefaultSocketName names the override consulted by nameless server
	// creation, for host languages that cannot pass a string through their
	// foreign-function layer.
	EnvDefaultSocketName = "SOCKET_PACKET_UTILS_DFLT_SOCKET_NAME"

	// DefaultSocketName is used when EnvDefaultSocketName is unset.
	DefaultSocketName = "SOCKET_PACKET_UTILS_DFLT"

	// MaxNameLen bounds a socket's identifying name.
	MaxNameLen = 256
)

// ErrInvalidPortOverride reports a <NAME>_PORT value that is not a port.
var ErrInvalidPortOverride = fmt.Errorf("sockio: invalid port override")

// ResolvePort returns the port from the <name>_PORT environment variable
// when set, otherwise dflt. An unparseable or out-of-range override is a
// setup error, not a silent fallback.
func ResolvePort(name string, dflt int) (int, error) {
	key := name + "_PORT"
	raw, ok := os.LookupEnv(key)
	if !ok {
		log.Info().
			Str("env", key).
			Int("port", dflt).
			Msg("port override not set, using default port")
		return dflt, nil
	}
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || port < 0 || port > 65535 {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidPortOverride, key, raw)
	}
	return port, nil
}

// ResolveName returns the socket name for nameless server creation: the
// EnvDefaultSocketName override when set, else DefaultSocketName.
func ResolveName() string {
	if v := os.Getenv(EnvDefaultSocketName); v != "" {
		return v
	}
	log.Info().
		Str("env", EnvDefaultSocketName).
		Str("name", DefaultSocketName).
		Msg("socket name override not set, using default name")
	return DefaultSocketName
}
