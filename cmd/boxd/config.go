package main

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds boxd's runtime configuration. The env struct tag carries the
// environment variable name and the default value if missing, or empty (if
// not ?=), the same convention the teacher's atlas.Config uses. All string
// arrays are comma-separated.
type Config struct {
	// Home is the directory holding identity keys and the queue store.
	Home string `env:"BOX_HOME?="`

	// Addr is the UDP address the broker listens on.
	Addr netip.AddrPort `env:"BOX_ADDR=:4242"`

	// Mode is "clear" or "aead-psk".
	Mode string `env:"BOX_MODE=aead-psk"`

	// PSK is the pre-shared key for aead-psk mode, taken verbatim (no
	// encoding) and zero-padded/truncated to the AEAD key size.
	PSK string `env:"BOX_PSK"`

	// MinProtocolVersion is a semver string (e.g. "v1.0.0"); wire protocol
	// versions below its major component are excluded from negotiation.
	MinProtocolVersion string `env:"BOX_MIN_PROTOCOL_VERSION"`

	MaxPayload    int `env:"BOX_MAX_PAYLOAD=0"`
	QueueCapacity int `env:"BOX_QUEUE_CAPACITY=1024"`

	// QueueStoreCompress gzips stored objects at rest.
	QueueStoreCompress bool `env:"BOX_QUEUESTORE_COMPRESS"`

	// PermanentQueues are normalized queue paths (or prefix/* patterns)
	// that use peek-on-GET instead of consume-on-GET semantics.
	PermanentQueues []string `env:"BOX_PERMANENT_QUEUES=/INBOX,/whoswho/*"`

	// RootResolver enables this node's Location Index: PUTs into
	// /whoswho/<uuid> update it, and LOCATE/admin locate answer from it.
	RootResolver bool `env:"BOX_ROOT_RESOLVER"`

	// Resolvers are root resolver addresses this node publishes presence
	// to (comma-separated host:port).
	Resolvers []string `env:"BOX_RESOLVERS"`

	PresenceInterval time.Duration `env:"BOX_PRESENCE_INTERVAL=60s"`
	StaleThreshold   time.Duration `env:"BOX_STALE_THRESHOLD=120s"`

	// PresenceDB is an optional sqlite3 file backing the Location Index,
	// so /whoswho survives a restart. Only meaningful with RootResolver.
	PresenceDB string `env:"BOX_PRESENCEDB"`

	// IP2LocationDB is an optional path to an IP2Location BIN database for
	// region-tagging published addresses.
	IP2LocationDB string `env:"BOX_IP2LOCATION_DB"`

	NATEnabled         bool   `env:"BOX_NAT_ENABLED=true"`
	NATGatewayOverride string `env:"BOX_NAT_GATEWAY"`

	AdminSocket string `env:"BOX_ADMIN_SOCKET?="`

	LogLevel        zerolog.Level `env:"BOX_LOG_LEVEL=info"`
	LogStdout       bool          `env:"BOX_LOG_STDOUT=true"`
	LogStdoutPretty bool          `env:"BOX_LOG_STDOUT_PRETTY=true"`
	LogFile         string        `env:"BOX_LOG_FILE"`
}

// defaultHome returns <user home>/.box, the filesystem layout spec.md §6
// describes.
func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".box"
	}
	return filepath.Join(home, ".box")
}

// UnmarshalEnv populates c from es (a list of "KEY=VALUE" strings),
// reflecting over c's env-tagged fields the same way atlas.Config does:
// each field's tag carries "KEY" or "KEY?" (unsettable-to-empty) plus an
// optional "=default".
func (c *Config) UnmarshalEnv(es []string) error {
	em := map[string]string{}
	for _, e := range es {
		if strings.HasPrefix(e, "BOX_") {
			if k, v, ok := strings.Cut(e, "="); ok {
				em[k] = v
			}
		}
	}

	cv := reflect.ValueOf(c).Elem()
	for _, ctf := range reflect.VisibleFields(cv.Type()) {
		env, ok := ctf.Tag.Lookup("env")
		if !ok {
			continue
		}

		var unsettable bool
		key, val, _ := strings.Cut(env, "=")
		if strings.HasSuffix(key, "?") {
			key = strings.TrimSuffix(key, "?")
			unsettable = true
		}
		if v, exists := em[key]; exists {
			if unsettable || v != "" {
				val = v
			}
			delete(em, key)
		}

		cvf := cv.FieldByName(ctf.Name)
		switch cvf.Interface().(type) {
		case string:
			cvf.SetString(val)
		case int:
			if val == "" {
				cvf.SetInt(0)
			} else if v, err := strconv.ParseInt(val, 10, 64); err == nil {
				cvf.SetInt(v)
			} else {
				return fmt.Errorf("env %s: parse %q: %w", key, val, err)
			}
		case bool:
			if val == "" {
				cvf.SetBool(false)
			} else if v, err := strconv.ParseBool(val); err == nil {
				cvf.SetBool(v)
			} else {
				return fmt.Errorf("env %s: parse %q: %w", key, val, err)
			}
		case []string:
			if val == "" {
				cvf.Set(reflect.ValueOf([]string{}))
			} else {
				cvf.Set(reflect.ValueOf(strings.Split(val, ",")))
			}
		case zerolog.Level:
			if v, err := zerolog.ParseLevel(val); err == nil {
				cvf.Set(reflect.ValueOf(v))
			} else {
				return fmt.Errorf("env %s: parse %q: %w", key, val, err)
			}
		case time.Duration:
			if v, err := time.ParseDuration(val); err == nil {
				cvf.Set(reflect.ValueOf(v))
			} else {
				return fmt.Errorf("env %s: parse %q: %w", key, val, err)
			}
		case netip.AddrPort:
			if val == "" {
				cvf.Set(reflect.ValueOf(netip.AddrPort{}))
			} else {
				v, err := parseListenAddrPort(val)
				if err != nil {
					return fmt.Errorf("env %s: parse %q: %w", key, val, err)
				}
				cvf.Set(reflect.ValueOf(v))
			}
		default:
			return fmt.Errorf("env %s: unhandled config field type %s", key, cvf.Type())
		}
	}

	if c.Home == "" {
		c.Home = defaultHome()
	}
	return nil
}

// parseListenAddrPort parses forms like ":4242" (any address) in addition
// to "host:port", since netip.ParseAddrPort alone rejects an empty host.
func parseListenAddrPort(s string) (netip.AddrPort, error) {
	if strings.HasPrefix(s, ":") {
		s = "0.0.0.0" + s
	}
	return netip.ParseAddrPort(s)
}
