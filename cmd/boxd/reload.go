package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/hashicorp/go-envparse"
)

// reloader re-reads configuration on the admin channel's `reload [path]`
// command (spec.md §6) and on SIGHUP, applying the subset of fields that
// are safe to change without restarting the broker (the console log
// target; the log level is not re-applied); the
// listen address, PSK, and mode require a process restart, matching the
// teacher's own reload scope (Server.reload swaps closures, it never
// rebinds the listening socket).
type reloader struct {
	mu  sync.Mutex
	cfg Config

	applyLogLevel func(cfg Config)
}

func newReloader(cfg Config, applyLogLevel func(cfg Config)) *reloader {
	return &reloader{cfg: cfg, applyLogLevel: applyLogLevel}
}

// Reload implements adminapi.Deps.Reload.
func (r *reloader) Reload(path string) (any, error) {
	env, err := readEnvSource(path)
	if err != nil {
		return nil, fmt.Errorf("boxd: read config: %w", err)
	}

	var next Config
	if err := next.UnmarshalEnv(env); err != nil {
		return nil, fmt.Errorf("boxd: parse config: %w", err)
	}

	r.mu.Lock()
	r.cfg = next
	r.mu.Unlock()

	if r.applyLogLevel != nil {
		r.applyLogLevel(next)
	}

	return struct {
		LogLevel  string   `json:"logLevel"`
		Resolvers []string `json:"resolvers"`
	}{LogLevel: next.LogLevel.String(), Resolvers: next.Resolvers}, nil
}

func readEnvSource(path string) ([]string, error) {
	if path == "" {
		return os.Environ(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := envparse.Parse(f)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}
