// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"os"
	"strings"
)

// Env represents a Source where its underlying values are extracted
// from environment variables.
type Env struct {
	environ func() []string
	prefix  string
}

// FromEnv returns a Source which will apply its config from the
// environment variables available to the current process. A non-empty
// prefix filters the variables and is stripped from the stored keys.
func FromEnv(prefix string) Env {
	return Env{
		environ: os.Environ,
		prefix:  prefix,
	}
}

// Apply implements the Source interface.
func (src Env) Apply(store Store) error {
	m := make(Map)
	for _, pair := range src.environ() {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		if src.prefix != "" {
			if !strings.HasPrefix(k, src.prefix) {
				continue
			}
			k = strings.TrimPrefix(k, src.prefix)
		}
		m[k] = v
	}
	return m.Apply(store)
}
