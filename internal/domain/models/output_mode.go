package models

import (
	"fmt"
	"strings"
)

// OutputMode names a sink the dispatcher can deliver to.
type OutputMode string

const (
	ModeLog      OutputMode = "log"
	ModeStdout   OutputMode = "stdout"
	ModeQueue    OutputMode = "queue"
	ModeREST     OutputMode = "rest"
	ModeS3       OutputMode = "s3"
	ModeDatabase OutputMode = "database"
)

// AllOutputModes lists every known mode in declaration order.
var AllOutputModes = []OutputMode{ModeLog, ModeStdout, ModeQueue, ModeREST, ModeS3, ModeDatabase}

func (m OutputMode) String() string { return string(m) }

// Valid reports whether m is one of the known modes.
func (m OutputMode) Valid() bool {
	for _, known := range AllOutputModes {
		if m == known {
			return true
		}
	}
	return false
}

// ParseOutputMode resolves a configured mode name. Unknown names are a configuration error.
func ParseOutputMode(name string) (OutputMode, error) {
	m := OutputMode(strings.ToLower(strings.TrimSpace(name)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: unknown output mode %q", ErrConfiguration, name)
	}
	return m, nil
}

// ParseOutputModes resolves an ordered list of names, keeping order and dropping blanks.
func ParseOutputModes(names []string) ([]OutputMode, error) {
	modes := make([]OutputMode, 0, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		m, err := ParseOutputMode(n)
		if err != nil {
			return nil, err
		}
		modes = append(modes, m)
	}
	return modes, nil
}
