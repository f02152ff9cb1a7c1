package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// GetString returns the environment value for key, or def when unset or empty.
func GetString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// GetBool parses key as a boolean. Besides strconv forms it accepts yes/no and on/off.
func GetBool(key string, def bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "y", "on":
		return true, nil
	case "no", "n", "off":
		return false, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("env %s: invalid boolean %q", key, v)
	}
	return b, nil
}

// GetInt parses key as an integer.
func GetInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("env %s: invalid integer %q", key, v)
	}
	return n, nil
}
