package logger

import "strings"

const redacted = "***REDACTED***"

// SensitiveKeys are masked by RedactRecord regardless of nesting depth.
var SensitiveKeys = map[string]struct{}{
	"password":      {},
	"secret":        {},
	"token":         {},
	"api_key":       {},
	"authorization": {},
	"access_token":  {},
}

// Redact masks a configuration value when redaction is enabled on l.
func (l *Logger) Redact(value string) string {
	if l == nil || !l.redact {
		return value
	}
	return "[REDACTED]"
}

// Payload logs a record under key. With redaction on, sensitive keys are masked
// and the record itself is left untouched.
func (l *Logger) Payload(key string, m map[string]any) Field {
	if l != nil && l.redact {
		return Any(key, RedactRecord(m))
	}
	return Any(key, m)
}

// RedactRecord returns a copy of m with sensitive keys masked. The input is not modified.
func RedactRecord(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if _, ok := SensitiveKeys[strings.ToLower(k)]; ok {
			out[k] = redacted
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return RedactRecord(val)
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = redactValue(item)
		}
		return items
	default:
		return v
	}
}
