package types

// SecretString wraps sensitive configuration values (connection strings,
// API keys) so they cannot leak through logs or %v formatting. The raw value
// must be requested explicitly via Reveal.
type SecretString string

// String implements fmt.Stringer and always redacts.
func (s SecretString) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// GoString redacts %#v formatting as well.
func (s SecretString) GoString() string {
	return s.String()
}

// MarshalText redacts the value in any text-based serialization.
func (s SecretString) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Reveal returns the underlying secret value.
func (s SecretString) Reveal() string {
	return string(s)
}

// IsSet reports whether a value is present.
func (s SecretString) IsSet() bool {
	return s != ""
}
