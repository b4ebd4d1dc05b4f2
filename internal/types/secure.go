package types

// redactedPlaceholder replaces secret values in logs and serialization.
const redactedPlaceholder = "***REDACTED***"

// redactedJSON is the pre-computed JSON encoding of the redacted placeholder.
var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString is a string type that prevents accidental logging or
// serialization of sensitive values (database URLs, provider API keys).
// It overrides String() and MarshalJSON() to return a redacted placeholder,
// so secrets never leak through fmt functions or JSON output.
//
// Use Unmask() to retrieve the raw plaintext when it is genuinely needed
// (e.g., passing to an HTTP client or the pgx connection string).
type SecretString string

// String returns a redacted placeholder instead of the raw value.
// Invoked by fmt.Sprintf, fmt.Println, and anything else that consults
// the fmt.Stringer interface.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string, keeping
// secrets out of config dumps, API responses, and structured log entries.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the raw plaintext value of the secret. Usage should be
// limited to the points where the actual value is required (connection
// strings, Authorization headers).
func (s SecretString) Unmask() string {
	return string(s)
}
