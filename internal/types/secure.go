package types

// redactedPlaceholder replaces secret values wherever they would otherwise be
// printed or serialized.
const redactedPlaceholder = "***REDACTED***"

// redactedJSON is the pre-computed JSON encoding of the placeholder.
var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString holds a sensitive credential such as the Stripe API key, the
// webhook signing secret, or the database DSN. fmt and JSON output render the
// redacted placeholder, so a config dump or structured log line cannot leak
// the value; call Unmask where the plaintext is actually consumed.
type SecretString string

// String satisfies fmt.Stringer with the redacted placeholder.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON emits the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the plaintext. Callers are the Stripe client constructor,
// the webhook verifier, and the database pool; anything else logging or
// transporting the value should keep the SecretString wrapper.
func (s SecretString) Unmask() string {
	return string(s)
}
