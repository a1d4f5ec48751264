package domain

// Credentials holds the exchange API credentials supplied per bot. The engine
// treats them as opaque: they are checked for presence at construction and
// proven against the exchange at start, never interpreted.
type Credentials struct {
	APIKey    string
	APISecret string
}

// IsComplete reports whether both credential fields are present.
func (c Credentials) IsComplete() bool {
	return c.APIKey != "" && c.APISecret != ""
}
