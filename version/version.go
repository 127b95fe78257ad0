// Package version holds build-time identity strings reported in the relay
// information document and in startup logs.
package version

const (
	V           = "0.1.0"
	URL         = "https://knotrelay.dev"
	Description = "a nostr relay focused on connection handling, subscription matching and durable fan-out"
)
