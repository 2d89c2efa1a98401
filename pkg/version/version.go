// Package version provides version information for the flux feeder.
package version

// Version is the current version of the flux feeder.
const Version = "1.0.0"

// AgentString returns the full agent string with versioning.
// Format: @gopartyparrot/solana-flux-aggregator@v{version}
func AgentString() string {
	return "@gopartyparrot/solana-flux-aggregator@v" + Version
}
