// Package protocol owns the relay wire contract.
//
// Ownership boundary:
// - client -> relay requests (action-keyed JSON text frames)
// - relay -> client events (type-keyed JSON text frames)
// - decode classification: known event, unrecognized event, malformed frame
package protocol
