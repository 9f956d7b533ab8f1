// Package tools provides host helpers shared by platform adapters.
//
// Ownership boundary:
// - command execution helpers
package tools
