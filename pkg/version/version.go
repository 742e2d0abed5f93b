// Package version exposes the build version.
package version

// Version is the current codechatd version.
// Overridden at build time via -ldflags "-X .../pkg/version.Version=...".
var Version = "0.3.0-dev"
