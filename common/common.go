// Package common holds identifiers shared across FheDataHub binaries.
package common

// PackageName identifies this module in metrics and logs.
const PackageName = "fhedatahub"

// Version is the release version, overridden at build time via ldflags.
var Version = "dev"
