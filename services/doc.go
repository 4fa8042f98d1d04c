// Package services contains the deployable surfaces around the protocol
// core: the hub HTTP API, the oracle HTTP service and its client, the
// access controller with its admin endpoints, attestation verification
// against published measurements, and the persistence stores.
package services
