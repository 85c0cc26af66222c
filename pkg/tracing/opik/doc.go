// Package opik delivers call traces to an Opik server over its REST API.
//
// Importing the package registers the "opik" tracing back-end.
package opik
