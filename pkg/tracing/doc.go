// Package tracing attaches an optional tracing back-end to model calls.
//
// Back-ends register a Provider from an init function, so a back-end is
// available only when its package is linked into the binary:
//
//	import _ "github.com/effective-security/azurellm/pkg/tracing/opik"
//
// Select never fails: when tracing is disabled, or the back-end is not
// available or cannot be initialised, the Noop sink is returned.
package tracing
