// Package prompts renders chat messages from Go templates.
//
// Templates use text/template syntax with the sprig function map, and
// every declared input variable must be provided.
package prompts
