// Package callbacks provides handlers notified around chat and embedding
// calls. Handlers observe calls and never change request or response content.
package callbacks
