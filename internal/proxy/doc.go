// Package proxy forwards authorized requests to the backend-of-record.
//
// The Forwarder rebuilds each call from scratch against the configured
// base URL, so inbound cookies, identity-provider tokens, and internal
// headers never cross the boundary; the only credential the backend
// sees is the bearer injected here. Status codes and JSON bodies are
// relayed verbatim, and any transport failure collapses to a generic
// 500 with the cause logged on the gateway side only.
package proxy
