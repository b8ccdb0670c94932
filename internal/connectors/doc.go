// Package connectors provides the source connector framework and the
// reference connectors for each source type.
//
// Connectors only know how to turn one query into RawSignals. Everything
// around that call lives here and is applied uniformly: per-source rate
// limits and daily quotas, retry with exponential backoff and jitter, a
// circuit breaker per source type, per-call timeouts and dead-letter routing.
//
// Connectors are registered with the Factory at startup.
package connectors
