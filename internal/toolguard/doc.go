// Package toolguard gates tool invocations requested by the coding agent.
//
// A Guard evaluates each request against ordered deny rules first, then an
// allowlist, then the configured default mode. Evaluation never returns an
// error and never blocks: a request that cannot be understood is denied, and
// audit persistence problems are handled by the audit sink.
package toolguard
