// Package notifications delivers triage run events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Per-category toggles (queue, issues, errors) let operators mute
// noisy event classes without losing the rest.
//
// Extend this package if you need alternative transports; scheduler and
// daemon code depend only on the Service interface.
package notifications
