// Package audit provides the append-only security event log consumed by the
// tool-use gate. Entries are written as JSON lines; appends are best-effort
// and never surface an error to the guarded operation they describe.
package audit
