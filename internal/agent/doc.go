// Package agent runs the configured coding-agent CLI against a single issue.
//
// The handler speaks a line-delimited JSON protocol with the agent process:
// the issue payload goes in on stdin, the agent emits tool requests, comments,
// labels, and a final result on stdout, and tool verdicts are written back on
// stdin. Every tool request passes through the security guard before a
// verdict is issued.
package agent
