// Package github is a small REST client for the handful of issue operations
// triage needs: fetching an issue, listing open issues, commenting, and
// labeling. It also maps repository labels onto queue priorities.
package github
