// Package service holds the ingest and reconciliation logic: uploads are
// parsed and grouped, and each settled batch is folded into its release
// record and announcement.
package service
