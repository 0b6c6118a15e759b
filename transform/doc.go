// Package transform implements the data preprocessing strategies. Each
// strategy reads its source either inline from the job config or from an
// artifact written by an earlier collection job, applies the configured
// cleaning steps, and writes the processed output to the processed bucket.
package transform
