// Package confluence provides the corpus source for Confluence wikis.
//
// The client lists pages through the REST content API, switching to CQL
// search when labels, a modification cutoff or an ancestor narrow the
// listing, and exports page bodies for chunking. Requests are throttled
// with a token bucket; throttled and server errors are retried with
// backoff.
package confluence
