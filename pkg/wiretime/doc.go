// Package wiretime converts instants to and from the timestamp format used by
// the GitHub notifications API and by the persisted bridge state.
//
// The wire format is ISO-8601 UTC with second precision and a literal "Z":
//
//	2024-01-13T12:00:00Z
//
// Because every field is zero-padded and fixed-width, comparing two wire
// strings lexicographically gives the same answer as comparing the instants.
package wiretime
