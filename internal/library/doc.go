// Package library is the owner-scoped facade over the media catalog,
// the reconciliation engine and the snapshot generator.
//
// The HTTP layer talks only to Service. Every call carries the caller's
// owner id; records of other owners surface as Permission errors, and the
// errors returned are tagged with an apperr.Kind for the caller to map.
package library
