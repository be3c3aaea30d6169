// Package handlers provides the HTTP adapter of the media library.
//
// It includes handlers for:
//   - Listing, streaming and previewing an owner's media
//   - Favorites, soft deletion, restore and permanent deletion
//   - Triggering reconciliation passes
//   - Album management and membership
//   - Content access keys, health checks and version information
//
// The caller's owner id arrives in the X-Owner-ID header, set by the
// identity layer in front of this service. Error kinds from the core are
// translated to status codes here and nowhere else.
package handlers
