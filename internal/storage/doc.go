// Package storage maps owners to their directories under the storage root.
//
// Each owner gets {root}/{owner}/media for original files and
// {root}/{owner}/media/snapshots for generated previews. Owner ids are
// validated so they can never address anything outside the root.
package storage
