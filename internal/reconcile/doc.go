// Package reconcile keeps an owner's media catalog aligned with the files
// in their media directory.
//
// A pass enumerates the top level of {root}/{owner}/media, hashes each
// allow-listed file and classifies it against the catalog:
//   - new content is probed, snapshotted when it is a video, and recorded
//   - content recorded under the same name is left alone
//   - content recorded under another name is a rename when the old file is
//     gone or changed, and a duplicate to delete when it is still there
//
// Records that no file accounted for are removed together with their
// snapshots. Passes for the same owner never interleave.
package reconcile
