// Package mediatypes holds the static extension table shared by the
// reconciliation engine, the metadata probe and the HTTP layer.
//
// Everything here is a pure function over the extension string; there is no
// content sniffing. The table doubles as the reconciliation allow-list:
//
//	if mediatypes.IsAllowed(filepath.Ext(name)) {
//	    kind := mediatypes.KindOfFile(name)        // image or video
//	    ct := mediatypes.ContentType(filepath.Ext(name))
//	}
//
// Snapshot names are derived from content hashes, never stored:
//
//	mediatypes.SnapshotFileName(hash) // hash + ".jpg"
package mediatypes
