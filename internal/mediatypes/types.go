package mediatypes

import (
	"path/filepath"
	"sort"
	"strings"
)

// Kind classifies a media file.
type Kind string

const (
	// KindImage is a still image; it serves as its own preview.
	KindImage Kind = "image"
	// KindVideo is a video; it gets a generated snapshot.
	KindVideo Kind = "video"
	// KindUnknown is anything outside the allow-list.
	KindUnknown Kind = ""
)

// SnapshotExtension is the extension of every generated snapshot file.
const SnapshotExtension = ".jpg"

// DefaultContentType is returned for extensions missing from the table.
const DefaultContentType = "application/octet-stream"

type entry struct {
	kind        Kind
	contentType string
}

// table is the allow-list used by reconciliation. Keys are lowercase with the leading dot.
var table = map[string]entry{
	// Images
	".jpg":  {KindImage, "image/jpeg"},
	".jpeg": {KindImage, "image/jpeg"},
	".png":  {KindImage, "image/png"},
	".gif":  {KindImage, "image/gif"},
	".bmp":  {KindImage, "image/bmp"},
	".webp": {KindImage, "image/webp"},
	".tiff": {KindImage, "image/tiff"},
	".tif":  {KindImage, "image/tiff"},
	".heic": {KindImage, "image/heic"},
	".heif": {KindImage, "image/heif"},

	// Videos
	".mp4":  {KindVideo, "video/mp4"},
	".m4v":  {KindVideo, "video/x-m4v"},
	".mov":  {KindVideo, "video/quicktime"},
	".mkv":  {KindVideo, "video/x-matroska"},
	".webm": {KindVideo, "video/webm"},
	".avi":  {KindVideo, "video/x-msvideo"},
	".wmv":  {KindVideo, "video/x-ms-wmv"},
	".mpeg": {KindVideo, "video/mpeg"},
	".mpg":  {KindVideo, "video/mpeg"},
	".3gp":  {KindVideo, "video/3gpp"},
}

func normalize(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// KindOf returns the Kind for an extension such as ".MP4" or "mp4".
func KindOf(ext string) Kind {
	return table[normalize(ext)].kind
}

// ContentType returns the MIME type for an extension, or DefaultContentType.
func ContentType(ext string) string {
	if e, ok := table[normalize(ext)]; ok {
		return e.contentType
	}
	return DefaultContentType
}

// IsAllowed reports whether files with this extension take part in reconciliation.
func IsAllowed(ext string) bool {
	_, ok := table[normalize(ext)]
	return ok
}

// KindOfFile is KindOf applied to a file name.
func KindOfFile(name string) Kind {
	return KindOf(filepath.Ext(name))
}

// IsVideoContentType reports whether a stored content type denotes a video.
func IsVideoContentType(contentType string) bool {
	return strings.HasPrefix(contentType, "video/")
}

// SnapshotFileName derives the snapshot file name from a content hash.
func SnapshotFileName(contentHash string) string {
	return contentHash + SnapshotExtension
}

// Extensions returns the allow-listed extensions of the given kind, sorted.
func Extensions(kind Kind) []string {
	var exts []string
	for ext, e := range table {
		if e.kind == kind {
			exts = append(exts, ext)
		}
	}
	sort.Strings(exts)
	return exts
}
