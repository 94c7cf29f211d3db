package api

// API limits and constants.
const (
	// MaxImportSize caps uploaded place exports (32 MB).
	MaxImportSize = 32 << 20
)

// Content types served by the export endpoints.
const (
	ContentTypeKML = "application/vnd.google-earth.kml+xml"
	CacheNoStore   = "no-cache"
)
