package storage

import "strings"

// contentType is the registered media type for GeoPackage files.
const contentType = "application/geopackage+sqlite3"

// joinKey prefixes key with a remote folder.
func joinKey(prefix, key string) string {
	prefix = strings.Trim(prefix, "/")
	key = strings.TrimPrefix(key, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

// relativeKey strips a remote folder prefix from a listed key.
func relativeKey(prefix, key string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		key = strings.TrimPrefix(key, prefix)
	}
	return strings.TrimPrefix(key, "/")
}
