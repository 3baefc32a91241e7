package domain

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

type UploadScope string

const (
	UploadScopeEvent UploadScope = "events"
	UploadScopeUser  UploadScope = "uploads"
)

const maxFilenameLength = 100

var unsafeFilenameChars = regexp.MustCompile(`[^a-z0-9._-]+`)

type UploadRequest struct {
	Scope       UploadScope
	EntityID    string
	Filename    string
	ContentType string
	Size        int64
}

type SignedUpload struct {
	UploadURL string            `json:"upload_url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	ObjectKey string            `json:"object_key"`
	PublicURL string            `json:"public_url"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// SanitizeFilename strips directories and reduces a client filename to
// [a-z0-9._-].
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	name = strings.ToLower(name)
	name = unsafeFilenameChars.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-.")
	if len(name) > maxFilenameLength {
		name = strings.Trim(name[len(name)-maxFilenameLength:], "-.")
	}
	if name == "" {
		return "file"
	}
	return name
}

// ObjectKey returns {scope}/{id}/{unixMillis}-{sanitized filename}.
func ObjectKey(scope UploadScope, id, filename string, at time.Time) string {
	return fmt.Sprintf("%s/%s/%d-%s", scope, id, at.UnixMilli(), SanitizeFilename(filename))
}

// KeyInScope reports whether key lives under the scope prefix for id.
func KeyInScope(key string, scope UploadScope, id string) bool {
	return strings.HasPrefix(key, fmt.Sprintf("%s/%s/", scope, id))
}
