// Package imagestore persists uploaded place and user images.
package imagestore

import (
	"strings"

	"github.com/google/uuid"

	errs "place-registry/pkg/errors"
)

var extByType = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpeg",
	"image/jpg":  "jpg",
}

// Accepts reports whether contentType is an accepted image type.
func Accepts(contentType string) bool {
	_, ok := extByType[normalizeType(contentType)]
	return ok
}

func normalizeType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// objectName returns a fresh, collision-free name for an upload.
func objectName(op, contentType string) (string, error) {
	ext, ok := extByType[normalizeType(contentType)]
	if !ok {
		return "", errs.NewValidation(op, "invalid mime type", nil)
	}
	return uuid.NewString() + "." + ext, nil
}
