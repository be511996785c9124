package invoice

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces  = regexp.MustCompile(`\s+`)
)

const maxDocumentBaseLen = 50

// documentTypes are the only types a stored document is ever served as inline
var documentTypes = []string{
	"application/pdf",
	"image/png",
	"image/jpeg",
	"image/gif",
	"image/heic",
	"image/heif",
}

// IsAllowedDocumentType reports whether t is an accepted invoice document type
func IsAllowedDocumentType(t string) bool {
	for _, allowed := range documentTypes {
		if t == allowed {
			return true
		}
	}
	return false
}

// DetectDocumentType sniffs data and returns its type when it is an accepted invoice
// document, or "" otherwise. Whatever the client claims about the upload is ignored.
func DetectDocumentType(data []byte) string {
	detected := mimetype.Detect(data)
	for _, allowed := range documentTypes {
		if detected.Is(allowed) {
			return allowed
		}
	}
	return ""
}

// DocumentName builds a unique storage name for an uploaded file, keeping a cleaned-up
// version of the original name so the stored files stay recognisable
func DocumentName(original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	if unsafeNameChars.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))

	base = unsafeNameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)
	if len(base) > maxDocumentBaseLen {
		base = base[:maxDocumentBaseLen]
	}
	if base == "" {
		base = "invoice"
	}

	return uuid.NewString() + "_" + base + ext
}
