package converter

import (
	"strings"

	"github.com/platinummonkey/pastemark/internal/imageprep"
)

// OutputFormat is the format pasted images are stored in
type OutputFormat string

const (
	FormatWebP OutputFormat = "webp"
	FormatPNG  OutputFormat = "png"
	FormatAVIF OutputFormat = "avif"
	FormatJPEG OutputFormat = "jpeg"
)

// DefaultFormat is used when the configured format is not recognized
const DefaultFormat = FormatWebP

// ValidFormats lists the accepted output formats
var ValidFormats = []OutputFormat{FormatWebP, FormatPNG, FormatAVIF, FormatJPEG}

// ParseFormat returns the format named by s, or DefaultFormat when s is not recognized
func ParseFormat(s string) OutputFormat {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "jpg" {
		return FormatJPEG
	}
	for _, f := range ValidFormats {
		if string(f) == s {
			return f
		}
	}
	return DefaultFormat
}

// Extension returns the file extension without a dot
func (f OutputFormat) Extension() string {
	return string(f)
}

// MimeType returns the MIME type for the format
func (f OutputFormat) MimeType() string {
	return "image/" + string(f)
}

// inProcess maps formats encoded without an external tool
var inProcess = map[OutputFormat]imageprep.Format{
	FormatWebP: imageprep.FormatWebP,
	FormatJPEG: imageprep.FormatJPEG,
	FormatPNG:  imageprep.FormatPNG,
}

// Artifact is a converted image. Exactly one of Buffer or Path is set: an external tool
// writes straight to storage and is represented by the stored path.
type Artifact struct {
	MimeType  string
	Extension string
	Filename  string

	// Buffer holds encoded bytes not yet written to storage
	Buffer []byte

	// Path is the store-relative path of an already written file
	Path string

	// Requested is the format that was asked for
	Requested OutputFormat

	// Fallback is true when the artifact is PNG because the requested format failed
	Fallback bool
}

// IsHandle reports whether the artifact is already in storage
func (a *Artifact) IsHandle() bool {
	return a.Path != ""
}

// SaveResult describes where a saved artifact ended up
type SaveResult struct {
	// Path is the store-relative path; empty after a successful sink upload
	Path string

	// URL is the public URL when a sink accepted the upload
	URL string
}

// Uploaded reports whether the artifact lives in a remote sink
func (r SaveResult) Uploaded() bool {
	return r.URL != ""
}

// Link returns the string an editor embeds
func (r SaveResult) Link() string {
	if r.URL != "" {
		return r.URL
	}
	return r.Path
}
