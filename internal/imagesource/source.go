// Package imagesource turns the image representations accepted from callers into upload-ready bytes.
package imagesource

import (
	"errors"
	"strings"
)

// ErrInvalidFormat is returned when a source cannot be turned into image bytes.
var ErrInvalidFormat = errors.New("invalid image format")

// Kind identifies how a Source carries its image.
type Kind int

// Kind values. KindUnknown is the zero value and never normalizes.
const (
	KindUnknown Kind = iota
	KindBinary
	KindDataURI
	KindURL
)

func (k Kind) String() string {
	switch k {
	case KindBinary:
		return "binary"
	case KindDataURI:
		return "data-uri"
	case KindURL:
		return "url"
	default:
		return "unknown"
	}
}

// Source is a caller supplied image before normalization.
type Source struct {
	Kind Kind
	Name string // original filename, used for the multipart part
	Data []byte // KindBinary payload
	Ref  string // KindDataURI or KindURL string
}

// FromBytes wraps an already-binary upload.
func FromBytes(name string, data []byte) *Source {
	return &Source{Kind: KindBinary, Name: name, Data: data}
}

// FromString classifies a string reference. Strings with the data: scheme are
// data URIs, everything else is treated as a remote URL (object URLs included).
func FromString(s string) *Source {
	s = strings.TrimSpace(s)
	if hasDataScheme(s) {
		return &Source{Kind: KindDataURI, Ref: s}
	}
	return &Source{Kind: KindURL, Ref: s}
}

// Filename returns the name to use for the multipart part.
func (s *Source) Filename(fallback string) string {
	if s != nil && s.Name != "" {
		return s.Name
	}
	return fallback
}

func hasDataScheme(s string) bool {
	return len(s) >= 5 && strings.EqualFold(s[:5], "data:")
}
