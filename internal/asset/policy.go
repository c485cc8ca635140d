// Package asset decides whether an uploaded image may be stored.
// Validation is pure: it never touches the filesystem or the database.
package asset

import (
	"errors"
	"path/filepath"
	"strings"
)

// Defaults applied when a Policy field is left zero.
const (
	DefaultMaxBytes         int64 = 5_000_000
	DefaultSizeLimitMessage       = "File size exceeds maximum limit"
)

// DefaultExtensions is the allow-set used when none is configured.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".gif"}

var (
	// ErrUnsupportedType is returned when the upload's extension is not allowed.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrTooLarge is returned when the upload exceeds Policy.MaxBytes.
	ErrTooLarge = errors.New("file too large")
)

// RejectError carries the user-facing message for a rejected upload.
// Use errors.Is against ErrUnsupportedType or ErrTooLarge to tell the cases apart.
type RejectError struct {
	Kind    error
	Message string
}

func (e *RejectError) Error() string { return e.Message }

func (e *RejectError) Unwrap() error { return e.Kind }

// Policy holds the size and type limits for uploads.
type Policy struct {
	MaxBytes          int64
	AllowedExtensions []string // lower-case, leading dot
	SizeLimitMessage  string
}

// DefaultPolicy returns the stock 5 MB image policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxBytes:          DefaultMaxBytes,
		AllowedExtensions: append([]string(nil), DefaultExtensions...),
		SizeLimitMessage:  DefaultSizeLimitMessage,
	}
}

// Normalize fills zero fields with defaults and lower-cases the allow-set.
func (p Policy) Normalize() Policy {
	out := Policy{MaxBytes: p.MaxBytes, SizeLimitMessage: p.SizeLimitMessage}
	if out.MaxBytes <= 0 {
		out.MaxBytes = DefaultMaxBytes
	}
	if strings.TrimSpace(out.SizeLimitMessage) == "" {
		out.SizeLimitMessage = DefaultSizeLimitMessage
	}
	for _, ext := range p.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out.AllowedExtensions = append(out.AllowedExtensions, ext)
	}
	if len(out.AllowedExtensions) == 0 {
		out.AllowedExtensions = append([]string(nil), DefaultExtensions...)
	}
	return out
}

// Allows reports whether ext (any case) is in the allow-set.
func (p Policy) Allows(ext string) bool {
	ext = strings.ToLower(ext)
	for _, allowed := range p.Normalize().AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// Upload is a candidate file as received from the client.
type Upload struct {
	Filename string // declared original name
	Data     []byte
}

// Size returns the raw byte length of the upload.
func (u Upload) Size() int64 { return int64(len(u.Data)) }

// Extension returns the lower-cased extension of the declared name,
// including the leading dot, or "" when there is none.
func (u Upload) Extension() string {
	base := filepath.Base(strings.ReplaceAll(u.Filename, `\`, "/"))
	i := strings.LastIndexByte(base, '.')
	if i <= 0 {
		return ""
	}
	return strings.ToLower(base[i:])
}

// Validate checks the upload against the policy and returns the normalized
// extension to store it under. The type check runs before the size check.
func Validate(u Upload, p Policy) (string, error) {
	p = p.Normalize()

	ext := u.Extension()
	if !p.Allows(ext) {
		return "", &RejectError{
			Kind:    ErrUnsupportedType,
			Message: "Invalid file type. Allowed types: " + strings.Join(p.AllowedExtensions, ", "),
		}
	}

	if u.Size() > p.MaxBytes {
		return "", &RejectError{Kind: ErrTooLarge, Message: p.SizeLimitMessage}
	}

	return ext, nil
}
