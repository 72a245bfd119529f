package imagesource

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kozaktomas/sketch-match/internal/constants"
)

// Normalizer converts a Source into a binary payload.
type Normalizer struct {
	client *http.Client
}

// NewNormalizer creates a normalizer whose remote fetches use the given timeout.
func NewNormalizer(timeout time.Duration) *Normalizer {
	if timeout <= 0 {
		timeout = constants.DefaultImageFetchTimeout
	}
	return &Normalizer{client: &http.Client{Timeout: timeout}}
}

// NewNormalizerWithClient creates a normalizer around an existing HTTP client.
func NewNormalizerWithClient(client *http.Client) *Normalizer {
	return &Normalizer{client: client}
}

// Normalize returns the image bytes carried by src. Binary payloads pass through
// unchanged, data URIs are decoded and remote URLs are fetched.
func (n *Normalizer) Normalize(ctx context.Context, src *Source) ([]byte, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: no image", ErrInvalidFormat)
	}

	switch src.Kind {
	case KindBinary:
		if len(src.Data) == 0 {
			return nil, fmt.Errorf("%w: empty payload", ErrInvalidFormat)
		}
		return src.Data, nil
	case KindDataURI:
		return decodeDataURI(src.Ref)
	case KindURL:
		return n.fetch(ctx, src.Ref)
	default:
		return nil, fmt.Errorf("%w: unsupported source kind %s", ErrInvalidFormat, src.Kind)
	}
}

// decodeDataURI decodes "data:[<mediatype>][;base64],<data>".
func decodeDataURI(s string) ([]byte, error) {
	if !hasDataScheme(s) {
		return nil, fmt.Errorf("%w: not a data URI", ErrInvalidFormat)
	}
	header, payload, ok := strings.Cut(s[len("data:"):], ",")
	if !ok {
		return nil, fmt.Errorf("%w: data URI without payload", ErrInvalidFormat)
	}

	var data []byte
	if strings.HasSuffix(strings.ToLower(header), ";base64") {
		payload = strings.Map(func(r rune) rune {
			if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
				return -1
			}
			return r
		}, payload)
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			decoded, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
			if err != nil {
				return nil, fmt.Errorf("%w: decode base64 payload: %w", ErrInvalidFormat, err)
			}
		}
		data = decoded
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: decode data URI payload: %w", ErrInvalidFormat, err)
		}
		data = []byte(unescaped)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty data URI", ErrInvalidFormat)
	}
	return data, nil
}

func (n *Normalizer) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: unsupported image reference %q", ErrInvalidFormat, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrInvalidFormat, err)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch remote image: %w", ErrInvalidFormat, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetch remote image: status %d", ErrInvalidFormat, resp.StatusCode)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(resp.Body, constants.MaxUploadSize+1)); err != nil {
		return nil, fmt.Errorf("%w: read remote image: %w", ErrInvalidFormat, err)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("%w: remote image is empty", ErrInvalidFormat)
	}
	if buf.Len() > constants.MaxUploadSize {
		return nil, fmt.Errorf("%w: remote image exceeds %d bytes", ErrInvalidFormat, constants.MaxUploadSize)
	}
	return buf.Bytes(), nil
}
