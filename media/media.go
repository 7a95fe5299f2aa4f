// Package media normalizes image attachments into embedded base64 parts
// before they are placed into the conversation.
package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/httpkit"
	"github.com/hupe1980/agentloop/logging"
)

// DefaultMaxBytes caps the decoded size of a single image.
const DefaultMaxBytes = 20 << 20

// FetchError reports an image that could not be fetched or decoded. It ends
// the run.
type FetchError struct {
	Index  int    // position in the input list
	URL    string // set for remote images
	Reason string
	Err    error
}

func (e *FetchError) Error() string {
	src := fmt.Sprintf("image %d", e.Index)
	if e.URL != "" {
		src += " (" + e.URL + ")"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", src, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", src, e.Reason)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Options configure a Normalizer.
type Options struct {
	Client   *http.Client
	MaxBytes int64
	Logger   logging.Logger
}

// Normalizer converts image inputs to core.ImagePart values.
type Normalizer struct {
	client   *http.Client
	maxBytes int64
	logger   logging.Logger
}

// New creates a Normalizer.
func New(optFns ...func(o *Options)) *Normalizer {
	opts := Options{MaxBytes: DefaultMaxBytes}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Client == nil {
		opts.Client = httpkit.NewClient()
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	return &Normalizer{client: opts.Client, maxBytes: opts.MaxBytes, logger: logging.OrNoOp(opts.Logger)}
}

type fetched struct {
	data     string
	mimeType string
}

// Normalize converts inputs in order. Accepted sources are data: URIs, raw
// base64 with a mime type, and http(s) URLs; identical URLs are fetched once.
func (n *Normalizer) Normalize(ctx context.Context, inputs []core.ImageInput) ([]core.ImagePart, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	cache := map[string]fetched{}
	parts := make([]core.ImagePart, 0, len(inputs))

	for i, in := range inputs {
		data := strings.TrimSpace(in.Data)

		var (
			part core.ImagePart
			err  error
		)
		switch {
		case in.Source == core.ImageSourceURL || isRemote(data):
			part, err = n.remote(ctx, i, data, in.MimeType, cache)
		case strings.HasPrefix(data, "data:"):
			part, err = n.dataURI(i, data)
		default:
			part, err = n.rawBase64(i, data, in.MimeType)
		}
		if err != nil {
			return nil, err
		}
		part.Description = in.Description
		parts = append(parts, part)
	}

	return parts, nil
}

func isRemote(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func (n *Normalizer) remote(ctx context.Context, idx int, url, declared string, cache map[string]fetched) (core.ImagePart, error) {
	if !isRemote(url) {
		return core.ImagePart{}, &FetchError{Index: idx, URL: url, Reason: "unsupported url scheme"}
	}
	if f, ok := cache[url]; ok {
		return core.ImagePart{Data: f.data, MimeType: f.mimeType}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return core.ImagePart{}, &FetchError{Index: idx, URL: url, Reason: "invalid url", Err: err}
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return core.ImagePart{}, &FetchError{Index: idx, URL: url, Reason: "request failed", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 256)
		return core.ImagePart{}, &FetchError{Index: idx, URL: url, Reason: fmt.Sprintf("unexpected status %d %s", resp.StatusCode, strings.TrimSpace(body))}
	}
	defer httpkit.DrainAndClose(resp.Body, 1024)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, n.maxBytes+1))
	if err != nil {
		return core.ImagePart{}, &FetchError{Index: idx, URL: url, Reason: "reading body", Err: err}
	}
	if int64(len(raw)) > n.maxBytes {
		return core.ImagePart{}, &FetchError{Index: idx, URL: url, Reason: "image exceeds " + humanize.IBytes(uint64(n.maxBytes))}
	}

	mimeType := imageMediaType(resp.Header.Get("Content-Type"))
	if mimeType == "" {
		mimeType = declared
	}
	if mimeType == "" {
		mimeType = imageMediaType(http.DetectContentType(raw))
	}
	if mimeType == "" {
		return core.ImagePart{}, &FetchError{Index: idx, URL: url, Reason: "response is not an image"}
	}

	f := fetched{data: base64.StdEncoding.EncodeToString(raw), mimeType: mimeType}
	cache[url] = f
	n.logger.Debug("media.image.fetched", "url", url, "bytes", len(raw), "size", humanize.IBytes(uint64(len(raw))), "mime_type", mimeType)

	return core.ImagePart{Data: f.data, MimeType: f.mimeType}, nil
}

// dataURI parses data:<mime>;base64,<payload>.
func (n *Normalizer) dataURI(idx int, uri string) (core.ImagePart, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return core.ImagePart{}, &FetchError{Index: idx, Reason: "malformed data uri"}
	}
	mimeType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return core.ImagePart{}, &FetchError{Index: idx, Reason: "data uri must be base64 encoded"}
	}
	return n.rawBase64(idx, payload, mimeType)
}

func (n *Normalizer) rawBase64(idx int, payload, mimeType string) (core.ImagePart, error) {
	mimeType = imageMediaType(mimeType)
	if mimeType == "" {
		return core.ImagePart{}, &FetchError{Index: idx, Reason: "missing or non-image mime type"}
	}
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return core.ImagePart{}, &FetchError{Index: idx, Reason: "invalid base64 data", Err: err}
	}
	if int64(len(decoded)) > n.maxBytes {
		return core.ImagePart{}, &FetchError{Index: idx, Reason: "image exceeds " + humanize.IBytes(uint64(n.maxBytes))}
	}
	return core.ImagePart{Data: payload, MimeType: mimeType}, nil
}

// imageMediaType returns the bare media type of an image/* content type, or "".
func imageMediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mt, "image/") {
		return ""
	}
	return mt
}
