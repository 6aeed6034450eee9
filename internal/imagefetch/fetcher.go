// Package imagefetch resolves image references (data URIs, HTTP URLs or local
// paths) to local files the PDF engine can embed.
package imagefetch

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/stgm/visitreport/internal/logging"
)

// ErrUnsupportedImage is returned when the image type cannot be embedded.
var ErrUnsupportedImage = errors.New("unsupported image type")

// maxDownloadBytes bounds a single image download.
const maxDownloadBytes = 32 << 20

// HTTPClient is the subset of *http.Client the fetcher needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher resolves image references.
type Fetcher struct {
	client  HTTPClient
	tempDir string
}

// New creates a fetcher. A nil client uses http.DefaultClient; an empty
// tempDir uses os.TempDir().
func New(client HTTPClient, tempDir string) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client, tempDir: tempDir}
}

// Handle is a fetched image. Release must be called once the image has been
// embedded; it is safe to call more than once.
type Handle struct {
	// Path is the local file to embed
	Path string

	// Type is the image type understood by the PDF engine: png, jpg or gif
	Type string

	temp bool
}

// Release deletes the file if the fetcher created it. Deletion failures are
// logged and ignored.
func (h *Handle) Release() {
	if h == nil || !h.temp {
		return
	}
	h.temp = false
	if err := os.Remove(h.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn("failed to remove temporary image", "path", h.Path, "error", err)
	}
}

// Fetch resolves ref. On error no file is left behind.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (*Handle, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return nil, errors.New("empty image reference")
	case strings.HasPrefix(ref, "data:"):
		return f.fromDataURI(ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return f.download(ctx, ref)
	default:
		return f.fromPath(ref)
	}
}

func (f *Fetcher) fromDataURI(ref string) (*Handle, error) {
	header, payload, found := strings.Cut(ref, ",")
	if !found {
		return nil, errors.New("malformed data uri")
	}
	meta := strings.TrimPrefix(header, "data:")
	if !strings.HasSuffix(meta, ";base64") {
		return nil, errors.New("data uri is not base64 encoded")
	}
	mime := strings.TrimSuffix(meta, ";base64")

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode data uri: %w", err)
	}

	imgType := typeFromMIME(mime)
	if imgType == "" {
		imgType = sniffType(data)
	}
	if imgType == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, mime)
	}
	return f.writeTemp(data, imgType)
}

func (f *Fetcher) download(ctx context.Context, url string) (*Handle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid image url: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}

	imgType := sniffType(data)
	if imgType == "" {
		imgType = typeFromMIME(resp.Header.Get("Content-Type"))
	}
	if imgType == "" {
		imgType = typeFromExt(url)
	}
	if imgType == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, resp.Header.Get("Content-Type"))
	}
	return f.writeTemp(data, imgType)
}

func (f *Fetcher) fromPath(path string) (*Handle, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("image not found: %w", err)
	}
	imgType := typeFromExt(path)
	if imgType == "" {
		head := make([]byte, 512)
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open image: %w", err)
		}
		n, _ := io.ReadFull(file, head)
		file.Close()
		imgType = sniffType(head[:n])
	}
	if imgType == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, path)
	}
	return &Handle{Path: path, Type: imgType}, nil
}

func (f *Fetcher) writeTemp(data []byte, imgType string) (*Handle, error) {
	dir := f.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "visitreport-"+uuid.NewString()+"."+imgType)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to write temporary image: %w", err)
	}
	return &Handle{Path: path, Type: imgType, temp: true}, nil
}

func typeFromMIME(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return "jpg"
	case "image/gif":
		return "gif"
	}
	return ""
}

func typeFromExt(ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	switch strings.ToLower(filepath.Ext(ref)) {
	case ".png":
		return "png"
	case ".jpg", ".jpeg":
		return "jpg"
	case ".gif":
		return "gif"
	}
	return ""
}

func sniffType(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	return typeFromMIME(http.DetectContentType(data))
}
