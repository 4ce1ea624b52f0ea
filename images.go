package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	// webp can be decoded but not encoded by the standard registry;
	// encoding goes through chai2010/webp in extract.go.
	_ "golang.org/x/image/webp"
)

// ImageRecord is one uploaded (or derived) image. Blob bytes are kept for
// the whole session; pixels are decoded lazily and cached.
type ImageRecord struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Width      int            `json:"width"`
	Height     int            `json:"height"`
	SizeBytes  int64          `json:"size_bytes"`
	SizeString string         `json:"size"`
	Folder     []*ImageRecord `json:"folder,omitempty"`

	blob       []byte
	decodeOnce sync.Once
	decoded    image.Image
	decodeErr  error
}

// newImageRecord sniffs dimensions and content type from the raw bytes.
func newImageRecord(name string, data []byte) (*ImageRecord, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %q: %w", name, err)
	}
	return &ImageRecord{
		ID:         uuid.NewString(),
		Name:       name,
		Type:       "image/" + format,
		Width:      cfg.Width,
		Height:     cfg.Height,
		SizeBytes:  int64(len(data)),
		SizeString: formatSize(int64(len(data))),
		blob:       data,
	}, nil
}

// Decoded returns the pixel data, decoding the blob on first use. EXIF
// orientation is applied so the editing geometry sees upright pixels.
func (r *ImageRecord) Decoded() (image.Image, error) {
	r.decodeOnce.Do(func() {
		r.decoded, r.decodeErr = imaging.Decode(bytes.NewReader(r.blob), imaging.AutoOrientation(true))
	})
	if r.decodeErr != nil {
		return nil, r.decodeErr
	}
	return r.decoded, nil
}

// Blob returns the original encoded bytes.
func (r *ImageRecord) Blob() []byte {
	return r.blob
}

// File is a named byte payload handed to ReadImages.
type File struct {
	Name string
	Data []byte
}

// Collection holds the session's uploaded images and, per image, the folder
// of crops derived from it.
type Collection struct {
	mu     sync.Mutex
	images []*ImageRecord
	active string
}

// NewCollection creates an empty collection.
func NewCollection() *Collection {
	return &Collection{}
}

// ReadImages decodes and registers a batch of uploaded files, bounded by the
// CPU count. Files that are not decodable images are skipped with a warning
// rather than failing the batch. The first image ever added becomes active.
// Returns the records that were added, in input order.
func (c *Collection) ReadImages(ctx context.Context, files []File) ([]*ImageRecord, error) {
	if len(files) == 0 {
		return nil, nil
	}
	records := make([]*ImageRecord, len(files))
	pooler := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(runtime.NumCPU())
	for i, f := range files {
		pooler.Go(func(ctx context.Context) error {
			rec, err := newImageRecord(f.Name, f.Data)
			if err != nil {
				log.Ctx(ctx).Warn().Err(err).Str("filename", f.Name).Msg("skipping file")
				return nil
			}
			records[i] = rec
			return nil
		})
	}
	if err := pooler.Wait(); err != nil {
		return nil, err
	}

	var added []*ImageRecord
	for _, rec := range records {
		if rec != nil {
			added = append(added, rec)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.images = append(c.images, added...)
	if c.active == "" && len(c.images) > 0 {
		c.active = c.images[0].ID
	}
	return added, nil
}

// Get looks an image up by ID.
func (c *Collection) Get(id string) (*ImageRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.findLocked(id)
}

func (c *Collection) findLocked(id string) (*ImageRecord, bool) {
	for _, rec := range c.images {
		if rec.ID == id {
			return rec, true
		}
	}
	return nil, false
}

// Active returns the currently active image, or nil.
func (c *Collection) Active() *ImageRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, _ := c.findLocked(c.active)
	return rec
}

// SetActive marks an image as the one being edited.
func (c *Collection) SetActive(id string) (*ImageRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.findLocked(id)
	if !ok {
		return nil, fmt.Errorf("no image with id %q", id)
	}
	c.active = id
	return rec, nil
}

// List returns a snapshot of the collection.
func (c *Collection) List() []*ImageRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*ImageRecord(nil), c.images...)
}

// Len returns the number of top-level images.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.images)
}

// AddFolderImage attaches a derived crop to its parent image's folder.
func (c *Collection) AddFolderImage(parentID string, rec *ImageRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	parent, ok := c.findLocked(parentID)
	if !ok {
		return fmt.Errorf("no image with id %q", parentID)
	}
	parent.Folder = append(parent.Folder, rec)
	return nil
}

// derivedName builds a filename for a crop of the named image, keeping the
// extension the content type implies.
func derivedName(parentName, contentType string) string {
	base := strings.TrimSuffix(parentName, filepath.Ext(parentName))
	ext := extensionFor(contentType)
	return fmt.Sprintf("%s-crop-%s%s", base, uuid.NewString()[:8], ext)
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	case "image/tiff":
		return ".tiff"
	default:
		return ".png"
	}
}

func formatSize(n int64) string {
	switch {
	case n < 1000:
		return fmt.Sprintf("%d B", n)
	case n < 1000*1000:
		return fmt.Sprintf("%.1f kB", float64(n)/1000)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/(1000*1000))
	}
}
