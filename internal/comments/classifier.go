// Package comments splits an issue's comment stream into the parts a report
// card consumes: text history, gallery images and the primary thumbnail.
package comments

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/stgm/visitreport/internal/logging"
	"github.com/stgm/visitreport/pkg/models"
)

const (
	// DefaultGalleryLimit caps the number of gallery thumbnails per card.
	DefaultGalleryLimit = 6

	// MaxGalleryLimit is the largest configurable cap: four rows of three
	// thumbnails fill an A4 card with an empty history.
	MaxGalleryLimit = 12
)

// Comment types as reported by the upstream API.
const (
	TypeText   = "text"
	TypeFile   = "file"
	TypeMarkup = "markup"
)

// Classified is the result of classifying one issue's comments.
type Classified struct {
	// Sorted holds every decoded comment, newest first
	Sorted []models.Comment

	// Text holds the text comments, newest first
	Text []models.Comment

	// Gallery holds deduplicated image URLs, newest first, capped
	Gallery []string

	// Thumbnail is the card's primary image, or "" when there is none
	Thumbnail string
}

// Classify normalizes, sorts and partitions raw comment entries.
// A limit of zero or less uses DefaultGalleryLimit.
func Classify(issue models.Issue, raw []json.RawMessage, limit int) Classified {
	sorted := Normalize(raw)
	SortNewestFirst(sorted)

	return Classified{
		Sorted:    sorted,
		Text:      TextComments(sorted),
		Gallery:   GalleryURLs(sorted, limit),
		Thumbnail: BestThumbnail(issue, sorted),
	}
}

// Normalize decodes raw entries. Entries that are JSON strings are parsed as
// serialized objects; anything that does not decode to an object is dropped.
func Normalize(raw []json.RawMessage) []models.Comment {
	out := make([]models.Comment, 0, len(raw))
	for i, entry := range raw {
		entry = bytes.TrimSpace(entry)
		if len(entry) > 0 && entry[0] == '"' {
			var serialized string
			if err := json.Unmarshal(entry, &serialized); err != nil {
				logging.Debug("dropping undecodable comment", "index", i, "error", err)
				continue
			}
			entry = bytes.TrimSpace([]byte(serialized))
		}
		if len(entry) == 0 || entry[0] != '{' {
			logging.Debug("dropping non-object comment", "index", i)
			continue
		}
		var c models.Comment
		if err := json.Unmarshal(entry, &c); err != nil {
			logging.Debug("dropping malformed comment", "index", i, "error", err)
			continue
		}
		out = append(out, c)
	}
	return out
}

// SortNewestFirst stable-sorts comments by created descending. Comments
// without a parseable timestamp keep their relative order at the end.
func SortNewestFirst(cs []models.Comment) {
	type keyed struct {
		c   models.Comment
		t   time.Time
		has bool
	}
	tmp := make([]keyed, len(cs))
	for i, c := range cs {
		t, ok := c.CreatedAt()
		tmp[i] = keyed{c: c, t: t, has: ok}
	}
	sort.SliceStable(tmp, func(i, j int) bool {
		if tmp[i].has != tmp[j].has {
			return tmp[i].has
		}
		return tmp[i].has && tmp[i].t.After(tmp[j].t)
	})
	for i := range tmp {
		cs[i] = tmp[i].c
	}
}

// TextComments keeps the comments of type text, preserving order.
func TextComments(sorted []models.Comment) []models.Comment {
	var out []models.Comment
	for _, c := range sorted {
		if c.Type == TypeText {
			out = append(out, c)
		}
	}
	return out
}

// isImageFile reports whether a file comment carries an image.
func isImageFile(c models.Comment) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(c.Mimetype)), "image/")
}

// GalleryURLs returns the preview URLs of image-bearing file and markup
// comments, deduplicated in order and capped at limit.
func GalleryURLs(sorted []models.Comment, limit int) []string {
	if limit <= 0 {
		limit = DefaultGalleryLimit
	}
	seen := make(map[string]bool)
	var out []string
	for _, c := range sorted {
		if len(out) >= limit {
			break
		}
		switch c.Type {
		case TypeFile:
			if !isImageFile(c) {
				continue
			}
		case TypeMarkup:
		default:
			continue
		}
		url := c.Preview.MiddleFirst()
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true
		out = append(out, url)
	}
	return out
}

// BestThumbnail picks the card's primary image: the newest image file
// comment, then the newest markup, then the issue's own preview.
func BestThumbnail(issue models.Issue, sorted []models.Comment) string {
	for _, c := range sorted {
		if c.Type == TypeFile && isImageFile(c) {
			if url := c.Preview.SmallFirst(); url != "" {
				return url
			}
		}
	}
	for _, c := range sorted {
		if c.Type == TypeMarkup {
			if url := c.Preview.SmallFirst(); url != "" {
				return url
			}
		}
	}
	return issue.Preview.SmallFirst()
}
