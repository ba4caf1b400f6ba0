package scraper

import (
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/xhad/linkpress/internal/models"
)

// ImagePolicy decides which page images are worth keeping.
type ImagePolicy struct {
	MinWidth     int
	MinHeight    int
	MaxImages    int
	DenyKeywords []string
}

func DefaultImagePolicy() ImagePolicy {
	return ImagePolicy{
		MinWidth:     150,
		MinHeight:    150,
		MaxImages:    12,
		DenyKeywords: DefaultDenyKeywords(),
	}
}

// DefaultDenyKeywords matches decorative assets such as logos, icons,
// avatars and tracking pixels.
func DefaultDenyKeywords() []string {
	return []string{
		"logo", "icon", "avatar", "pixel", "sprite", "badge", "button", "share",
		"social", "tracker", "tracking", "spacer", "placeholder", "emoji",
		"gravatar", "1x1",
	}
}

var sizeHint = regexp.MustCompile(`(?:^|[^0-9])(\d{2,4})x(\d{2,4})(?:[^0-9]|$)`)

// FilterImages drops duplicates, images known to be smaller than the
// policy minimums and images whose URL or alt text contains a deny keyword.
// Unknown dimensions are not held against an image. Input order is kept and
// the result is capped at MaxImages.
func FilterImages(images []models.ImageRef, policy ImagePolicy) []models.ImageRef {
	keywords := policy.DenyKeywords
	if len(keywords) == 0 {
		keywords = DefaultDenyKeywords()
	}

	kept := make([]models.ImageRef, 0, len(images))
	seen := make(map[string]struct{})
	for _, img := range images {
		if policy.MaxImages > 0 && len(kept) >= policy.MaxImages {
			break
		}
		if _, dup := seen[img.URL]; dup || img.URL == "" {
			continue
		}

		width, height := approximateSize(img)
		if (width > 0 && width < policy.MinWidth) || (height > 0 && height < policy.MinHeight) {
			continue
		}
		if denied(img, keywords) {
			continue
		}

		seen[img.URL] = struct{}{}
		kept = append(kept, img)
	}
	return kept
}

// approximateSize fills unknown dimensions from a WxH hint in the file name,
// e.g. hero-1200x630.jpg.
func approximateSize(img models.ImageRef) (int, int) {
	width, height := img.Width, img.Height
	if width > 0 && height > 0 {
		return width, height
	}

	name := img.URL
	if u, err := url.Parse(img.URL); err == nil {
		name = path.Base(u.Path)
	}
	m := sizeHint.FindStringSubmatch(strings.ToLower(name))
	if m == nil {
		return width, height
	}
	if width == 0 {
		width, _ = strconv.Atoi(m[1])
	}
	if height == 0 {
		height, _ = strconv.Atoi(m[2])
	}
	return width, height
}

func denied(img models.ImageRef, keywords []string) bool {
	haystack := strings.ToLower(img.URL + " " + img.Alt)
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}
