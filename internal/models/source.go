package models

// Status records whether a source went through the primary path or a fallback.
type Status string

const (
	StatusOk       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

type SourceRequest struct {
	URL string
}

// Source is one fetched-and-processed input URL. The fetcher fills the
// URL, text, title and image fields; the summarizer fills Summary and Status.
type Source struct {
	RequestedURL string
	CanonicalURL string
	Title        string
	CleanedText  string
	Images       []ImageRef
	Summary      string
	Status       Status
}

// ImageRef is an image found inside a fetched page. Width and Height are 0
// when the page gave no size hint.
type ImageRef struct {
	URL    string
	Width  int
	Height int
	Alt    string
}

// ImageCandidate is an image returned by the external image search.
type ImageCandidate struct {
	ThumbnailURL string `json:"thumbnail"`
	FullURL      string `json:"link"`
	Title        string `json:"title"`
	SourceURL    string `json:"source_url"` // page the image appears on
}

// PoolImage is an entry of the image manifest handed to the synthesizer.
type PoolImage struct {
	URL         string
	Description string
	SourceIndex int // -1 for search candidates
}
