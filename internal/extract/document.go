package extract

// ImageDocument is one image occurrence found on a crawled page. It is the
// single concrete shape crossing the extractor boundary; everything
// downstream (embedding, indexing, search) works off this struct and never
// branches on input shape.
type ImageDocument struct {
	// Text is the embeddable description, formatted as
	// "Alt: … | Title: … | Class: … | Context: …" and length-capped.
	Text string `json:"text"`

	ImgURL    string `json:"img_url"` // always absolute
	ImgFormat string `json:"img_format"`
	AltText   string `json:"alt_text"`
	Title     string `json:"title"`
	Class     string `json:"class"`
	TagType   string `json:"tag_type"` // "img" or "source"
	SourceURL string `json:"source_url"`
	SessionID string `json:"session_id"`
}
