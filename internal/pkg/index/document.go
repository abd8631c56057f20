package index

// Source identifies the media a transcript belongs to
type Source struct {
	Account   string
	Container string
	Blob      string
	VideoID   string
}

// Document is one searchable phrase of a video
type Document struct {
	ID        string `json:"id"`
	Account   string `json:"account"`
	Container string `json:"container"`
	Blob      string `json:"blob"`
	VideoID   string `json:"videoId"`
	Index     int    `json:"index"`
	Phrase    string `json:"phrase"`
	Offset    int64  `json:"offset"`
}
