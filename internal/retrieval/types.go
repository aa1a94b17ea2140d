// Package retrieval defines the shared result types produced by the vector
// store's search operation and consumed by the query cache and retriever,
// kept in their own package to avoid an import cycle between those two.
package retrieval

// Hit is one candidate chunk returned by a vector similarity search (§4.1).
type Hit struct {
	FileName       string
	FileType       string
	ContentPreview string
	Content        string
	FileSize       int64
	FilePath       string
	ChunkIndex     int
	Similarity     float64
}
