// Package catalog implements the Model Catalog Client (C11): a thin
// normalizing wrapper over the model server's /api/tags endpoint.
package catalog

import (
	"context"
	"strings"

	"github.com/jwvanderstam/wherespace/internal/modelserver"
)

// Tag is a normalized model entry grouped by family.
type Tag struct {
	Name       string // bare name, ":latest" suffix stripped
	FullTag    string // exactly as reported by the model server
	Family     string // "llama", "mistral", "gemma", "qwen", or "other"
	Size       int64
	ModifiedAt string
}

var knownFamilies = []string{"llama", "mistral", "gemma", "qwen"}

type tagsClient interface {
	ListTags(ctx context.Context) ([]modelserver.TagInfo, error)
}

// Client lists and validates model tags.
type Client struct {
	server tagsClient
}

// New constructs a catalog Client backed by server.
func New(server tagsClient) *Client {
	return &Client{server: server}
}

// List returns the normalized, family-grouped catalog.
func (c *Client) List(ctx context.Context) ([]Tag, error) {
	raw, err := c.server.ListTags(ctx)
	if err != nil {
		return nil, err
	}

	tags := make([]Tag, 0, len(raw))
	for _, t := range raw {
		tags = append(tags, Tag{
			Name:       stripLatest(t.Name),
			FullTag:    t.Name,
			Family:     familyOf(t.Name),
			Size:       t.Size,
			ModifiedAt: t.ModifiedAt,
		})
	}
	return tags, nil
}

// Resolve validates a user-supplied model identifier against the catalog,
// accepting either the bare name or the fully qualified ":latest" tag, and
// returns the canonical bare name. ok is false when the identifier is not
// present in either form.
func Resolve(tags []Tag, requested string) (name string, ok bool) {
	bare := stripLatest(requested)
	for _, t := range tags {
		if t.Name == bare || t.FullTag == requested || t.FullTag == bare {
			return t.Name, true
		}
	}
	return "", false
}

// Names extracts the bare names from a tag list, for error responses that
// need to list available_models.
func Names(tags []Tag) []string {
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	return names
}

func stripLatest(tag string) string {
	return strings.TrimSuffix(tag, ":latest")
}

func familyOf(tag string) string {
	lower := strings.ToLower(tag)
	for _, f := range knownFamilies {
		if strings.HasPrefix(lower, f) {
			return f
		}
	}
	return "other"
}
