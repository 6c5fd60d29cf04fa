package paperless

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// listResponse is one page from a paginated collection listing.
type listResponse struct {
	Next    *string `json:"next"`
	Results []struct {
		Name string `json:"name"`
		ID   int    `json:"id"`
	} `json:"results"`
}

// ReferenceCache resolves free-text names (tags, correspondents) to
// remote IDs, creating entities on demand. The server offers no
// get-or-create, so the whole collection is preloaded once and the
// cache is the single authority for the rest of the run. Names are
// case-sensitive as stored; callers normalize before lookup.
type ReferenceCache struct {
	client        *Client
	collectionURL string
	ids           map[string]int
	// names preserves insertion order so substring matching in Find
	// is deterministic.
	names []string
}

// NewReferenceCache builds a cache over the given collection
// ("tags", "correspondents"), eagerly paginating through every
// existing entity.
func NewReferenceCache(ctx context.Context, client *Client, collection string) (*ReferenceCache, error) {
	c := &ReferenceCache{
		client:        client,
		collectionURL: client.CollectionURL(collection),
		ids:           make(map[string]int),
	}

	pageURL := c.collectionURL
	for {
		var page listResponse
		if err := client.getJSON(ctx, pageURL, &page); err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", collection, err)
		}
		for _, entity := range page.Results {
			c.store(entity.Name, entity.ID)
		}
		if page.Next == nil || *page.Next == "" {
			break
		}
		pageURL = client.normalizeLink(*page.Next)
	}

	slog.Debug("Reference cache loaded", "collection", collection, "entities", len(c.ids))
	return c, nil
}

// Get resolves a name to its ID, creating the entity remotely if it is
// not cached. At most one creation call is issued per name per run.
func (c *ReferenceCache) Get(ctx context.Context, name string) (int, error) {
	if id, ok := c.ids[name]; ok {
		return id, nil
	}
	if err := c.put(ctx, name); err != nil {
		return 0, err
	}
	return c.ids[name], nil
}

// Find returns the ID of the first cached entity (in insertion order)
// whose name is a substring of text. With no substring match it falls
// back to Get, which exact-matches or creates.
func (c *ReferenceCache) Find(ctx context.Context, text string) (int, error) {
	for _, name := range c.names {
		if strings.Contains(text, name) {
			return c.ids[name], nil
		}
	}
	return c.Get(ctx, text)
}

// Len returns the number of cached entities.
func (c *ReferenceCache) Len() int {
	return len(c.ids)
}

// put creates the entity remotely and caches the assigned ID.
func (c *ReferenceCache) put(ctx context.Context, name string) error {
	var created struct {
		ID int `json:"id"`
	}
	payload := map[string]string{"name": name}
	if err := c.client.postJSON(ctx, c.collectionURL, payload, &created); err != nil {
		return fmt.Errorf("failed to create %q: %w", name, err)
	}
	c.store(name, created.ID)
	slog.Debug("Created reference entity", "name", name, "id", created.ID)
	return nil
}

func (c *ReferenceCache) store(name string, id int) {
	if _, ok := c.ids[name]; !ok {
		c.names = append(c.names, name)
	}
	c.ids[name] = id
}
