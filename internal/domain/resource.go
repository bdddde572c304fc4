package domain

import "encoding/json"

type ResourceKind string

const (
	ResourceCards      ResourceKind = "cards"
	ResourceDecks      ResourceKind = "decks"
	ResourcePods       ResourceKind = "pods"
	ResourceCollection ResourceKind = "collection"
	ResourceTrades     ResourceKind = "trades"
	ResourceDefault    ResourceKind = "default"
)

// A resource read through the cache
//
// Err may be set together with Data when a revalidation failed and the
// previously cached value is served instead
type Resource struct {
	CacheKey string
	Kind     ResourceKind
	Data     json.RawMessage
	Err      error
}
