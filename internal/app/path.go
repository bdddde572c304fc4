package app

import (
	"fmt"
	"strings"

	"github.com/Amund211/deckcache/internal/domain"
)

const apiPrefix = "/api/"

// ParseResourcePath validates an upstream api path and returns its resource kind
func ParseResourcePath(path string) (domain.ResourceKind, error) {
	if !strings.HasPrefix(path, apiPrefix) {
		return "", fmt.Errorf("%w: must start with %s", domain.ErrInvalidPath, apiPrefix)
	}

	// A fragment is never sent upstream, and '#' separates the caller scope of cache keys
	if strings.Contains(path, "#") {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidPath, path)
	}

	pathOnly, _, _ := strings.Cut(path, "?")
	if strings.Contains(pathOnly, "..") || strings.Contains(pathOnly, "//") || strings.Contains(pathOnly, "\\") {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidPath, path)
	}

	segment, _, _ := strings.Cut(strings.TrimPrefix(pathOnly, apiPrefix), "/")
	switch segment {
	case "":
		return "", fmt.Errorf("%w: missing resource", domain.ErrInvalidPath)
	case "cards", "card":
		return domain.ResourceCards, nil
	case "decks", "deck":
		return domain.ResourceDecks, nil
	case "pods", "pod":
		return domain.ResourcePods, nil
	case "collection", "collections":
		return domain.ResourceCollection, nil
	case "trades", "trade":
		return domain.ResourceTrades, nil
	default:
		return domain.ResourceDefault, nil
	}
}
