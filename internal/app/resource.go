package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Amund211/deckcache/internal/domain"
	"github.com/Amund211/deckcache/internal/logging"
	"github.com/Amund211/deckcache/internal/swr"
)

type GetResource func(ctx context.Context, path string, request domain.Request) (domain.Resource, error)

func readHandle(h *swr.Handle[json.RawMessage], kind domain.ResourceKind) (domain.Resource, error) {
	data, ok := h.Data().Get()
	err, _ := h.Err().Get()

	if !ok {
		if err == nil {
			err = fmt.Errorf("no data for %s", h.Key())
		}
		return domain.Resource{}, err
	}

	return domain.Resource{
		CacheKey: h.Key(),
		Kind:     kind,
		Data:     data,
		Err:      err,
	}, nil
}

// BuildGetResource reads path from the upstream at baseURL through the cache
//
// The returned resource may carry an error together with data when a
// revalidation failed and cached data is served instead.
func BuildGetResource(client *swr.Client, baseURL string) GetResource {
	return func(ctx context.Context, path string, request domain.Request) (domain.Resource, error) {
		kind, err := ParseResourcePath(path)
		if err != nil {
			return domain.Resource{}, err
		}

		ctx = logging.AddMetaToContext(ctx, slog.String("resourceKind", string(kind)))

		h := swr.Use[json.RawMessage](ctx, client, baseURL+path, request, swr.WithResourceKind(kind))
		defer h.Close()

		resource, err := readHandle(h, kind)
		if err != nil {
			// NOTE: Fetcher implementations handle their own error reporting
			return domain.Resource{}, fmt.Errorf("could not get resource: %w", err)
		}

		return resource, nil
	}
}

type MutateResource func(ctx context.Context, path string, request domain.Request, data json.RawMessage) (domain.Resource, error)

// BuildMutateResource writes data through the cache for path
//
// Empty data forces a refetch of path instead.
func BuildMutateResource(client *swr.Client, baseURL string) MutateResource {
	return func(ctx context.Context, path string, request domain.Request, data json.RawMessage) (domain.Resource, error) {
		kind, err := ParseResourcePath(path)
		if err != nil {
			return domain.Resource{}, err
		}

		if len(data) > 0 && !json.Valid(data) {
			return domain.Resource{}, fmt.Errorf("%w: mutation is not valid json", domain.ErrInvalidBody)
		}
		ctx = logging.AddMetaToContext(ctx, slog.String("resourceKind", string(kind)))

		h := swr.Use[json.RawMessage](ctx, client, baseURL+path, request, swr.WithResourceKind(kind))
		defer h.Close()

		if len(data) > 0 {
			logging.FromContext(ctx).InfoContext(ctx, "Mutating resource", "key", h.Key())
			h.Mutate(ctx, &data)
		} else {
			logging.FromContext(ctx).InfoContext(ctx, "Refetching resource", "key", h.Key())
			h.Mutate(ctx, nil)
		}

		resource, err := readHandle(h, kind)
		if err != nil {
			return domain.Resource{}, fmt.Errorf("could not mutate resource: %w", err)
		}

		return resource, nil
	}
}

type SubscribeResource func(ctx context.Context, path string, request domain.Request) (*swr.Handle[json.RawMessage], domain.ResourceKind, error)

// BuildSubscribeResource opens a long lived handle for path
//
// The caller must Close the handle.
func BuildSubscribeResource(client *swr.Client, baseURL string) SubscribeResource {
	return func(ctx context.Context, path string, request domain.Request) (*swr.Handle[json.RawMessage], domain.ResourceKind, error) {
		kind, err := ParseResourcePath(path)
		if err != nil {
			return nil, "", err
		}

		return swr.Use[json.RawMessage](ctx, client, baseURL+path, request, swr.WithResourceKind(kind)), kind, nil
	}
}

type RevalidateOnFocus func(ctx context.Context) int

func BuildRevalidateOnFocus(client *swr.Client) RevalidateOnFocus {
	return func(ctx context.Context) int {
		started := client.Focus(ctx)
		logging.FromContext(ctx).InfoContext(ctx, "Revalidating on focus", "started", started)
		return started
	}
}
