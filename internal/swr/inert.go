package swr

import (
	"context"
	"encoding/json"
)

// inert is used where nothing may be fetched or persisted
type inert struct{}

func (inert) open(ctx context.Context, r *reader) {}

func (inert) mutate(ctx context.Context, r *reader, data json.RawMessage) {}

func (inert) refetch(ctx context.Context, r *reader) {}

func (inert) close(r *reader) {}

func (inert) focus(ctx context.Context) int {
	return 0
}
