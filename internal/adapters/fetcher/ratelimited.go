package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Amund211/deckcache/internal/domain"
	"github.com/Amund211/deckcache/internal/ratelimiting"
)

type RateLimited struct {
	fetcher          Fetcher
	limiter          *ratelimiting.WindowLimiter
	maxOperationTime time.Duration
}

func NewRateLimited(fetcher Fetcher, limiter *ratelimiting.WindowLimiter, maxOperationTime time.Duration) *RateLimited {
	return &RateLimited{
		fetcher:          fetcher,
		limiter:          limiter,
		maxOperationTime: maxOperationTime,
	}
}

func (f *RateLimited) Fetch(ctx context.Context, url string, request domain.Request) (json.RawMessage, error) {
	var data json.RawMessage
	err := f.limiter.Do(ctx, f.maxOperationTime, func() error {
		var err error
		data, err = f.fetcher.Fetch(ctx, url, request)
		return err
	})
	if errors.Is(err, ratelimiting.ErrWouldExceedDeadline) {
		return nil, fmt.Errorf("%w: %w", domain.ErrTemporarilyUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}
