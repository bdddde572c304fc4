package swr_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Amund211/deckcache/internal/domain"
	"github.com/Amund211/deckcache/internal/swr"
)

func TestNewPolicy(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		policy := swr.NewPolicy()
		require.Equal(t, 5*time.Minute, policy.StaleTime)
		require.Equal(t, 24*time.Hour, policy.MaxAge)
		require.Equal(t, 2*time.Second, policy.DedupingInterval)
		require.True(t, policy.RevalidateOnFocus)
		require.Nil(t, policy.OnError)
	})

	t.Run("options override defaults in order", func(t *testing.T) {
		t.Parallel()

		called := false
		policy := swr.NewPolicy(
			swr.WithResourceKind(domain.ResourceCards),
			swr.WithStaleTime(time.Minute),
			swr.WithDedupingInterval(0),
			swr.WithRevalidateOnFocus(false),
			swr.WithOnError(func(key string, err error) { called = true }),
		)
		require.Equal(t, time.Minute, policy.StaleTime)
		require.Equal(t, 7*24*time.Hour, policy.MaxAge)
		require.Equal(t, time.Duration(0), policy.DedupingInterval)
		require.False(t, policy.RevalidateOnFocus)

		policy.OnError("key", nil)
		require.True(t, called)
	})
}

func TestPolicyFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		kind      domain.ResourceKind
		staleTime time.Duration
		maxAge    time.Duration
	}{
		{kind: domain.ResourceCards, staleTime: time.Hour, maxAge: 7 * 24 * time.Hour},
		{kind: domain.ResourceDecks, staleTime: 5 * time.Minute, maxAge: 24 * time.Hour},
		{kind: domain.ResourcePods, staleTime: 5 * time.Minute, maxAge: 24 * time.Hour},
		{kind: domain.ResourceCollection, staleTime: 15 * time.Minute, maxAge: 3 * 24 * time.Hour},
		{kind: domain.ResourceTrades, staleTime: 30 * time.Second, maxAge: 15 * time.Minute},
		{kind: domain.ResourceDefault, staleTime: 5 * time.Minute, maxAge: 24 * time.Hour},
		{kind: "unknown", staleTime: 5 * time.Minute, maxAge: 24 * time.Hour},
	}

	for _, c := range cases {
		t.Run(string(c.kind), func(t *testing.T) {
			t.Parallel()

			policy := swr.PolicyFor(c.kind)
			require.Equal(t, c.staleTime, policy.StaleTime)
			require.Equal(t, c.maxAge, policy.MaxAge)
			require.Equal(t, swr.DefaultDedupingInterval, policy.DedupingInterval)
			require.True(t, policy.RevalidateOnFocus)
		})
	}
}
