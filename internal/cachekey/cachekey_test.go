package cachekey_test

import (
	"strings"
	"testing"

	"github.com/Amund211/deckcache/internal/cachekey"
	"github.com/stretchr/testify/require"
)

func TestFromRequest(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		url  string
		body string
		want string
	}{
		{
			name: "no body",
			url:  "/api/decks",
			body: "",
			want: "/api/decks",
		},
		{
			name: "whitespace body",
			url:  "/api/decks",
			body: "  \n",
			want: "/api/decks",
		},
		{
			name: "empty object",
			url:  "/api/decks",
			body: "{}",
			want: "/api/decks",
		},
		{
			name: "sorted params",
			url:  "/api/cards/search",
			body: `{"q":"lightning bolt","page":2,"exact":false}`,
			want: "/api/cards/search?exact=false&page=2&q=lightning%20bolt",
		},
		{
			name: "nested values are json encoded",
			url:  "/api/collection",
			body: `{"filter":{"set":"lea","colors":["R","G"]},"owner":null}`,
			want: "/api/collection?filter=%7B%22colors%22%3A%5B%22R%22%2C%22G%22%5D%2C%22set%22%3A%22lea%22%7D&owner=null",
		},
		{
			name: "numbers use shortest form",
			url:  "/api/trades",
			body: `{"min":1.50,"max":1e3}`,
			want: "/api/trades?max=1000&min=1.5",
		},
		{
			name: "unreserved characters are kept",
			url:  "/api/cards/search",
			body: `{"q":"Jace's (alt) art!*"}`,
			want: "/api/cards/search?q=Jace's%20(alt)%20art!*",
		},
		{
			name: "non-object body",
			url:  "/api/decks/bulk",
			body: `[1,2]`,
			want: "/api/decks/bulk?body=%5B1%2C2%5D",
		},
		{
			name: "invalid json body",
			url:  "/api/decks",
			body: `name=foo`,
			want: "/api/decks?body=name%3Dfoo",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, c.want, cachekey.FromRequest(c.url, []byte(c.body)))
		})
	}
}

func TestFromRequestIsOrderIndependent(t *testing.T) {
	t.Parallel()

	a := cachekey.FromRequest("/api/pods", []byte(`{"b":1,"a":"x","c":true}`))
	b := cachekey.FromRequest("/api/pods", []byte(`{"c":true,"a":"x","b":1}`))
	require.Equal(t, a, b)

	other := cachekey.FromRequest("/api/pods", []byte(`{"c":false,"a":"x","b":1}`))
	require.NotEqual(t, a, other)
}

func TestFromParams(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/api/decks", cachekey.FromParams("/api/decks", nil))
	require.Equal(t, "/api/decks?id=7&name=Burn", cachekey.FromParams("/api/decks", map[string]any{
		"name": "Burn",
		"id":   7,
	}))
}

func TestForCaller(t *testing.T) {
	t.Parallel()

	const key = "https://api.example.com/api/collection"

	require.Equal(t, key, cachekey.ForCaller(key, ""))

	alice := cachekey.ForCaller(key, "Bearer alice")
	bob := cachekey.ForCaller(key, "Bearer bob")
	require.NotEqual(t, alice, bob)
	require.NotEqual(t, key, alice)
	require.True(t, strings.HasPrefix(alice, key+"#caller="))
	require.NotContains(t, alice, "alice")

	require.Equal(t, alice, cachekey.ForCaller(key, "Bearer alice"))
}
