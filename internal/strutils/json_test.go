package strutils_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Amund211/deckcache/internal/strutils"
)

func TestSameJSON(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		a    string
		b    string
		want bool
	}{
		{
			name: "identical",
			a:    `{"name":"Burn","cards":60}`,
			b:    `{"name":"Burn","cards":60}`,
			want: true,
		},
		{
			name: "formatting and key order",
			a:    `{"name":"Burn","cards":60}`,
			b: `{
				"cards": 60,
				"name":  "Burn"
			}`,
			want: true,
		},
		{
			name: "nested change",
			a:    `{"deck":{"cards":[{"id":1,"qty":4}]}}`,
			b:    `{"deck":{"cards":[{"id":1,"qty":3}]}}`,
			want: false,
		},
		{
			name: "list order matters",
			a:    `[1,2,3]`,
			b:    `[3,2,1]`,
			want: false,
		},
		{
			name: "large ids beyond float precision",
			a:    `{"id":9007199254740993}`,
			b:    `{"id":9007199254740992}`,
			want: false,
		},
		{
			name: "null and missing key",
			a:    `{"owner":null}`,
			b:    `{}`,
			want: false,
		},
		{
			name: "null documents",
			a:    `null`,
			b:    ` null `,
			want: true,
		},
		{
			name: "empty",
			a:    ``,
			b:    ``,
			want: false,
		},
		{
			name: "empty and null",
			a:    ``,
			b:    `null`,
			want: false,
		},
		{
			name: "invalid",
			a:    `{"name":`,
			b:    `{"name":"Burn"}`,
			want: false,
		},
		{
			name: "trailing data",
			a:    `{"name":"Burn"} {}`,
			b:    `{"name":"Burn"}`,
			want: false,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, c.want, strutils.SameJSON([]byte(c.a), []byte(c.b)))
			require.Equal(t, c.want, strutils.SameJSON([]byte(c.b), []byte(c.a)))
		})
	}
}
