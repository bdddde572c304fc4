package swr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValue(t *testing.T) {
	t.Parallel()

	t.Run("unset", func(t *testing.T) {
		t.Parallel()

		v := newValue[int]()
		_, ok := v.Get()
		require.False(t, ok)

		ch, unsubscribe := v.Subscribe()
		defer unsubscribe()
		select {
		case <-ch:
			require.Fail(t, "unset value should not be delivered")
		default:
		}

		v.store(3)
		require.Equal(t, 3, <-ch)
	})

	t.Run("subscriber receives current value first", func(t *testing.T) {
		t.Parallel()

		v := newValueOf("initial")
		ch, unsubscribe := v.Subscribe()
		defer unsubscribe()

		require.Equal(t, "initial", <-ch)

		v.store("next")
		require.Equal(t, "next", <-ch)

		value, ok := v.Get()
		require.True(t, ok)
		require.Equal(t, "next", value)
	})

	t.Run("slow subscriber sees the latest value", func(t *testing.T) {
		t.Parallel()

		v := newValue[int]()
		ch, unsubscribe := v.Subscribe()
		defer unsubscribe()

		for i := range 10 {
			v.store(i)
		}

		require.Equal(t, 9, <-ch)
		select {
		case value := <-ch:
			require.Failf(t, "unexpected value", "%d", value)
		default:
		}
	})

	t.Run("unsubscribe closes the channel", func(t *testing.T) {
		t.Parallel()

		v := newValue[int]()
		ch, unsubscribe := v.Subscribe()
		unsubscribe()
		unsubscribe()

		_, open := <-ch
		require.False(t, open)

		v.store(1)
	})

	t.Run("close", func(t *testing.T) {
		t.Parallel()

		v := newValueOf(1)
		ch, unsubscribe := v.Subscribe()
		defer unsubscribe()
		require.Equal(t, 1, <-ch)

		v.close()
		_, open := <-ch
		require.False(t, open)

		v.store(2)
		value, _ := v.Get()
		require.Equal(t, 2, value)

		late, lateUnsubscribe := v.Subscribe()
		defer lateUnsubscribe()
		require.Equal(t, 2, <-late)
		_, open = <-late
		require.False(t, open)
	})
}
