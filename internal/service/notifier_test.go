package service

import (
	"sync"
	"testing"
	"testing/synctest"

	"github.com/stretchr/testify/require"
)

func TestNotifierDropsWhenFull(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		release := make(chan struct{})
		var mu sync.Mutex
		var got []string
		n := newNotifier(func(msg string) {
			if msg == "1" {
				<-release
			}
			mu.Lock()
			got = append(got, msg)
			mu.Unlock()
		}, 2)

		n.notify(t.Context(), "1")
		synctest.Wait()
		for _, msg := range []string{"2", "3", "4", "5"} {
			n.notify(t.Context(), msg)
		}
		close(release)
		n.wait()

		require.Equal(t, []string{"1", "2", "3"}, got)
	})
}

func TestNotifierRecoversPanic(t *testing.T) {
	t.Parallel()
	var got []string
	n := newNotifier(func(msg string) {
		if msg == "panic" {
			panic(msg)
		}
		got = append(got, msg)
	}, 0)
	n.notify(t.Context(), "panic")
	n.notify(t.Context(), "ok")
	n.wait()
	require.Equal(t, []string{"ok"}, got)
}
