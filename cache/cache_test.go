package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testJobInfo struct {
	CallbackURL string
}

func TestStoreAndRetrieve(t *testing.T) {
	c := New[testJobInfo]()
	c.Store(
		"video-1",
		testJobInfo{
			CallbackURL: "http://some-callback-url.com",
		},
	)
	require.Equal(t, "http://some-callback-url.com", c.Get("video-1").CallbackURL)
}

func TestStoreAndRemove(t *testing.T) {
	c := New[testJobInfo]()
	c.Store(
		"video-1",
		testJobInfo{
			CallbackURL: "http://some-callback-url.com",
		},
	)
	require.Equal(t, "http://some-callback-url.com", c.Get("video-1").CallbackURL)

	c.Remove("request-id", "video-1")
	require.Equal(t, "", c.Get("video-1").CallbackURL)
}

func TestLen(t *testing.T) {
	c := New[testJobInfo]()
	require.Equal(t, 0, c.Len())
	c.Store("video-1", testJobInfo{})
	c.Store("video-2", testJobInfo{})
	require.Equal(t, 2, c.Len())
	c.Remove("request-id", "video-1")
	require.Equal(t, 1, c.Len())
}

func TestLockerSerializesSameKey(t *testing.T) {
	l := NewLocker()
	var counter int
	var wg sync.WaitGroup
	const n = 50
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			unlock := l.Lock("video-1")
			defer unlock()
			tmp := counter
			tmp++
			counter = tmp
		}()
	}
	wg.Wait()
	require.Equal(t, n, counter)
}

func TestLockerDifferentKeysDontContend(t *testing.T) {
	l := NewLocker()
	unlockA := l.Lock("video-a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := l.Lock("video-b")
		defer unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on video-b blocked by unrelated lock on video-a")
	}
}
