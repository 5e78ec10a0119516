package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "company:1000|trial-balance|2026-01-31", Key("1000", "trial-balance", "2026-01-31"))
	assert.Equal(t, "company:1000|", Key("1000"))
	assert.Contains(t, Key("1000", "pl"), CompanyPrefix("1000"))
}

func TestInvalidatePrefixIsCompanyScoped(t *testing.T) {
	s, err := New(16)
	require.NoError(t, err)

	s.Set(Key("1000", "tb"), 1)
	s.Set(Key("1000", "pl", "2026"), 2)
	s.Set(Key("10000", "tb"), 3)
	s.Set(Key("2000", "tb"), 4)

	assert.Equal(t, 2, s.InvalidatePrefix(CompanyPrefix("1000")))

	_, ok := s.Get(Key("1000", "tb"))
	assert.False(t, ok)
	v, ok := s.Get(Key("10000", "tb"))
	assert.True(t, ok, "company 10000 must not share the 1000 prefix")
	assert.Equal(t, 3, v)
	assert.Equal(t, 2, s.Len())
}

func TestEviction(t *testing.T) {
	s, err := New(2)
	require.NoError(t, err)
	s.Set("a", 1)
	s.Set("b", 2)
	s.Get("a")
	s.Set("c", 3)

	_, ok := s.Get("b")
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok = s.Get("a")
	assert.True(t, ok)
}

func TestNewRejectsBadSize(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)
}

func TestFetch(t *testing.T) {
	s, err := New(4)
	require.NoError(t, err)

	calls := 0
	load := func() (string, error) {
		calls++
		return "fresh", nil
	}

	v, err := Fetch(s, "k", load)
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
	v, err = Fetch(s, "k", load)
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
	assert.Equal(t, 1, calls)

	_, err = Fetch(s, "bad", func() (string, error) { return "", errors.New("boom") })
	assert.Error(t, err)
	_, ok := s.Get("bad")
	assert.False(t, ok, "errors are not cached")

	v, err = Fetch[string](nil, "k", load)
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
	assert.Equal(t, 2, calls)
}

func TestFetchDropsResultLoadedAcrossInvalidation(t *testing.T) {
	s, err := New(8)
	require.NoError(t, err)
	key := Key("1000", "tb", "2026-03-31")

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan string)
	go func() {
		v, err := Fetch(s, key, func() (string, error) {
			close(started)
			<-release
			return "before-post", nil
		})
		assert.NoError(t, err)
		done <- v
	}()

	<-started
	s.InvalidatePrefix(CompanyPrefix("1000"))
	close(release)
	select {
	case v := <-done:
		assert.Equal(t, "before-post", v, "the caller still gets its own read")
	case <-time.After(5 * time.Second):
		t.Fatal("Fetch did not return")
	}

	_, ok := s.Get(key)
	assert.False(t, ok, "a read that overlapped a write is not cached")

	v, err := Fetch(s, key, func() (string, error) { return "after-post", nil })
	require.NoError(t, err)
	assert.Equal(t, "after-post", v)
	cached, ok := s.Get(key)
	require.True(t, ok)
	assert.Equal(t, "after-post", cached)
}

func TestFetchIgnoresOtherCompanyInvalidation(t *testing.T) {
	s, err := New(8)
	require.NoError(t, err)
	key := Key("1000", "pl")

	_, err = Fetch(s, key, func() (int, error) {
		s.InvalidatePrefix(CompanyPrefix("2000"))
		return 7, nil
	})
	require.NoError(t, err)
	v, ok := s.Get(key)
	require.True(t, ok)
	assert.Equal(t, 7, v)

	_, err = Fetch(s, Key("1000", "bs"), func() (int, error) {
		s.InvalidatePrefix("company:")
		return 8, nil
	})
	require.NoError(t, err)
	_, ok = s.Get(Key("1000", "bs"))
	assert.False(t, ok, "an unscoped invalidation covers every company")
}

func TestCompanyScope(t *testing.T) {
	assert.Equal(t, "company:1000|", companyScope(Key("1000", "tb")))
	assert.Equal(t, "company:1000|", companyScope(CompanyPrefix("1000")))
	assert.Equal(t, "", companyScope("company:"))
	assert.Equal(t, "", companyScope("other|key"))
}
