// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/cratescan/pkg/ledger"
)

func outcomeMap(outcomes []Outcome) map[string]string {
	m := make(map[string]string, len(outcomes))
	for _, o := range outcomes {
		if o.Failed() {
			m[o.Item] = o.Err.Message
		} else {
			m[o.Item] = ""
		}
	}
	return m
}

func TestPool_EmptyBatch(t *testing.T) {
	called := false
	pool := NewPool(PoolConfig{Limit: 2})

	outcomes, err := pool.Run(context.Background(), nil, func(context.Context, string) error {
		called = true
		return nil
	})

	require.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.False(t, called)
}

func TestPool_ConcurrencyBound(t *testing.T) {
	for _, tc := range []struct{ items, limit int }{
		{1, 1}, {5, 1}, {20, 3}, {50, 10}, {3, 10},
	} {
		t.Run(fmt.Sprintf("M=%d_N=%d", tc.items, tc.limit), func(t *testing.T) {
			var inFlight, peak int64
			items := make([]string, tc.items)
			for i := range items {
				items[i] = fmt.Sprintf("item-%d", i)
			}

			pool := NewPool(PoolConfig{Limit: tc.limit})
			outcomes, err := pool.Run(context.Background(), items, func(context.Context, string) error {
				n := atomic.AddInt64(&inFlight, 1)
				for {
					p := atomic.LoadInt64(&peak)
					if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt64(&inFlight, -1)
				return nil
			})

			require.NoError(t, err)
			assert.Len(t, outcomes, tc.items)
			assert.LessOrEqual(t, peak, int64(tc.limit))
			assert.GreaterOrEqual(t, peak, int64(1))
		})
	}
}

func TestPool_FailureIsolation(t *testing.T) {
	pool := NewPool(PoolConfig{Limit: 3})

	outcomes, err := pool.Run(context.Background(), []string{"a", "b", "c"}, func(_ context.Context, item string) error {
		if item == "b" {
			return errors.New("exit status 101")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "", "b": "exit status 101", "c": ""}, outcomeMap(outcomes))
	assert.Len(t, Failures(outcomes), 1)
}

func TestPool_PanicBecomesItemFailure(t *testing.T) {
	pool := NewPool(PoolConfig{Limit: 2})

	outcomes, err := pool.Run(context.Background(), []string{"ok", "bad"}, func(_ context.Context, item string) error {
		if item == "bad" {
			panic("index out of range")
		}
		return nil
	})

	require.NoError(t, err)
	got := outcomeMap(outcomes)
	assert.Equal(t, "", got["ok"])
	assert.Equal(t, "panic: index out of range", got["bad"])
}

func TestPool_KeepsTypedItemFailure(t *testing.T) {
	pool := NewPool(PoolConfig{Limit: 1})
	cause := errors.New("no such file")

	outcomes, err := pool.Run(context.Background(), []string{"x"}, func(context.Context, string) error {
		return fmt.Errorf("wrapped: %w", &ItemFailure{Message: "parse manifest: eof", Err: cause})
	})

	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "x", outcomes[0].Err.Item)
	assert.Equal(t, "parse manifest: eof", outcomes[0].Err.Message)
	assert.ErrorIs(t, outcomes[0].Err, cause)
}

func TestPool_OnDoneVisibleAfterRun(t *testing.T) {
	l := ledger.FromCrates([]string{"o/r/x", "o/r/y", "o/r/z"})
	pool := NewPool(PoolConfig{
		Limit: 2,
		OnDone: func(o Outcome) {
			if o.Failed() {
				l.RecordFailure(ledger.MetricExpansion, o.Item, o.Err.Message)
				return
			}
			l.RecordSuccess(ledger.MetricExpansion, o.Item, 1)
		},
	})

	outcomes, err := pool.Run(context.Background(), l.Keys(), func(_ context.Context, item string) error {
		if item == "o/r/y" {
			return errors.New("boom")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, map[string]string{"o/r/x": "", "o/r/y": "boom", "o/r/z": ""}, outcomeMap(outcomes))

	y, _ := l.Crate("o/r/y")
	assert.Equal(t, "boom", y.Expansion.Err)
	repo, _ := l.Repo("o/r")
	assert.Equal(t, 1, repo.Expansion.Failures)
}

func TestPool_ProgressIsSerialized(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []int
	)
	pool := NewPool(PoolConfig{
		Limit: 4,
		OnProgress: func(done, total int) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, 10, total)
			seen = append(seen, done)
		},
	})

	items := make([]string, 10)
	for i := range items {
		items[i] = fmt.Sprint(i)
	}
	_, err := pool.Run(context.Background(), items, func(context.Context, string) error { return nil })
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, seen)
}

func TestPool_AcquireFailureIsFatal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	pool := NewPool(PoolConfig{Name: "expand-macros", Limit: 1})

	go func() {
		<-started
		cancel()
		close(release)
	}()

	outcomes, err := pool.Run(ctx, []string{"first", "second", "third"}, func(_ context.Context, item string) error {
		started <- struct{}{}
		<-release
		return nil
	})

	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, context.Canceled)

	// Tasks already started still finish and report
	require.Len(t, outcomes, 1)
	assert.Equal(t, "first", outcomes[0].Item)
}

func TestNewPool_DefaultLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NewPool(PoolConfig{}).Limit())
	assert.Equal(t, 3, NewPool(PoolConfig{Limit: 3}).Limit())
}
