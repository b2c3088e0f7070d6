package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextRun(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2024, 3, 10, h, m, 0, 0, time.UTC) }
	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before today's slot", at(0, 30), at(1, 0)},
		{"exactly at slot", at(1, 0), at(1, 0).AddDate(0, 0, 1)},
		{"after slot", at(13, 0), at(1, 0).AddDate(0, 0, 1)},
		{"non-UTC input", time.Date(2024, 3, 10, 2, 30, 0, 0, time.FixedZone("CET", 3600)), at(1, 0).AddDate(0, 0, 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, nextRun(tc.now, 1, 0))
		})
	}
}

func TestSchedulerTick(t *testing.T) {
	now := time.Date(2024, 3, 10, 0, 59, 0, 0, time.UTC)
	calls := 0
	s := &scheduler{
		hour:   1,
		minute: 0,
		job: func(context.Context) error {
			calls++
			return errors.New("upstream down")
		},
		now: func() time.Time { return now },
	}

	next := nextRun(now, 1, 0)
	next = s.tick(context.Background(), next)
	assert.Equal(t, 0, calls)

	now = now.Add(time.Minute)
	next = s.tick(context.Background(), next)
	assert.Equal(t, 1, calls)
	assert.Equal(t, time.Date(2024, 3, 11, 1, 0, 0, 0, time.UTC), next)

	now = now.Add(time.Minute)
	s.tick(context.Background(), next)
	assert.Equal(t, 1, calls)
}

func TestSchedulerSkipsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	s := &scheduler{job: func(context.Context) error { calls++; return nil }, now: time.Now}
	s.fire(ctx)
	assert.Equal(t, 0, calls)
}
