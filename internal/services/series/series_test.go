package series

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func bar(end time.Time, c float64) models.Bar {
	p := decimal.NewFromFloat(c)
	return models.Bar{EndTime: end, Open: p, High: p, Low: p, Close: p, Volume: decimal.NewFromInt(1)}
}

func TestApplyAppendAmendDiscard(t *testing.T) {
	s := New(time.Minute)

	got, err := s.Apply(bar(t0, 10))
	require.NoError(t, err)
	assert.Equal(t, Appended, got)

	got, err = s.Apply(bar(t0.Add(time.Minute), 11))
	require.NoError(t, err)
	assert.Equal(t, Appended, got)

	got, err = s.Apply(bar(t0.Add(time.Minute), 12))
	require.NoError(t, err)
	assert.Equal(t, Amended, got)

	got, err = s.Apply(bar(t0, 9))
	require.NoError(t, err)
	assert.Equal(t, Discarded, got)

	require.Equal(t, 2, s.Len())
	last, ok := s.Last()
	require.True(t, ok)
	assert.True(t, last.Close.Equal(decimal.NewFromInt(12)))
	assert.Equal(t, time.Minute, last.Duration)
}

func TestLengthEqualsDistinctPeriods(t *testing.T) {
	s := New(time.Minute)
	ends := []int{0, 0, 1, 1, 1, 2, 1, 3, 3, 0, 4}
	distinct := map[int]bool{}
	maxSeen := -1
	for _, e := range ends {
		_, err := s.Apply(bar(t0.Add(time.Duration(e)*time.Minute), float64(e+1)))
		require.NoError(t, err)
		if e > maxSeen {
			maxSeen = e
			distinct[e] = true
		}
	}
	assert.Equal(t, len(distinct), s.Len())

	snap := s.Snapshot()
	for i := 1; i < len(snap); i++ {
		assert.True(t, snap[i].EndTime.After(snap[i-1].EndTime))
	}
}

func TestApplyRejectsInvalidBar(t *testing.T) {
	s := New(time.Minute)
	_, err := s.Apply(models.Bar{})
	require.Error(t, err)

	b := bar(t0, 10)
	b.High = decimal.NewFromInt(5)
	_, err = s.Apply(b)
	require.Error(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestApplyTickFoldsIntoOpenBar(t *testing.T) {
	s := New(time.Minute)
	at := t0.Add(10 * time.Second)

	got, err := s.ApplyTick(models.Tick{Time: at, Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(2)})
	require.NoError(t, err)
	assert.Equal(t, Appended, got)

	got, err = s.ApplyTick(models.Tick{Time: at.Add(20 * time.Second), Price: decimal.NewFromInt(104), Volume: decimal.NewFromInt(1)})
	require.NoError(t, err)
	assert.Equal(t, Amended, got)

	got, err = s.ApplyTick(models.Tick{Time: at.Add(25 * time.Second), Price: decimal.NewFromInt(98), Volume: decimal.NewFromInt(1)})
	require.NoError(t, err)
	assert.Equal(t, Amended, got)

	last, _ := s.Last()
	assert.Equal(t, t0.Add(time.Minute), last.EndTime)
	assert.True(t, last.Open.Equal(decimal.NewFromInt(100)))
	assert.True(t, last.High.Equal(decimal.NewFromInt(104)))
	assert.True(t, last.Low.Equal(decimal.NewFromInt(98)))
	assert.True(t, last.Close.Equal(decimal.NewFromInt(98)))
	assert.True(t, last.Volume.Equal(decimal.NewFromInt(4)))

	got, err = s.ApplyTick(models.Tick{Time: t0.Add(-time.Second), Price: decimal.NewFromInt(1)})
	require.NoError(t, err)
	assert.Equal(t, Discarded, got)

	got, err = s.ApplyTick(models.Tick{Time: t0.Add(61 * time.Second), Price: decimal.NewFromInt(101)})
	require.NoError(t, err)
	assert.Equal(t, Appended, got)
	assert.Equal(t, 2, s.Len())
}

func TestMaxBarsDropsOldest(t *testing.T) {
	s := New(time.Minute, WithMaxBars(3))
	for i := 0; i < 5; i++ {
		_, err := s.Apply(bar(t0.Add(time.Duration(i)*time.Minute), float64(i)))
		require.NoError(t, err)
	}
	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, t0.Add(2*time.Minute), snap[0].EndTime)
	assert.Len(t, s.LastN(2), 2)
	assert.Len(t, s.LastN(0), 3)
}

func TestSnapshotIsIsolatedFromWriters(t *testing.T) {
	s := New(time.Minute)
	_, _ = s.Apply(bar(t0, 1))
	snap := s.Snapshot()
	_, _ = s.Apply(bar(t0, 2))
	assert.True(t, snap[0].Close.Equal(decimal.NewFromInt(1)))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = s.Apply(bar(t0.Add(time.Duration(j)*time.Minute), float64(i)))
				_ = s.Snapshot()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, s.Len())
}
