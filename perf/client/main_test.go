package main

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	_, ok := summarize(nil)
	assert.False(t, ok)

	times := []int64{50, 10, 40, 20, 30}
	stats, ok := summarize(times)
	require.True(t, ok)
	assert.Equal(t, int64(10), stats.Min)
	assert.Equal(t, int64(50), stats.Max)
	assert.Equal(t, int64(30), stats.Avg)
	assert.Equal(t, int64(30), stats.P50)
	assert.Equal(t, int64(40), stats.P95)
	assert.InDelta(t, 14.14, stats.StdDev, 0.01)
	assert.Equal(t, []int64{50, 10, 40, 20, 30}, times, "input must not be reordered")
}

func TestMetricsRecord(t *testing.T) {
	m := &Metrics{}
	m.record(5*time.Millisecond, http.StatusOK, nil)
	m.record(time.Millisecond, http.StatusServiceUnavailable, nil)
	m.record(time.Millisecond, http.StatusInternalServerError, nil)
	m.record(time.Millisecond, 0, errors.New("connection refused"))

	assert.EqualValues(t, 4, m.TotalRequests)
	assert.EqualValues(t, 1, m.SuccessfulRequests)
	assert.EqualValues(t, 1, m.RejectedRequests)
	assert.EqualValues(t, 2, m.FailedRequests)
	assert.Equal(t, []int64{5}, m.ResponseTimes)
}
