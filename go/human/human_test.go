package human_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jbohren-forks/catkin-tools/go/human"
)

func TestDuration(t *testing.T) {
	cases := []struct {
		d        time.Duration
		expected string
	}{
		{0, "0s"},
		{time.Second, "1s"},
		{-time.Second, "1s"},
		{60 * time.Second, "1m 0s"},
		{61 * time.Second, "1m 1s"},
		{3599 * time.Second, "59m 59s"},
		{3601 * time.Second, "1h 0m 1s"},
		{24 * time.Hour, "1d 0h 0m 0s"},
		{24*time.Hour + time.Second, "1d 0h 0m 1s"},
	}
	for _, c := range cases {
		require.Equal(t, c.expected, human.Duration(c.d), "input %v", c.d)
	}
}

func TestShort(t *testing.T) {
	cases := []struct {
		d        time.Duration
		expected string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{90 * time.Second, "1m30s"},
		{3600 * time.Second, "1h00m"},
		{3725 * time.Second, "1h02m"},
	}
	for _, c := range cases {
		require.Equal(t, c.expected, human.Short(c.d), "input %v", c.d)
	}
}
