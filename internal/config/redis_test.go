package config

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func startRedis(t *testing.T) string {
	t.Helper()
	return miniredis.RunT(t).Addr()
}
