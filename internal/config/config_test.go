package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseSecondaries_TrimsAndDropsEmpty(t *testing.T) {
	got := ParseSecondaries("http://r1:8001, http://r2:8001 ,, http://r3:8001")
	assert.Equal(t, []string{"http://r1:8001", "http://r2:8001", "http://r3:8001"}, got)
}

func TestParseSecondaries_EmptyInputIsNil(t *testing.T) {
	assert.Nil(t, ParseSecondaries(""))
	assert.Nil(t, ParseSecondaries("  "))
}

func TestParseSecondaries_SingleValue(t *testing.T) {
	assert.Equal(t, []string{"http://r1:8001"}, ParseSecondaries("http://r1:8001"))
}

func TestHealthTimeoutFor_IsThreeTimesInterval(t *testing.T) {
	assert.Equal(t, 3*time.Second, HealthTimeoutFor(time.Second))
	assert.Equal(t, 300*time.Millisecond, HealthTimeoutFor(100*time.Millisecond))
}

func TestDefaultPrimary_HasSaneDefaults(t *testing.T) {
	p := DefaultPrimary()
	assert.Equal(t, 8000, p.Port)
	assert.Equal(t, "info", p.LogLevel)
	assert.Equal(t, 3*time.Second, p.HealthTimeout)
}

func TestDefaultReplica_HasSaneDefaults(t *testing.T) {
	r := DefaultReplica()
	assert.Equal(t, 8001, r.Port)
	assert.Equal(t, 0, r.DelayMs)
}
