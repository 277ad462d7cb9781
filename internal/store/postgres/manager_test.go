package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewManager_MissingDSN(t *testing.T) {
	_, err := NewManager(Config{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "DSN is required")
}

func TestNewManager_InvalidDSN(t *testing.T) {
	_, err := NewManager(Config{
		DSN:          "not-a-real-dsn",
		MaxOpenConns: 1,
		QueryTimeout: time.Second,
	})
	assert.Error(t, err)
}
