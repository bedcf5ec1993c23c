package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MorseWayne/storefront/internal/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:     "db.local",
		Port:     3307,
		User:     "shop",
		Password: "secret",
		DBName:   "storefront",
	})
	assert.Equal(t, "shop:secret@tcp(db.local:3307)/storefront?charset=utf8mb4&parseTime=true&loc=UTC", dsn)
}
