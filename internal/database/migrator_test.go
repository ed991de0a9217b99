package database

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewMigrator_Validation(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("fails with nil database", func(t *testing.T) {
		migrator, err := NewMigrator(nil, "/some/path", logger)
		assert.Nil(t, migrator)
		assert.ErrorContains(t, err, "database is required")
	})

	t.Run("fails with nil pool", func(t *testing.T) {
		migrator, err := NewMigrator(&DB{}, "/some/path", logger)
		assert.Nil(t, migrator)
		assert.ErrorContains(t, err, "database pool not initialized")
	})

	t.Run("AutoMigrate surfaces constructor errors", func(t *testing.T) {
		err := AutoMigrate(&DB{}, "/some/path", logger)
		assert.ErrorContains(t, err, "database pool not initialized")
	})
}

func TestNewMigrator_PathValidation(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("fails with nil database before checking path", func(t *testing.T) {
		_, err := NewMigrator(nil, "", logger)
		assert.ErrorContains(t, err, "database is required")
	})

	t.Run("AutoMigrate surfaces nil database", func(t *testing.T) {
		err := AutoMigrate(nil, t.TempDir(), logger)
		assert.ErrorContains(t, err, "database is required")
	})
}
