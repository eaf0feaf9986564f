package db

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestRegisterTelemetry(t *testing.T) {
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, RegisterTelemetry(gdb))

	// instrumented connection still serves queries
	require.NoError(t, gdb.Exec("SELECT 1").Error)
}
