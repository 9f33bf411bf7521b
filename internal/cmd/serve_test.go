package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/goconflux/pkg/ticketstore"
)

func TestDBHealthChecker(t *testing.T) {
	db, err := ticketstore.Open(context.Background(), ticketstore.Config{Path: ":memory:"})
	require.NoError(t, err)

	checker := dbHealthChecker{db: db}

	t.Run("healthy while open", func(t *testing.T) {
		assert.NoError(t, checker.CheckHealth(context.Background()))
	})

	t.Run("unhealthy after close", func(t *testing.T) {
		require.NoError(t, db.Close())
		assert.Error(t, checker.CheckHealth(context.Background()))
	})
}

func TestReaderKindFor(t *testing.T) {
	tests := []struct {
		kind    string
		wantErr bool
	}{
		{"csv", false},
		{"json", false},
		{"parquet", false},
		{"xml", true},
		{"", true},
	}
	for _, tt := range tests {
		_, err := readerKindFor(tt.kind)
		if tt.wantErr {
			assert.Error(t, err, tt.kind)
		} else {
			assert.NoError(t, err, tt.kind)
		}
	}
}
