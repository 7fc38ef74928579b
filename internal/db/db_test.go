package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"garments-erp/internal/config"
)

func TestNewPool_RejectsBadConfig(t *testing.T) {
	ctx := context.Background()

	_, err := NewPool(ctx, config.PostgresConfig{})
	assert.ErrorContains(t, err, "ERP_POSTGRES_URL")

	_, err = NewPool(ctx, config.PostgresConfig{URL: "postgres://%zz"})
	assert.ErrorContains(t, err, "parse")
}
