package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/campus-tutoring-api/pkg/errors"
)

func TestCacheRepositoryWithoutClientDegrades(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	var dest map[string]string
	assert.ErrorIs(t, repo.Get(ctx, "sessions:snapshot:1", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "sessions:snapshot:1", map[string]string{"a": "b"}, time.Minute))
	assert.NoError(t, repo.Delete(ctx, "sessions:snapshot:1"))
	assert.NoError(t, repo.DeleteByPattern(ctx, "sessions:snapshot:*"))
	assert.NoError(t, repo.Ping(ctx))
	assert.NoError(t, repo.Close())
}
