package cache

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"nic-search/internal/ranker"
)

// MockCache is a mock implementation of the Cache interface for testing
type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetResults(ctx context.Context, key string) ([]ranker.Result, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ranker.Result), args.Error(1)
}

func (m *MockCache) SetResults(ctx context.Context, key string, results []ranker.Result, ttl time.Duration) error {
	args := m.Called(ctx, key, results, ttl)
	return args.Error(0)
}

func (m *MockCache) Invalidate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockCache) Close() error {
	args := m.Called()
	return args.Error(0)
}
