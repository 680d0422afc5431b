// Package mocks provides test doubles for the entity store.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	model "github.com/sells-group/dinescout/internal/model"
	store "github.com/sells-group/dinescout/internal/store"
)

// MockStore is a mock type for the Store interface.
type MockStore struct {
	mock.Mock
}

// Read provides a mock function with given fields: ctx, f
func (_m *MockStore) Read(ctx context.Context, f store.Filter) ([]model.Restaurant, error) {
	ret := _m.Called(ctx, f)

	if len(ret) == 0 {
		panic("no return value specified for Read")
	}

	var r0 []model.Restaurant
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, store.Filter) ([]model.Restaurant, error)); ok {
		return rf(ctx, f)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.Restaurant)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// Get provides a mock function with given fields: ctx, placeID
func (_m *MockStore) Get(ctx context.Context, placeID string) (*model.Restaurant, error) {
	ret := _m.Called(ctx, placeID)

	if len(ret) == 0 {
		panic("no return value specified for Get")
	}

	var r0 *model.Restaurant
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.Restaurant)
	}
	return r0, ret.Error(1)
}

// Upsert provides a mock function with given fields: ctx, r
func (_m *MockStore) Upsert(ctx context.Context, r model.Restaurant) error {
	ret := _m.Called(ctx, r)

	if len(ret) == 0 {
		panic("no return value specified for Upsert")
	}

	if rf, ok := ret.Get(0).(func(context.Context, model.Restaurant) error); ok {
		return rf(ctx, r)
	}
	return ret.Error(0)
}

// UpsertMany provides a mock function with given fields: ctx, rs
func (_m *MockStore) UpsertMany(ctx context.Context, rs []model.Restaurant) (int64, error) {
	ret := _m.Called(ctx, rs)

	if len(ret) == 0 {
		panic("no return value specified for UpsertMany")
	}

	if rf, ok := ret.Get(0).(func(context.Context, []model.Restaurant) (int64, error)); ok {
		return rf(ctx, rs)
	}
	return ret.Get(0).(int64), ret.Error(1)
}

// Count provides a mock function with given fields: ctx
func (_m *MockStore) Count(ctx context.Context) (int64, error) {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for Count")
	}

	return ret.Get(0).(int64), ret.Error(1)
}

// Ping provides a mock function with given fields: ctx
func (_m *MockStore) Ping(ctx context.Context) error {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for Ping")
	}

	return ret.Error(0)
}

// Migrate provides a mock function with given fields: ctx
func (_m *MockStore) Migrate(ctx context.Context) error {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for Migrate")
	}

	return ret.Error(0)
}

// Close provides a mock function with no fields
func (_m *MockStore) Close() error {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for Close")
	}

	return ret.Error(0)
}

// NewMockStore creates a new instance of MockStore.
func NewMockStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStore {
	mock := &MockStore{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
