// Package mocks provides test doubles for the shotsense client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	shotsense "github.com/sells-group/shotsense-cli/pkg/shotsense"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Upload provides a mock function with given fields: ctx, req
func (_m *MockClient) Upload(ctx context.Context, req shotsense.UploadRequest) (shotsense.Payload, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for Upload")
	}

	var r0 shotsense.Payload
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, shotsense.UploadRequest) (shotsense.Payload, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, shotsense.UploadRequest) shotsense.Payload); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(shotsense.Payload)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, shotsense.UploadRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// GetAnalysis provides a mock function with given fields: ctx, id
func (_m *MockClient) GetAnalysis(ctx context.Context, id string) (shotsense.Payload, error) {
	ret := _m.Called(ctx, id)

	if len(ret) == 0 {
		panic("no return value specified for GetAnalysis")
	}

	var r0 shotsense.Payload
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (shotsense.Payload, error)); ok {
		return rf(ctx, id)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string) shotsense.Payload); ok {
		r0 = rf(ctx, id)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(shotsense.Payload)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, id)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// ListAnalyses provides a mock function with given fields: ctx
func (_m *MockClient) ListAnalyses(ctx context.Context) ([]shotsense.Payload, error) {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for ListAnalyses")
	}

	var r0 []shotsense.Payload
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context) ([]shotsense.Payload, error)); ok {
		return rf(ctx)
	}
	if rf, ok := ret.Get(0).(func(context.Context) []shotsense.Payload); ok {
		r0 = rf(ctx)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]shotsense.Payload)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context) error); ok {
		r1 = rf(ctx)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// CurrentUser provides a mock function with given fields: ctx
func (_m *MockClient) CurrentUser(ctx context.Context) (*shotsense.User, error) {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for CurrentUser")
	}

	var r0 *shotsense.User
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context) (*shotsense.User, error)); ok {
		return rf(ctx)
	}
	if rf, ok := ret.Get(0).(func(context.Context) *shotsense.User); ok {
		r0 = rf(ctx)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*shotsense.User)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context) error); ok {
		r1 = rf(ctx)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// SignIn provides a mock function with given fields: ctx, email, password
func (_m *MockClient) SignIn(ctx context.Context, email string, password string) error {
	ret := _m.Called(ctx, email, password)

	if len(ret) == 0 {
		panic("no return value specified for SignIn")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) error); ok {
		r0 = rf(ctx, email, password)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// SignUp provides a mock function with given fields: ctx, name, email, password
func (_m *MockClient) SignUp(ctx context.Context, name string, email string, password string) error {
	ret := _m.Called(ctx, name, email, password)

	if len(ret) == 0 {
		panic("no return value specified for SignUp")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string, string) error); ok {
		r0 = rf(ctx, name, email, password)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
