// Package mocks provides test doubles for the expert caller.
package mocks

import (
	"context"

	expert "github.com/sells-group/analyst/internal/expert"
	model "github.com/sells-group/analyst/internal/model"
	mock "github.com/stretchr/testify/mock"
)

// MockCaller is a mock type for the Caller interface.
type MockCaller struct {
	mock.Mock
}

// Analyze provides a mock function with given fields: ctx, role, in
func (_m *MockCaller) Analyze(ctx context.Context, role model.Role, in expert.Input) (string, error) {
	ret := _m.Called(ctx, role, in)

	if len(ret) == 0 {
		panic("no return value specified for Analyze")
	}

	var r0 string
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, model.Role, expert.Input) (string, error)); ok {
		return rf(ctx, role, in)
	}
	if rf, ok := ret.Get(0).(func(context.Context, model.Role, expert.Input) string); ok {
		r0 = rf(ctx, role, in)
	} else {
		r0 = ret.Get(0).(string)
	}

	if rf, ok := ret.Get(1).(func(context.Context, model.Role, expert.Input) error); ok {
		r1 = rf(ctx, role, in)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// GapQuestions provides a mock function with given fields: ctx, companyInfo, analyses
func (_m *MockCaller) GapQuestions(ctx context.Context, companyInfo string, analyses string) (string, error) {
	ret := _m.Called(ctx, companyInfo, analyses)

	if len(ret) == 0 {
		panic("no return value specified for GapQuestions")
	}

	var r0 string
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) (string, error)); ok {
		return rf(ctx, companyInfo, analyses)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, string) string); ok {
		r0 = rf(ctx, companyInfo, analyses)
	} else {
		r0 = ret.Get(0).(string)
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, string) error); ok {
		r1 = rf(ctx, companyInfo, analyses)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockCaller creates a new instance of MockCaller.
func NewMockCaller(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockCaller {
	mock := &MockCaller{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
