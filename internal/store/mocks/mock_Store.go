// Package mocks provides test doubles for the store package.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	model "github.com/oceanid/ingest-worker/internal/model"
)

// MockStore is a mock type for the Store interface.
type MockStore struct {
	mock.Mock
}

// ActiveRules provides a mock function with given fields: ctx
func (_m *MockStore) ActiveRules(ctx context.Context) ([]model.CleaningRule, error) {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for ActiveRules")
	}

	var r0 []model.CleaningRule
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context) ([]model.CleaningRule, error)); ok {
		return rf(ctx)
	}
	if rf, ok := ret.Get(0).(func(context.Context) []model.CleaningRule); ok {
		r0 = rf(ctx)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]model.CleaningRule)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context) error); ok {
		r1 = rf(ctx)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// UpsertRules provides a mock function with given fields: ctx, rules
func (_m *MockStore) UpsertRules(ctx context.Context, rules []model.CleaningRule) (int64, error) {
	ret := _m.Called(ctx, rules)

	if len(ret) == 0 {
		panic("no return value specified for UpsertRules")
	}

	var r0 int64
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, []model.CleaningRule) (int64, error)); ok {
		return rf(ctx, rules)
	}
	if rf, ok := ret.Get(0).(func(context.Context, []model.CleaningRule) int64); ok {
		r0 = rf(ctx, rules)
	} else {
		r0 = ret.Get(0).(int64)
	}

	if rf, ok := ret.Get(1).(func(context.Context, []model.CleaningRule) error); ok {
		r1 = rf(ctx, rules)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// CreateDocument provides a mock function with given fields: ctx, task
func (_m *MockStore) CreateDocument(ctx context.Context, task model.Task) (*model.Document, error) {
	ret := _m.Called(ctx, task)

	if len(ret) == 0 {
		panic("no return value specified for CreateDocument")
	}

	var r0 *model.Document
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, model.Task) (*model.Document, error)); ok {
		return rf(ctx, task)
	}
	if rf, ok := ret.Get(0).(func(context.Context, model.Task) *model.Document); ok {
		r0 = rf(ctx, task)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*model.Document)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, model.Task) error); ok {
		r1 = rf(ctx, task)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// StoreExtractions provides a mock function with given fields: ctx, documentID, extractions
func (_m *MockStore) StoreExtractions(ctx context.Context, documentID int64, extractions []model.CellExtraction) (int64, error) {
	ret := _m.Called(ctx, documentID, extractions)

	if len(ret) == 0 {
		panic("no return value specified for StoreExtractions")
	}

	var r0 int64
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, int64, []model.CellExtraction) (int64, error)); ok {
		return rf(ctx, documentID, extractions)
	}
	if rf, ok := ret.Get(0).(func(context.Context, int64, []model.CellExtraction) int64); ok {
		r0 = rf(ctx, documentID, extractions)
	} else {
		r0 = ret.Get(0).(int64)
	}

	if rf, ok := ret.Get(1).(func(context.Context, int64, []model.CellExtraction) error); ok {
		r1 = rf(ctx, documentID, extractions)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// SummarizeExtractions provides a mock function with given fields: ctx, documentID
func (_m *MockStore) SummarizeExtractions(ctx context.Context, documentID int64) (model.ExtractionStats, error) {
	ret := _m.Called(ctx, documentID)

	if len(ret) == 0 {
		panic("no return value specified for SummarizeExtractions")
	}

	var r0 model.ExtractionStats
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, int64) (model.ExtractionStats, error)); ok {
		return rf(ctx, documentID)
	}
	if rf, ok := ret.Get(0).(func(context.Context, int64) model.ExtractionStats); ok {
		r0 = rf(ctx, documentID)
	} else {
		r0 = ret.Get(0).(model.ExtractionStats)
	}

	if rf, ok := ret.Get(1).(func(context.Context, int64) error); ok {
		r1 = rf(ctx, documentID)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// SaveSummary provides a mock function with given fields: ctx, summary
func (_m *MockStore) SaveSummary(ctx context.Context, summary *model.ProcessingSummary) error {
	ret := _m.Called(ctx, summary)

	if len(ret) == 0 {
		panic("no return value specified for SaveSummary")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, *model.ProcessingSummary) error); ok {
		r0 = rf(ctx, summary)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// GetSummary provides a mock function with given fields: ctx, documentID
func (_m *MockStore) GetSummary(ctx context.Context, documentID int64) (*model.ProcessingSummary, error) {
	ret := _m.Called(ctx, documentID)

	if len(ret) == 0 {
		panic("no return value specified for GetSummary")
	}

	var r0 *model.ProcessingSummary
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, int64) (*model.ProcessingSummary, error)); ok {
		return rf(ctx, documentID)
	}
	if rf, ok := ret.Get(0).(func(context.Context, int64) *model.ProcessingSummary); ok {
		r0 = rf(ctx, documentID)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*model.ProcessingSummary)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, int64) error); ok {
		r1 = rf(ctx, documentID)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// UpdateTaskStatus provides a mock function with given fields: ctx, taskID, status, errMsg
func (_m *MockStore) UpdateTaskStatus(ctx context.Context, taskID int64, status model.TaskStatus, errMsg string) error {
	ret := _m.Called(ctx, taskID, status, errMsg)

	if len(ret) == 0 {
		panic("no return value specified for UpdateTaskStatus")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, int64, model.TaskStatus, string) error); ok {
		r0 = rf(ctx, taskID, status, errMsg)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// RecordEvent provides a mock function with given fields: ctx, event
func (_m *MockStore) RecordEvent(ctx context.Context, event model.Event) error {
	ret := _m.Called(ctx, event)

	if len(ret) == 0 {
		panic("no return value specified for RecordEvent")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, model.Event) error); ok {
		r0 = rf(ctx, event)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// ReviewQueueDepth provides a mock function with given fields: ctx
func (_m *MockStore) ReviewQueueDepth(ctx context.Context) (map[string]int, error) {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for ReviewQueueDepth")
	}

	var r0 map[string]int
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context) (map[string]int, error)); ok {
		return rf(ctx)
	}
	if rf, ok := ret.Get(0).(func(context.Context) map[string]int); ok {
		r0 = rf(ctx)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(map[string]int)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context) error); ok {
		r1 = rf(ctx)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// Ping provides a mock function with given fields: ctx
func (_m *MockStore) Ping(ctx context.Context) error {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for Ping")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context) error); ok {
		r0 = rf(ctx)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// Migrate provides a mock function with given fields: ctx
func (_m *MockStore) Migrate(ctx context.Context) error {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for Migrate")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context) error); ok {
		r0 = rf(ctx)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// Close provides a mock function with given fields: 
func (_m *MockStore) Close() error {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for Close")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func() error); ok {
		r0 = rf()
	} else {
		r0 = ret.Error(0)
	}

	return r0
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
