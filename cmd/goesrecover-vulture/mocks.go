package main

import (
	"sync"

	"github.com/lanot/goesrecover/pkg/httpclient"
	"github.com/lanot/goesrecover/pkg/query"
)

type MockClient struct {
	readyErr error

	resp    *httpclient.ValidationResult
	respErr error

	brokenResp *httpclient.ValidationResult
	brokenErr  error

	// We need the lock to control concurrent accesses to requests
	m        sync.Mutex
	requests []*query.Request
}

func (m *MockClient) Ready() error {
	return m.readyErr
}

func (m *MockClient) ValidateQuery(r *query.Request) (*httpclient.ValidationResult, error) {
	m.m.Lock()
	m.requests = append(m.requests, r)
	m.m.Unlock()

	if r.Satellite == "GOES-99" {
		return m.brokenResp, m.brokenErr
	}
	return m.resp, m.respErr
}

func (m *MockClient) Requests() []*query.Request {
	m.m.Lock()
	defer m.m.Unlock()
	return m.requests
}
