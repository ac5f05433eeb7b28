package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestHandlePull_TriggersUpdate(t *testing.T) {
	upd := &MockUpdateSubmitter{}
	upd.On("Submit", "http://[2001:db8::1]/suit_manifest.signed").Return(true)
	s := testAPIServer(t, &MockLocator{}, &MockExecutor{}, upd, &MockExecPool{})

	req := httptest.NewRequest("POST", "/pull", strings.NewReader("2001:db8::1"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())
	upd.AssertExpectations(t)
}

func TestHandlePull_ZoneAddress(t *testing.T) {
	upd := &MockUpdateSubmitter{}
	upd.On("Submit", "http://[fe80::1%eth0]/suit_manifest.signed").Return(true)
	s := testAPIServer(t, &MockLocator{}, &MockExecutor{}, upd, &MockExecPool{})

	req := httptest.NewRequest("POST", "/pull", strings.NewReader("fe80::1%eth0"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	upd.AssertExpectations(t)
}

func TestHandlePull_EmptyAddress(t *testing.T) {
	upd := &MockUpdateSubmitter{}
	s := testAPIServer(t, &MockLocator{}, &MockExecutor{}, upd, &MockExecPool{})

	req := httptest.NewRequest("POST", "/pull", strings.NewReader(""))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	upd.AssertNotCalled(t, "Submit")
}

func TestHandlePull_AddressAtMaxLength(t *testing.T) {
	addr := strings.Repeat("a", 45)
	upd := &MockUpdateSubmitter{}
	upd.On("Submit", "http://["+addr+"]/suit_manifest.signed").Return(true)
	s := testAPIServer(t, &MockLocator{}, &MockExecutor{}, upd, &MockExecPool{})

	req := httptest.NewRequest("POST", "/pull", strings.NewReader(addr))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	upd.AssertExpectations(t)
}

func TestHandlePull_AddressTooLong(t *testing.T) {
	upd := &MockUpdateSubmitter{}
	s := testAPIServer(t, &MockLocator{}, &MockExecutor{}, upd, &MockExecPool{})

	req := httptest.NewRequest("POST", "/pull", strings.NewReader(strings.Repeat("a", 46)))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	upd.AssertNotCalled(t, "Submit")
}

func TestHandlePull_InvalidCharacters(t *testing.T) {
	upd := &MockUpdateSubmitter{}
	s := testAPIServer(t, &MockLocator{}, &MockExecutor{}, upd, &MockExecPool{})

	req := httptest.NewRequest("POST", "/pull", strings.NewReader("evil/../host"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	upd.AssertNotCalled(t, "Submit")
}

func TestHandlePull_QueueFull(t *testing.T) {
	upd := &MockUpdateSubmitter{}
	upd.On("Submit", mock.Anything).Return(false)
	s := testAPIServer(t, &MockLocator{}, &MockExecutor{}, upd, &MockExecPool{})

	req := httptest.NewRequest("POST", "/pull", strings.NewReader("2001:db8::1"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
