package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpfgate/bpfgate/internal/exec"
	"github.com/bpfgate/bpfgate/internal/testutil"
)

func TestFletcher16_KnownVectors(t *testing.T) {
	assert.Equal(t, uint16(0xc8f0), fletcher16([]byte("abcde")))
	assert.Equal(t, uint16(0x2057), fletcher16([]byte("abcdef")))
	assert.Equal(t, uint16(0x0627), fletcher16([]byte("abcdefgh")))
}

func TestFletcher16_LongInputMatchesNaive(t *testing.T) {
	// The deferred-modulo implementation must agree with the per-byte one on
	// inputs longer than a reduction block.
	data := make([]byte, 2560)
	for i := range data {
		data[i] = byte('a' + i%26)
	}
	var sum1, sum2 uint32
	for _, b := range data {
		sum1 = (sum1 + uint32(b)) % 255
		sum2 = (sum2 + sum1) % 255
	}
	assert.Equal(t, uint16(sum2<<8|sum1), fletcher16(data))
}

func TestHandleFletcher16_Sizes(t *testing.T) {
	s := testAPIServer(t, &MockLocator{}, &MockExecutor{}, &MockUpdateSubmitter{}, &MockExecPool{})

	for size, wantLen := range map[int]int{1: 80, 2: 160, 3: 320, 4: 640, 5: 1280, 6: 2560} {
		body := fmt.Sprintf(`{"data_size":%d}`, size)
		req := httptest.NewRequest("POST", "/fletcher16", strings.NewReader(body))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, "data_size %d", size)
		var resp fletcher16Response
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, wantLen, resp.DataLen, "data_size %d", size)
		assert.GreaterOrEqual(t, resp.ExecutionTime, int64(0))
	}
}

func TestHandleFletcher16_Deterministic(t *testing.T) {
	s := testAPIServer(t, &MockLocator{}, &MockExecutor{}, &MockUpdateSubmitter{}, &MockExecPool{})

	checksum := func() uint16 {
		req := httptest.NewRequest("POST", "/fletcher16", strings.NewReader(`{"data_size":3}`))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp fletcher16Response
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		return resp.Checksum
	}
	assert.Equal(t, checksum(), checksum())
}

func TestHandleFletcher16_InvalidSize(t *testing.T) {
	s := testAPIServer(t, &MockLocator{}, &MockExecutor{}, &MockUpdateSubmitter{}, &MockExecPool{})

	for _, body := range []string{`{"data_size":0}`, `{"data_size":7}`, `{bad`, ``} {
		req := httptest.NewRequest("POST", "/fletcher16", strings.NewReader(body))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
}

func TestHandleVMExec_Queued(t *testing.T) {
	pool := &MockExecPool{}
	pool.On("Enqueue", exec.Request{Slot: "ram.0"}).Return("abcd1234", nil)
	s := testAPIServer(t, &MockLocator{}, &MockExecutor{}, &MockUpdateSubmitter{}, pool)

	req := testutil.JSONRequest(t, "POST", "/vm/exec", exec.Request{Slot: "ram.0"})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp vmExecResponse
	testutil.DecodeJSON(t, rec, &resp)
	assert.Equal(t, "abcd1234", resp.ID)
}

func TestHandleVMExec_MissingSlot(t *testing.T) {
	pool := &MockExecPool{}
	s := testAPIServer(t, &MockLocator{}, &MockExecutor{}, &MockUpdateSubmitter{}, pool)

	req := httptest.NewRequest("POST", "/vm/exec", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	pool.AssertNotCalled(t, "Enqueue")
}

func TestHandleVMExec_QueueFull(t *testing.T) {
	pool := &MockExecPool{}
	pool.On("Enqueue", exec.Request{Slot: "ram.0"}).Return("", exec.ErrQueueFull)
	s := testAPIServer(t, &MockLocator{}, &MockExecutor{}, &MockUpdateSubmitter{}, pool)

	req := httptest.NewRequest("POST", "/vm/exec", strings.NewReader(`{"slot":"ram.0"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var apiErr APIError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&apiErr))
	assert.Equal(t, ErrCodeQueueFull, apiErr.Code)
}

func TestHandleVMResults(t *testing.T) {
	pool := &MockExecPool{}
	pool.On("Results").Return([]exec.Result{
		{ID: "abcd1234", Slot: "ram.0", Outcome: "completed", Result: 42, CompletedAt: time.Now().UTC()},
	})
	s := testAPIServer(t, &MockLocator{}, &MockExecutor{}, &MockUpdateSubmitter{}, pool)

	req := httptest.NewRequest("GET", "/vm/results", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var results []exec.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&results))
	require.Len(t, results, 1)
	assert.Equal(t, "abcd1234", results[0].ID)
	assert.Equal(t, int64(42), results[0].Result)
}

func TestHandleVMResults_Empty(t *testing.T) {
	pool := &MockExecPool{}
	pool.On("Results").Return(nil)
	s := testAPIServer(t, &MockLocator{}, &MockExecutor{}, &MockUpdateSubmitter{}, pool)

	req := httptest.NewRequest("GET", "/vm/results", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
