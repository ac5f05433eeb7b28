package api

import (
	"encoding/binary"
	"io"
	"net/http"

	"github.com/bpfgate/bpfgate/internal/engine"
	"github.com/bpfgate/bpfgate/internal/vm"
)

// Program-facing ABI of the execution gateway. Region slots are numbered in
// registration order and that order is fixed:
//
//	region 0: reply buffer, replyBufSize bytes, read+write — the program
//	          writes its reply bytes here
//	region 1: message view, msgViewSize bytes, read+write — the flat
//	          encoding of the parsed request (see encodeMessageView)
//
// The caller context blob handed to the program in r1 carries the message
// view address, the reply buffer address, and the reply buffer length, in
// that order, as little-endian 64-bit words.
const (
	replyBufSize = 256
	msgViewSize  = 512

	// message view field offsets
	msgViewMethodOff  = 0
	msgViewPayloadLen = 4
	msgViewPayloadOff = 8

	maxExecPayload = msgViewSize - msgViewPayloadOff
)

// Method codes in the message view.
const (
	methodCodeGet uint32 = iota + 1
	methodCodePost
	methodCodePut
	methodCodeDelete
)

// sentinelResult is reported when the program did not run to completion,
// distinguishing "ran but was stopped or faulted" from a transport failure.
const sentinelResult = -1

type execResponse struct {
	Result        int64  `json:"result"`
	ExecutionTime int64  `json:"execution_time"`
	Outcome       string `json:"outcome"`
}

// handleExec returns the execution-gateway handler bound to one storage
// slot. The slot comes from the route table, never from the request, so a
// client can only ever reach the slots the table exposes.
func (s *Server) handleExec(slot string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(io.LimitReader(r.Body, maxExecPayload+1))
		if err != nil {
			writeValidationError(w, "reading request payload: "+err.Error())
			return
		}
		if len(payload) > maxExecPayload {
			writeValidationError(w, "request payload too large")
			return
		}

		sl, err := s.locator.Find(slot)
		if err != nil {
			s.logger.Error("locate storage slot", "slot", slot, "error", err)
			writeAPIError(w, err)
			return
		}
		if err := sl.SetActive(r.Context()); err != nil {
			s.logger.Error("activate storage slot", "slot", slot, "error", err)
			writeAPIError(w, err)
			return
		}
		image, err := sl.ReadActive()
		if err != nil {
			s.logger.Error("read active image", "slot", slot, "error", err)
			writeAPIError(w, err)
			return
		}

		replyBuf := make([]byte, replyBufSize)
		msgView := encodeMessageView(r, payload)

		prep, err := s.engine.Prepare(engine.ExecContext{
			Bytecode: image,
			Regions: []engine.RegionSpec{
				{Buf: replyBuf, Perm: vm.PermRead | vm.PermWrite},
				{Buf: msgView, Perm: vm.PermRead | vm.PermWrite},
			},
		})
		if err != nil {
			s.logger.Error("prepare execution", "slot", slot, "error", err)
			writeAPIError(w, err)
			return
		}

		blob := encodeCallerBlob(vm.RegionBase(1), vm.RegionBase(0), replyBufSize)
		out, elapsed := s.engine.Run(prep, blob)

		resp := execResponse{
			Result:        sentinelResult,
			ExecutionTime: elapsed.Microseconds(),
			Outcome:       out.Code.String(),
		}
		if out.Code == vm.Completed {
			resp.Result = out.Result
		}

		s.logger.Debug("execution complete",
			"slot", slot, "outcome", out.Code.String(),
			"result", resp.Result, "execution_time_us", resp.ExecutionTime)
		writeJSON(w, http.StatusOK, resp)
	}
}

// encodeMessageView flattens the parsed request into the fixed-layout buffer
// programs receive as region 1. The layout stands in for the transport
// stack's packet struct: method code, payload length, then the payload
// bytes, zero padded to msgViewSize.
func encodeMessageView(r *http.Request, payload []byte) []byte {
	view := make([]byte, msgViewSize)
	binary.LittleEndian.PutUint32(view[msgViewMethodOff:], methodCode(r.Method))
	binary.LittleEndian.PutUint32(view[msgViewPayloadLen:], uint32(len(payload)))
	copy(view[msgViewPayloadOff:], payload)
	return view
}

func methodCode(method string) uint32 {
	switch method {
	case http.MethodGet:
		return methodCodeGet
	case http.MethodPost:
		return methodCodePost
	case http.MethodPut:
		return methodCodePut
	case http.MethodDelete:
		return methodCodeDelete
	default:
		return 0
	}
}

func encodeCallerBlob(msgAddr, replyAddr, replyLen uint64) []byte {
	blob := make([]byte, 24)
	binary.LittleEndian.PutUint64(blob[0:], msgAddr)
	binary.LittleEndian.PutUint64(blob[8:], replyAddr)
	binary.LittleEndian.PutUint64(blob[16:], replyLen)
	return blob
}
