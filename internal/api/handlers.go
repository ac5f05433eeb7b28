package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// handleDiscovery renders the route table in CoRE link format so clients can
// enumerate the resources this node exposes.
func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	links := make([]string, 0, len(s.routes))
	for _, rt := range s.routes {
		links = append(links, fmt.Sprintf("<%s>", rt.path))
	}
	w.Header().Set("Content-Type", "application/link-format")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, strings.Join(links, ","))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleBoard reports the board name this node is configured as, plain text.
func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, s.cfg.Board)
}

type fletcher16Request struct {
	DataSize int `json:"data_size"`
}

type fletcher16Response struct {
	Checksum      uint16 `json:"checksum"`
	DataLen       int    `json:"data_len"`
	ExecutionTime int64  `json:"execution_time"`
}

// handleFletcher16 runs the native checksum benchmark: data_size selects one
// of six input lengths (80 bytes doubling up to 2560) and the response
// reports the Fletcher-16 checksum alongside the native execution time, for
// comparison against the same workload run inside the sandbox.
func (s *Server) handleFletcher16(w http.ResponseWriter, r *http.Request) {
	var req fletcher16Request
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	if req.DataSize < 1 || req.DataSize > 6 {
		writeValidationError(w, "data_size must be between 1 and 6")
		return
	}

	n := 80 << (req.DataSize - 1)
	data := make([]byte, n)
	for i := range data {
		data[i] = byte('a' + i%26)
	}

	start := time.Now()
	sum := fletcher16(data)
	elapsed := time.Since(start)

	writeJSON(w, http.StatusOK, fletcher16Response{
		Checksum:      sum,
		DataLen:       n,
		ExecutionTime: elapsed.Microseconds(),
	})
}

// fletcher16 computes the Fletcher-16 checksum with deferred modulo: the
// sums reduce once per 5802-byte block, the largest run that cannot overflow
// 32-bit accumulators.
func fletcher16(data []byte) uint16 {
	var sum1, sum2 uint32
	for len(data) > 0 {
		block := len(data)
		if block > 5802 {
			block = 5802
		}
		for _, b := range data[:block] {
			sum1 += uint32(b)
			sum2 += sum1
		}
		sum1 %= 255
		sum2 %= 255
		data = data[block:]
	}
	return uint16(sum2<<8 | sum1)
}
