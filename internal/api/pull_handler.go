package api

import (
	"io"
	"net/http"
	"strings"
)

// handlePull accepts a bare network address in the request body, expands it
// into the manifest fetch URI and hands the fetch to the background update
// worker. The response acknowledges receipt only; fetch and apply happen
// asynchronously.
func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	maxLen := s.cfg.Update.MaxAddressLen
	body, err := io.ReadAll(io.LimitReader(r.Body, int64(maxLen)+1))
	if err != nil {
		writeValidationError(w, "reading address: "+err.Error())
		return
	}
	addr := strings.TrimSpace(string(body))
	if addr == "" {
		writeValidationError(w, "empty address")
		return
	}
	if len(body) > maxLen {
		writeValidationError(w, "address too long")
		return
	}
	if !validAddress(addr) {
		writeValidationError(w, "address contains invalid characters")
		return
	}

	uri := strings.ReplaceAll(s.cfg.Update.ManifestTemplate, "{addr}", addr)
	if !s.updates.Submit(uri) {
		s.logger.Warn("update queue full, dropping trigger", "addr", addr)
		writeAPIError(w, errUpdateQueueFull)
		return
	}

	s.logger.Info("update triggered", "addr", addr, "uri", uri)
	w.WriteHeader(http.StatusAccepted)
}

// validAddress permits the characters of textual IPv4/IPv6 addresses and
// hostnames. Anything else would end up spliced into a URI, so reject it.
func validAddress(addr string) bool {
	for _, c := range addr {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c == ':' || c == '.' || c == '-' || c == '%':
		default:
			return false
		}
	}
	return true
}
