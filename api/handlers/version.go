package handlers

import (
	"net/http"
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// handleVersion returns the build the server was started from.
func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	build := s.cfg.Build
	if build.Version == "" {
		// Binaries built without LDFLAGS.
		build.Version = "dev"
	}
	s.writeJSON(w, http.StatusOK, build)
}
