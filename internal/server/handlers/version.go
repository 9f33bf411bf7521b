package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
)

var (
	versionMu   sync.RWMutex
	versionInfo = struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}{Name: "goconflux", Version: "dev"}
)

// SetVersionInfo records the build identity served by /version.
func SetVersionInfo(name, version string) {
	versionMu.Lock()
	defer versionMu.Unlock()
	if name != "" {
		versionInfo.Name = name
	}
	if version != "" {
		versionInfo.Version = version
	}
}

// VersionHandler serves the build identity.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	versionMu.RLock()
	info := versionInfo
	versionMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}
