package hostlink

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/setohima/UnityMCP-VRC/internal/logx"
)

// State is what the host's local status listener reports. It is a
// debugging surface, not part of the bridge wire contract.
type State struct {
	State       string    `json:"state"`
	Connected   bool      `json:"connected"`
	LastError   string    `json:"last_error"`
	LastPong    time.Time `json:"last_pong"`
	CommandsRun int       `json:"commands_run"`
	Version     string    `json:"version"`
}

type VersionInfo struct {
	Version   string `json:"version"`
	BuildSHA  string `json:"build_sha"`
	BuildDate string `json:"build_date"`
}

var (
	stateMu   sync.RWMutex
	stateData = State{State: string(StateIdle)}
	buildInfo = VersionInfo{Version: "dev", BuildSHA: "unknown", BuildDate: "unknown"}
)

func SetBuildInfo(v, sha, date string) {
	buildInfo = VersionInfo{Version: v, BuildSHA: sha, BuildDate: date}
	stateMu.Lock()
	stateData.Version = v
	stateMu.Unlock()
}

func GetVersionInfo() VersionInfo {
	return buildInfo
}

func SetLinkState(s string) {
	stateMu.Lock()
	stateData.State = s
	stateMu.Unlock()
}

func SetConnected(v bool) {
	stateMu.Lock()
	stateData.Connected = v
	stateMu.Unlock()
	setConnectedGauge(v)
}

func SetLastError(err string) {
	stateMu.Lock()
	stateData.LastError = err
	stateMu.Unlock()
}

func SetLastPong(t time.Time) {
	stateMu.Lock()
	stateData.LastPong = t
	stateMu.Unlock()
}

func incCommands() {
	stateMu.Lock()
	stateData.CommandsRun++
	stateMu.Unlock()
}

func GetState() State {
	stateMu.RLock()
	defer stateMu.RUnlock()
	return stateData
}

// StartStatusServer exposes /status and /version on addr and returns the
// address it is actually listening on.
func StartStatusServer(ctx context.Context, addr string) (string, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(GetState())
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(GetVersionInfo())
	})

	srv := &http.Server{Handler: mux}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	actual := ln.Addr().String()
	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(c)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logx.Log.Error().Err(err).Str("addr", actual).Msg("status server error")
		}
	}()
	return actual, nil
}
