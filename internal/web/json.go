package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	errBadCode = errors.New("wrong code")
	errLocked  = errors.New("vehicle is locked")
	errTrueRPM = errors.New("true_rpm must be a positive integer")
	errNoRPM   = errors.New("no rpm signal")
)

// Lock commands accepted by /api/lock_cmd.
const (
	cmdLock    = "lock"
	cmdUnlock  = "unlock"
	cmdEnable  = "enable"
	cmdDisable = "disable"
)

// LockCmdRequest is the body of POST /api/lock_cmd.
type LockCmdRequest struct {
	Cmd  string `json:"cmd"`
	Pass string `json:"pass,omitempty"`
}

func parseLockCmd(body []byte) (LockCmdRequest, error) {
	var req LockCmdRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return req, fmt.Errorf("decode lock command: %w", err)
	}
	req.Cmd = strings.ToLower(strings.TrimSpace(req.Cmd))
	switch req.Cmd {
	case cmdLock, cmdEnable, cmdDisable:
	case cmdUnlock:
		if req.Pass == "" {
			return req, errors.New("unlock requires pass")
		}
	default:
		return req, fmt.Errorf("unknown command %q", req.Cmd)
	}
	return req, nil
}

type okResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type calibResponse struct {
	OK       bool    `json:"ok"`
	Measured float64 `json:"measured"`
	RPMScale float64 `json:"rpm_scale"`
}

type rpmResponse struct {
	RPM    int  `json:"rpm"`
	CanCut bool `json:"can_cut"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{OK: false, Error: err.Error()})
}
