// Package web provides the HTTP status and configuration surface for the
// quickshifter daemon.
package web

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sweeney/quickshifter/internal/config"
	"github.com/sweeney/quickshifter/internal/logic"
	"github.com/sweeney/quickshifter/internal/status"
)

// TestCutDuration is the pulse length for /api/testcut.
const TestCutDuration = 50 * time.Millisecond

// Calibration sampling: the measured RPM is averaged over CalibWindow.
const (
	DefaultCalibWindow = time.Second
	calibInterval      = 5 * time.Millisecond
)

// maxBody caps request bodies; a full config document is well under 4 KiB.
const maxBody = 16 << 10

// Executor runs fn on the control loop goroutine and waits for it to finish.
// Every state machine mutation goes through it so HTTP requests never race a
// tick.
type Executor interface {
	Exec(ctx context.Context, fn func()) error
}

// RPMReader reports the current engine speed with the configured scale
// applied.
type RPMReader interface {
	RPM() int
}

// Deps are the collaborators a Server reads and acts on.
type Deps struct {
	Tracker *status.Tracker
	Log     *status.CutLog
	Config  config.Provider
	Guard   *logic.Guard
	// Output must be gated by Guard so test cuts are dropped while locked.
	Output logic.PulseOutput
	// RPM is sampled by /api/calib; nil disables calibration.
	RPM         RPMReader
	Exec        Executor
	Now         func() time.Time
	Logger      *slog.Logger
	CalibWindow time.Duration // zero means DefaultCalibWindow
}

// Server serves the status page and the JSON API over HTTP.
type Server struct {
	httpServer *http.Server
	d          Deps
	log        *slog.Logger
}

// New creates a Server listening on addr.
func New(addr string, d Deps) *Server {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.CalibWindow <= 0 {
		d.CalibWindow = DefaultCalibWindow
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{d: d, log: logger.With("component", "web")}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("GET /index.json", s.handleJSON)
	mux.HandleFunc("GET /api/rpm", s.handleRPM)
	mux.HandleFunc("GET /api/log", s.handleLog)
	mux.HandleFunc("POST /api/clearlog", s.handleClearLog)
	mux.HandleFunc("GET /api/config", s.handleGetConfig)
	mux.HandleFunc("POST /api/config", s.handleSetConfig)
	mux.HandleFunc("GET /api/lock_state", s.handleLockState)
	mux.HandleFunc("POST /api/lock_cmd", s.handleLockCmd)
	mux.HandleFunc("POST /api/testcut", s.handleTestCut)
	mux.HandleFunc("POST /api/calib", s.handleCalib)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.d.Tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, page{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Records:  lastN(s.d.Log.Records(), 10),
	})
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.d.Tracker.Snapshot()))
}

func (s *Server) handleRPM(w http.ResponseWriter, r *http.Request) {
	snap := s.d.Tracker.Snapshot()
	writeJSON(w, http.StatusOK, rpmResponse{RPM: snap.Cut.RPM, CanCut: snap.Cut.CanCut})
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatLog(s.d.Log.Records()))
}

func (s *Server) handleClearLog(w http.ResponseWriter, r *http.Request) {
	s.d.Log.Clear()
	s.log.Info("cut log cleared")
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	includeSecret := r.URL.Query().Get("include_secret") == "1"
	data, err := config.ExportJSON(s.d.Config.Get(), includeSecret)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var setErr error
	err = s.exec(r.Context(), func() {
		var next config.Snapshot
		next, setErr = config.ImportJSON(s.d.Config.Get(), body)
		if setErr != nil {
			return
		}
		setErr = s.d.Config.Set(next)
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if setErr != nil {
		writeError(w, http.StatusBadRequest, setErr)
		return
	}

	s.log.Info("config updated")
	s.handleGetConfig(w, r)
}

func (s *Server) handleLockState(w http.ResponseWriter, r *http.Request) {
	var st logic.LockStatus
	if err := s.exec(r.Context(), func() { st = s.d.Guard.Status() }); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, status.LockStateJSON(st))
}

func (s *Server) handleLockCmd(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req, err := parseLockCmd(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var (
		cmdErr   error
		rejected bool
		st       logic.LockStatus
	)
	err = s.exec(r.Context(), func() {
		now := s.d.Now()
		g := s.d.Guard
		switch req.Cmd {
		case cmdLock:
			g.ForceLock(now)
		case cmdUnlock:
			rejected = !g.AdminUnlock(req.Pass, now)
		case cmdEnable:
			_, cmdErr = g.EnableLock(now)
		case cmdDisable:
			cmdErr = g.DisableNoOutputChange(now)
		}
		st = g.Status()
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if cmdErr != nil {
		writeError(w, http.StatusInternalServerError, cmdErr)
		return
	}
	if rejected {
		s.log.Warn("admin unlock rejected")
		writeError(w, http.StatusForbidden, errBadCode)
		return
	}

	s.log.Info("lock command", "cmd", req.Cmd, "locked", st.Locked, "enabled", st.Enabled)
	writeJSON(w, http.StatusOK, status.LockStateJSON(st))
}

func (s *Server) handleTestCut(w http.ResponseWriter, r *http.Request) {
	line, err := config.ParseLine(r.URL.Query().Get("out"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var locked bool
	err = s.exec(r.Context(), func() {
		locked = s.d.Guard.IsLocked()
		s.d.Output.Pulse(line, TestCutDuration)
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if locked {
		writeError(w, http.StatusConflict, errLocked)
		return
	}

	s.log.Info("test cut", "line", line, "ms", TestCutDuration.Milliseconds())
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// handleCalib averages the measured RPM while the engine holds a known
// speed, then rescales so the reading matches true_rpm.
func (s *Server) handleCalib(w http.ResponseWriter, r *http.Request) {
	trueRPM, err := strconv.Atoi(r.FormValue("true_rpm"))
	if err != nil || trueRPM <= 0 {
		writeError(w, http.StatusBadRequest, errTrueRPM)
		return
	}
	if s.d.RPM == nil {
		writeError(w, http.StatusNotImplemented, errNoRPM)
		return
	}

	measured, err := s.sampleRPM(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if measured <= 0 {
		writeError(w, http.StatusConflict, errNoRPM)
		return
	}

	var (
		scale  float64
		setErr error
	)
	err = s.exec(r.Context(), func() {
		next := s.d.Config.Get()
		// measured already carries the old scale
		next.RPMScale = next.RPMScale * float64(trueRPM) / measured
		scale = next.RPMScale
		setErr = s.d.Config.Set(next)
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if setErr != nil {
		writeError(w, http.StatusBadRequest, setErr)
		return
	}

	s.log.Info("rpm calibrated", "true_rpm", trueRPM, "measured", measured, "rpm_scale", scale)
	writeJSON(w, http.StatusOK, calibResponse{OK: true, Measured: measured, RPMScale: scale})
}

// sampleRPM reads the meter on the loop goroutine every calibInterval for
// CalibWindow and returns the mean. Each read is one short Exec between
// ticks.
func (s *Server) sampleRPM(ctx context.Context) (float64, error) {
	done := time.NewTimer(s.d.CalibWindow)
	defer done.Stop()
	tick := time.NewTicker(calibInterval)
	defer tick.Stop()

	var sum, n int
	for {
		if err := s.exec(ctx, func() { sum += s.d.RPM.RPM() }); err != nil {
			return 0, err
		}
		n++

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-done.C:
			return float64(sum) / float64(n), nil
		case <-tick.C:
		}
	}
}

func (s *Server) exec(ctx context.Context, fn func()) error {
	if s.d.Exec == nil {
		return errors.New("control loop not running")
	}
	return s.d.Exec.Exec(ctx, fn)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

func lastN(recs []logic.CutRecord, n int) []logic.CutRecord {
	if len(recs) > n {
		recs = recs[len(recs)-n:]
	}
	// newest first for display
	out := make([]logic.CutRecord, len(recs))
	for i, r := range recs {
		out[len(recs)-1-i] = r
	}
	return out
}
