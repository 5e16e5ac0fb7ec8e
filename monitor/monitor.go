// Package monitor serves a trace simulation over HTTP.
//
// The server starts runs on a fixed trace, reports their state and exposes
// the latest result, process resources, CPU profiles and Prometheus metrics.
package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/cachesim/cache"
	"github.com/sarchlab/cachesim/runner"
)

// StateIdle is reported by /api/status before the first run. Later states
// are the names of runner notification kinds.
const StateIdle = "idle"

// Monitor turns a trace into a server that runs it on request.
type Monitor struct {
	location   string
	portNumber int
	logger     *slog.Logger
	collector  *Collector
	runner     *runner.Runner
	router     *mux.Router
	server     *http.Server
	profileDur time.Duration

	runnerOpts []runner.Option

	mu      sync.Mutex
	state   string
	runID   string
	lastErr error
	result  *runner.Result
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithPortNumber sets the port to listen on. 0 picks a free port.
func WithPortNumber(port int) Option {
	return func(m *Monitor) {
		m.portNumber = port
	}
}

// WithLogger sets the logger of the monitor and its runner.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithRunnerOptions passes extra options, such as loaders, listeners or
// access observers, to the runner owned by the monitor.
func WithRunnerOptions(opts ...runner.Option) Option {
	return func(m *Monitor) {
		m.runnerOpts = append(m.runnerOpts, opts...)
	}
}

// WithProfileDuration sets how long /api/profile samples the CPU.
func WithProfileDuration(d time.Duration) Option {
	return func(m *Monitor) {
		m.profileDur = d
	}
}

// New creates a Monitor that runs the trace at location.
func New(location string, opts ...Option) (*Monitor, error) {
	collector, err := NewCollector()
	if err != nil {
		return nil, err
	}

	m := &Monitor{
		location:   location,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		collector:  collector,
		profileDur: time.Second,
		state:      StateIdle,
	}

	for _, opt := range opts {
		opt(m)
	}

	runnerOpts := []runner.Option{
		runner.WithLogger(m.logger),
		runner.WithListener(m),
		runner.WithListener(collector),
		runner.WithAccessObserver(collector.ObserveAccess),
	}
	m.runner = runner.New(append(runnerOpts, m.runnerOpts...)...)
	m.router = m.routes()

	return m, nil
}

func (m *Monitor) routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/run", m.run).Methods(http.MethodPost)
	r.HandleFunc("/api/status", m.status).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", m.stats).Methods(http.MethodGet)
	r.HandleFunc("/api/lines", m.listLines).Methods(http.MethodGet)
	r.HandleFunc("/api/lines/{line}", m.lineDetails).Methods(http.MethodGet)
	r.HandleFunc("/api/descriptor", m.descriptor).Methods(http.MethodGet)
	r.HandleFunc("/api/resource", m.listResources).Methods(http.MethodGet)
	r.HandleFunc("/api/profile", m.collectProfile).Methods(http.MethodGet)
	r.Handle("/metrics", m.collector.Handler())

	return r
}

// Handler returns the HTTP handler of the monitor.
func (m *Monitor) Handler() http.Handler {
	return m.router
}

// Runner returns the runner owned by the monitor.
func (m *Monitor) Runner() *runner.Runner {
	return m.runner
}

// StartServer listens on the configured port and serves in the background.
// It returns the URL of the server.
func (m *Monitor) StartServer() (string, error) {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	if err != nil {
		return "", fmt.Errorf("failed to listen: %w", err)
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)

	m.server = &http.Server{
		Handler:           m.router,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("monitor server stopped", "err", err)
		}
	}()

	m.logger.Info("monitoring simulation", "url", url)

	return url, nil
}

// OpenBrowser opens the status page of a started server.
func (m *Monitor) OpenBrowser(url string) error {
	return browser.OpenURL(url + "/api/status")
}

// Shutdown stops the server started by StartServer.
func (m *Monitor) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

// RunStarted implements runner.Listener.
func (m *Monitor) RunStarted(runID, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = runner.Running.String()
	m.runID = runID
	m.lastErr = nil
}

// RunSucceeded implements runner.Listener. Outcomes of runs other than the
// latest started one are ignored.
func (m *Monitor) RunSucceeded(result *runner.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if result.RunID != m.runID {
		return
	}

	m.state = runner.Succeeded.String()
	m.result = result
}

// RunFailed implements runner.Listener.
func (m *Monitor) RunFailed(runID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if runID != m.runID {
		return
	}

	m.state = runner.Failed.String()
	m.lastErr = err
}

func (m *Monitor) latest() *runner.Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.result
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

var errNoResult = errors.New("no completed run")

type runRsp struct {
	RunID string `json:"run_id"`
}

func (m *Monitor) run(w http.ResponseWriter, _ *http.Request) {
	// Runs outlive the request.
	runID, _, err := m.runner.Start(context.Background(), m.location)
	if errors.Is(err, runner.ErrBusy) {
		writeError(w, http.StatusConflict, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusAccepted, runRsp{RunID: runID})
}

type statusRsp struct {
	State    string `json:"state"`
	RunID    string `json:"run_id,omitempty"`
	Location string `json:"location"`
	Error    string `json:"error,omitempty"`
}

func (m *Monitor) status(w http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	rsp := statusRsp{
		State:    m.state,
		RunID:    m.runID,
		Location: m.location,
	}
	if m.lastErr != nil {
		rsp.Error = m.lastErr.Error()
	}
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, rsp)
}

type statsRsp struct {
	RunID     string  `json:"run_id"`
	Accesses  uint64  `json:"accesses"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
	Summary   string  `json:"summary"`
}

func (m *Monitor) stats(w http.ResponseWriter, _ *http.Request) {
	res := m.latest()
	if res == nil {
		writeError(w, http.StatusNotFound, errNoResult)
		return
	}

	s := res.Stats
	writeJSON(w, http.StatusOK, statsRsp{
		RunID:     res.RunID,
		Accesses:  s.Accesses(),
		Hits:      s.Hits(),
		Misses:    s.Misses(),
		Evictions: s.Evictions(),
		HitRate:   s.HitRate(),
		Summary:   cache.Summary(s, len(res.Trace.Addresses)),
	})
}

func (m *Monitor) listLines(w http.ResponseWriter, _ *http.Request) {
	res := m.latest()
	if res == nil {
		writeError(w, http.StatusNotFound, errNoResult)
		return
	}

	writeJSON(w, http.StatusOK, cache.FormatTable(res.Trace.Descriptor, res.Lines))
}

type lineRsp struct {
	Line    int           `json:"line"`
	Set     uint64        `json:"set"`
	Entries []cache.Entry `json:"entries"`
}

func (m *Monitor) lineDetails(w http.ResponseWriter, r *http.Request) {
	line, err := strconv.Atoi(mux.Vars(r)["line"])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid line: %w", err))
		return
	}

	res := m.latest()
	if res == nil {
		writeError(w, http.StatusNotFound, errNoResult)
		return
	}

	if line < 0 || line >= len(res.Lines) {
		writeError(w, http.StatusNotFound,
			fmt.Errorf("line %d out of range [0, %d)", line, len(res.Lines)))
		return
	}

	entries := res.Lines[line]
	if entries == nil {
		entries = cache.Line{}
	}

	writeJSON(w, http.StatusOK, lineRsp{
		Line:    line,
		Set:     res.Trace.Descriptor.SetOf(line),
		Entries: entries,
	})
}

func (m *Monitor) descriptor(w http.ResponseWriter, _ *http.Request) {
	res := m.latest()
	if res == nil {
		writeError(w, http.StatusNotFound, errNoResult)
		return
	}

	d := res.Trace.Descriptor

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&d)
	serializer.SetMaxDepth(1)

	buf := bytes.NewBuffer(nil)
	if err := serializer.Serialize(buf); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(buf.Bytes())
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	memInfo, err := proc.MemoryInfo()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memInfo.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}

	time.Sleep(m.profileDur)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, prof)
}
