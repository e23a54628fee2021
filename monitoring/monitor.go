// Package monitoring turns a running cosimulation into a small web server
// so the session can be inspected and controlled from outside.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/cosimlab/cosim/bridge"
	"github.com/cosimlab/cosim/kernel"
	"github.com/cosimlab/cosim/monitoring/web"
	"github.com/cosimlab/cosim/sched"
)

// Monitor serves the state of one cosimulation session over HTTP: the
// current simulated time, the scheduler's tasks, and the values of design
// signals.
type Monitor struct {
	kernel     *kernel.Kernel
	ctx        *bridge.Context
	scheduler  *sched.Scheduler
	portNumber int
	launch     bool

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n",
			portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowserLaunch makes StartServer open the dashboard in a browser.
func (m *Monitor) WithBrowserLaunch() *Monitor {
	m.launch = true

	return m
}

// RegisterKernel registers the kernel that drives the session.
func (m *Monitor) RegisterKernel(k *kernel.Kernel) {
	m.kernel = k
}

// RegisterContext registers the adapter context used for signal access.
func (m *Monitor) RegisterContext(ctx *bridge.Context) {
	m.ctx = ctx
}

// RegisterScheduler registers the scheduler whose tasks are inspected.
func (m *Monitor) RegisterScheduler(s *sched.Scheduler) {
	m.scheduler = s
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        kernel.GetIDGenerator().Generate(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar from the dashboard.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// StartServer starts the monitor as a web server.
func (m *Monitor) StartServer() {
	r := m.router()

	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", url)

	if m.launch {
		_ = browser.OpenURL(url)
	}

	go func() {
		err = http.Serve(listener, r)
		dieOnErr(err)
	}()
}

func (m *Monitor) router() *mux.Router {
	r := mux.NewRouter()

	fServer := http.FileServer(web.GetAssets())
	r.HandleFunc("/api/pause", m.pauseKernel)
	r.HandleFunc("/api/continue", m.continueKernel)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/tasks", m.listTasks)
	r.HandleFunc("/api/task/{id}", m.taskDetails)
	r.HandleFunc("/api/signal/{path}", m.signalValue)
	r.HandleFunc("/api/hierarchy/{path}", m.listHierarchy)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/").Handler(fServer)

	return r
}

func (m *Monitor) pauseKernel(w http.ResponseWriter, _ *http.Request) {
	m.kernel.Pause()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) continueKernel(w http.ResponseWriter, _ *http.Request) {
	m.kernel.Continue()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	now := m.kernel.CurrentTime()
	fmt.Fprintf(w, "{\"now_fs\":%d,\"timescale\":\"%s\"}",
		uint64(now), m.kernel.Timescale())
}

type taskRsp struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

func (m *Monitor) listTasks(w http.ResponseWriter, _ *http.Request) {
	tasks := m.scheduler.Tasks()

	rsp := make([]taskRsp, 0, len(tasks))
	for _, t := range tasks {
		rsp = append(rsp, taskRsp{
			ID:    t.ID(),
			Name:  t.Name(),
			State: t.State().String(),
		})
	}

	bytes, err := json.Marshal(rsp)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) taskDetails(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	task := m.findTaskOr404(w, id)
	if task == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(task)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

func (m *Monitor) findTaskOr404(
	w http.ResponseWriter,
	id string,
) *sched.Task {
	for _, t := range m.scheduler.Tasks() {
		if t.ID() == id {
			return t
		}
	}

	w.WriteHeader(http.StatusNotFound)
	_, err := w.Write([]byte("Task not found"))
	dieOnErr(err)

	return nil
}

type signalRsp struct {
	Path  string `json:"path"`
	Kind  string `json:"kind"`
	Len   int    `json:"len"`
	Value string `json:"value"`
}

func (m *Monitor) signalValue(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]

	h, ok := m.ctx.RootHandle(path)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, "Signal %s not found", path)

		return
	}

	value, err := h.BinStr()
	if err != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	bytes, err := json.Marshal(signalRsp{
		Path:  path,
		Kind:  h.Kind().String(),
		Len:   h.Len(),
		Value: value,
	})
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) listHierarchy(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]

	h, ok := m.ctx.RootHandle(path)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, "Scope %s not found", path)

		return
	}

	var names []string
	it := m.ctx.IterateChildren(h)
	for {
		res, more := it.Next()
		if !more {
			break
		}

		if res.Named() {
			names = append(names, res.Handle.Name())
		}
	}

	bytes, err := json.Marshal(names)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	bytes, err := json.Marshal(m.progressBars)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	proc, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := proc.CPUPercent()
	dieOnErr(err)

	memoryInfo, err := proc.MemoryInfo()
	dieOnErr(err)

	rsp := resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memoryInfo.RSS,
	}

	bytes, err := json.Marshal(rsp)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	rspBytes, err := json.Marshal(prof)
	dieOnErr(err)

	_, err = w.Write(rspBytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		panic(err)
	}
}
