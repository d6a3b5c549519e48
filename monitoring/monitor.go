// Package monitoring turns a running emulation into a small web server so
// that syncpoints, submission queues, and displays can be inspected from a
// browser while a title runs.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strconv"
	"sync"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/nxsim/nxsim/clock"
	"github.com/nxsim/nxsim/gpu"
	"github.com/nxsim/nxsim/hooking"
	"github.com/nxsim/nxsim/nvflinger"
	"github.com/nxsim/nxsim/nvsync"
	"github.com/nxsim/nxsim/queueing"
)

// Monitor serves the state of a running emulation over HTTP.
type Monitor struct {
	gpu        *gpu.GPU
	flinger    *nvflinger.NVFlinger
	components []hooking.Named
	buffers    []queueing.Buffer
	portNumber int

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitoring server.
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

// RegisterGPU registers the GPU whose syncpoints and queues are served.
func (m *Monitor) RegisterGPU(g *gpu.GPU) {
	m.gpu = g

	if q := g.SubmissionQueue(); q != nil {
		m.RegisterBuffer(q)
	}
}

// RegisterNVFlinger registers the compositor whose displays are served.
func (m *Monitor) RegisterNVFlinger(f *nvflinger.NVFlinger) {
	m.flinger = f
	m.RegisterComponent(f)
}

// RegisterComponent registers a named component for state inspection.
func (m *Monitor) RegisterComponent(c hooking.Named) {
	m.components = append(m.components, c)
}

// RegisterBuffer registers a queue whose fill level is served.
func (m *Monitor) RegisterBuffer(b queueing.Buffer) {
	m.buffers = append(m.buffers, b)
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        clock.GetIDGenerator().Generate(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar from the webpage.
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

func (m *Monitor) router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/ticks", m.ticks)
	r.HandleFunc("/api/syncpoints", m.listSyncpoints)
	r.HandleFunc("/api/queues", m.listQueues)
	r.HandleFunc("/api/displays", m.listDisplays)
	r.HandleFunc("/api/list_components", m.listComponents)
	r.HandleFunc("/api/component/{name}", m.listComponentDetails)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.HandleFunc("/", m.index)

	return r
}

// StartServer starts the monitoring web server and returns the port it
// listens on.
func (m *Monitor) StartServer() int {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	port := listener.Addr().(*net.TCPAddr).Port
	fmt.Fprintf(os.Stderr,
		"Monitoring emulation with http://localhost:%d\n", port)

	go func() {
		err := http.Serve(listener, m.router())
		dieOnErr(err)
	}()

	return port
}

func (m *Monitor) index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, indexPage)
}

func (m *Monitor) ticks(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprintf(w, "{\"ticks\":%d}", m.gpu.GetTicks())
}

type syncpointRsp struct {
	ID    uint32 `json:"id"`
	Value uint32 `json:"value"`
	Max   uint32 `json:"max"`
}

func (m *Monitor) listSyncpoints(w http.ResponseWriter, _ *http.Request) {
	manager := m.gpu.SyncpointManager()

	rsp := make([]syncpointRsp, 0)
	for id := uint32(0); id < nvsync.NumSyncpoints; id++ {
		if !manager.IsAllocated(id) {
			continue
		}

		rsp = append(rsp, syncpointRsp{
			ID:    id,
			Value: m.gpu.SyncpointValue(id),
			Max:   manager.GetSyncpointMax(id),
		})
	}

	writeJSON(w, rsp)
}

func (m *Monitor) listQueues(w http.ResponseWriter, _ *http.Request) {
	sortedBuffers := make([]queueing.Buffer, len(m.buffers))
	copy(sortedBuffers, m.buffers)

	sort.Slice(sortedBuffers, func(i, j int) bool {
		return bufferPercent(sortedBuffers[i]) > bufferPercent(sortedBuffers[j])
	})

	fmt.Fprint(w, "[")
	for i, b := range sortedBuffers {
		if i > 0 {
			fmt.Fprint(w, ",")
		}

		fmt.Fprintf(w, "{\"queue\":\"%s\",\"level\":%d,\"cap\":%d}",
			b.Name(), b.Size(), b.Capacity())
	}
	fmt.Fprint(w, "]")
}

func bufferPercent(b queueing.Buffer) float64 {
	return float64(b.Size()) / float64(b.Capacity())
}

type displayRsp struct {
	ID        uint64 `json:"id"`
	Name      string `json:"name"`
	NumLayers int    `json:"num_layers"`
}

func (m *Monitor) listDisplays(w http.ResponseWriter, _ *http.Request) {
	rsp := make([]displayRsp, 0)
	for _, d := range m.flinger.Displays() {
		rsp = append(rsp, displayRsp{
			ID:        d.ID,
			Name:      d.Name,
			NumLayers: d.NumLayers(),
		})
	}

	writeJSON(w, rsp)
}

func (m *Monitor) listComponents(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprint(w, "[")
	for i, c := range m.components {
		if i > 0 {
			fmt.Fprint(w, ",")
		}

		fmt.Fprintf(w, "\"%s\"", c.Name())
	}
	fmt.Fprint(w, "]")
}

func (m *Monitor) listComponentDetails(
	w http.ResponseWriter,
	r *http.Request,
) {
	name := mux.Vars(r)["name"]

	component := m.findComponentOr404(w, name)
	if component == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(component)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

func (m *Monitor) findComponentOr404(
	w http.ResponseWriter,
	name string,
) hooking.Named {
	var component hooking.Named
	for _, c := range m.components {
		if c.Name() == name {
			component = c
		}
	}

	if component == nil {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Component not found"))
		dieOnErr(err)
	}

	return component
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	writeJSON(w, m.progressBars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
