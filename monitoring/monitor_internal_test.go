package monitoring

import (
	"encoding/json"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nxsim/nxsim/gmmu"
	"github.com/nxsim/nxsim/gpu"
	"github.com/nxsim/nxsim/nvflinger"
	"github.com/nxsim/nxsim/present"
	"github.com/nxsim/nxsim/queueing"
)

func get(m *Monitor, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	m.router().ServeHTTP(w, req)
	return w
}

var _ = Describe("Monitor", func() {
	var (
		m       *Monitor
		g       *gpu.GPU
		flinger *nvflinger.NVFlinger
	)

	BeforeEach(func() {
		g = gpu.New(gpu.Config{
			Memory:   gmmu.NewManager(gmmu.NewFlatMemory(1 << 20)),
			Renderer: present.NewRecordingRenderer(),
		})
		flinger = nvflinger.NewNVFlinger(
			nvflinger.NullFenceWaiter(), nil)

		m = NewMonitor()
		m.RegisterGPU(g)
		m.RegisterNVFlinger(flinger)
	})

	It("should serve ticks", func() {
		w := get(m, "/api/ticks")

		Expect(w.Code).To(Equal(200))
		Expect(w.Body.String()).To(HavePrefix("{\"ticks\":"))
	})

	It("should serve allocated syncpoints", func() {
		id, err := g.SyncpointManager().Allocate()
		Expect(err).NotTo(HaveOccurred())
		g.IncrementSyncpoint(id)

		w := get(m, "/api/syncpoints")

		var rsp []syncpointRsp
		Expect(json.Unmarshal(w.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp).To(HaveLen(1))
		Expect(rsp[0].ID).To(Equal(id))
		Expect(rsp[0].Value).To(Equal(uint32(1)))
	})

	It("should serve registered queues", func() {
		buf := queueing.NewBuffer("Test.Queue", 4)
		buf.Push(1)
		m.RegisterBuffer(buf)

		w := get(m, "/api/queues")

		Expect(w.Body.String()).To(ContainSubstring(
			"{\"queue\":\"Test.Queue\",\"level\":1,\"cap\":4}"))
	})

	It("should serve displays", func() {
		w := get(m, "/api/displays")

		var rsp []displayRsp
		Expect(json.Unmarshal(w.Body.Bytes(), &rsp)).To(Succeed())
		Expect(len(rsp)).To(BeNumerically(">=", 1))
		Expect(rsp[0].Name).To(Equal("Default"))
	})

	It("should list components and serve their details", func() {
		w := get(m, "/api/list_components")
		Expect(w.Body.String()).To(ContainSubstring("\"NVFlinger\""))

		w = get(m, "/api/component/NVFlinger")
		Expect(w.Code).To(Equal(200))

		w = get(m, "/api/component/NoSuchComponent")
		Expect(w.Code).To(Equal(404))
	})

	It("should track progress bars", func() {
		bar := m.CreateProgressBar("replay", 100)
		bar.IncrementInProgress(10)
		bar.MoveInProgressToFinished(4)

		w := get(m, "/api/progress")

		var rsp []ProgressBar
		Expect(json.Unmarshal(w.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp).To(HaveLen(1))
		Expect(rsp[0].Finished).To(Equal(uint64(4)))
		Expect(rsp[0].InProgress).To(Equal(uint64(6)))

		m.CompleteProgressBar(bar)
		w = get(m, "/api/progress")
		Expect(json.Unmarshal(w.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp).To(BeEmpty())
	})

	It("should serve an index page", func() {
		w := get(m, "/")

		Expect(w.Code).To(Equal(200))
		Expect(w.Body.String()).To(ContainSubstring("nxsim monitor"))
	})
})
