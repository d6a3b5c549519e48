package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeRecorder struct {
	tables  map[string][]any
	flushed int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{tables: make(map[string][]any)}
}

func (r *fakeRecorder) CreateTable(tableName string, _ any) {
	r.tables[tableName] = []any{}
}

func (r *fakeRecorder) InsertData(tableName string, entry any) {
	r.tables[tableName] = append(r.tables[tableName], entry)
}

func (r *fakeRecorder) ListTables() []string {
	tables := make([]string, 0, len(r.tables))
	for table := range r.tables {
		tables = append(tables, table)
	}
	return tables
}

func (r *fakeRecorder) Flush() {
	r.flushed++
}

var _ = Describe("DBTracer", func() {
	var (
		ticks    *stubTicks
		recorder *fakeRecorder
		tracer   *DBTracer
	)

	BeforeEach(func() {
		ticks = &stubTicks{}
		recorder = newFakeRecorder()
		tracer = NewDBTracer(ticks, recorder)
	})

	It("should create the index table up front", func() {
		Expect(recorder.tables).To(HaveKey("trace"))
	})

	It("should write completed tasks while tracing", func() {
		tracer.EnableTracing()
		Expect(tracer.IsTracing()).To(BeTrue())

		ticks.now = 100
		tracer.StartTask(Task{
			ID: "t1", Kind: "command_list",
			What: "dispatch", Location: "GPU.DmaPusher",
		})
		ticks.now = 150
		tracer.EndTask(Task{ID: "t1"})

		Expect(recorder.tables["trace1"]).To(HaveLen(1))
		entry := recorder.tables["trace1"][0].(taskTableEntry)
		Expect(entry.StartTicks).To(Equal(uint64(100)))
		Expect(entry.EndTicks).To(Equal(uint64(150)))
	})

	It("should finalize in-flight tasks when the session stops", func() {
		tracer.EnableTracing()

		ticks.now = 100
		tracer.StartTask(Task{
			ID: "t1", Kind: "frame",
			What: "compose", Location: "NVFlinger",
		})
		ticks.now = 400
		tracer.StopTracing()

		Expect(tracer.IsTracing()).To(BeFalse())
		Expect(recorder.tables["trace1"]).To(HaveLen(1))
		entry := recorder.tables["trace1"][0].(taskTableEntry)
		Expect(entry.EndTicks).To(Equal(uint64(400)))

		Expect(recorder.tables["trace"]).To(HaveLen(1))
		index := recorder.tables["trace"][0].(traceIndexEntry)
		Expect(index.TableName).To(Equal("trace1"))
		Expect(index.SessionEnd).To(Equal(uint64(400)))
	})

	It("should open a fresh table per session", func() {
		tracer.EnableTracing()
		tracer.StopTracing()
		tracer.EnableTracing()

		Expect(recorder.tables).To(HaveKey("trace1"))
		Expect(recorder.tables).To(HaveKey("trace2"))
	})

	It("should not record tasks outside a session", func() {
		ticks.now = 100
		tracer.StartTask(Task{
			ID: "t1", Kind: "command_list",
			What: "dispatch", Location: "GPU.DmaPusher",
		})
		tracer.EndTask(Task{ID: "t1"})

		Expect(recorder.tables).NotTo(HaveKey("trace1"))
	})

	It("should panic on invalid tasks", func() {
		Expect(func() {
			tracer.StartTask(Task{ID: "t1"})
		}).To(Panic())
	})
})
