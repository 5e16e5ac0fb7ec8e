package runner_test

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/cachesim/cache"
	"github.com/sarchlab/cachesim/runner"
	"github.com/sarchlab/cachesim/trace"
)

func directMapped() *trace.Trace {
	return &trace.Trace{
		Descriptor: cache.Descriptor{
			AddrSize:  8,
			BlockSize: 2,
			NumBlocks: 2,
			Assoc:     1,
			Strategy:  cache.StrategyFirst,
		},
		Addresses: []uint64{0x00, 0x04, 0x00, 0x08},
	}
}

func staticLoader(t *trace.Trace) runner.Loader {
	return func(context.Context, string) (*trace.Trace, error) {
		return t, nil
	}
}

func drain(ch <-chan runner.Notification) []runner.Notification {
	var out []runner.Notification
	for n := range ch {
		out = append(out, n)
	}

	return out
}

var _ = Describe("Runner", func() {
	var (
		mockCtrl *gomock.Controller
		listener *MockListener
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		listener = NewMockListener(mockCtrl)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should report running then succeeded", func() {
		r := runner.New(
			runner.WithLoader(staticLoader(directMapped())),
			runner.WithListener(listener),
		)

		gomock.InOrder(
			listener.EXPECT().RunStarted(gomock.Any(), "trace.txt"),
			listener.EXPECT().RunSucceeded(gomock.Any()).
				Do(func(res *runner.Result) {
					Expect(res.Location).To(Equal("trace.txt"))
					Expect(res.Stats.Hits()).To(Equal(uint64(1)))
				}),
		)

		runID, ch, err := r.Start(context.Background(), "trace.txt")
		Expect(err).NotTo(HaveOccurred())
		Expect(runID).NotTo(BeEmpty())

		ns := drain(ch)
		Expect(ns).To(HaveLen(2))
		Expect(ns[0].Kind).To(Equal(runner.Running))
		Expect(ns[0].RunID).To(Equal(runID))
		Expect(ns[1].Kind).To(Equal(runner.Succeeded))
		Expect(ns[1].RunID).To(Equal(runID))

		res := ns[1].Result
		Expect(res.RunID).To(Equal(runID))
		Expect(res.Stats.Misses()).To(Equal(uint64(3)))
		Expect(res.Stats.Evictions()).To(Equal(uint64(1)))
		Expect(res.Lines).To(HaveLen(2))
		Expect(r.Busy()).To(BeFalse())
	})

	It("should report running then failed when loading fails", func() {
		loadErr := errors.New("no such trace")
		r := runner.New(
			runner.WithLoader(func(context.Context, string) (*trace.Trace, error) {
				return nil, loadErr
			}),
			runner.WithListener(listener),
		)

		gomock.InOrder(
			listener.EXPECT().RunStarted(gomock.Any(), "missing.txt"),
			listener.EXPECT().RunFailed(gomock.Any(), loadErr),
		)

		_, ch, err := r.Start(context.Background(), "missing.txt")
		Expect(err).NotTo(HaveOccurred())

		ns := drain(ch)
		Expect(ns).To(HaveLen(2))
		Expect(ns[0].Kind).To(Equal(runner.Running))
		Expect(ns[1].Kind).To(Equal(runner.Failed))
		Expect(ns[1].Err).To(MatchError(loadErr))
		Expect(ns[1].Result).To(BeNil())
	})

	It("should fail runs with an invalid geometry", func() {
		t := directMapped()
		t.Descriptor.Assoc = 3

		r := runner.New(runner.WithLoader(staticLoader(t)))

		_, err := r.Run(context.Background(), "bad.txt")
		Expect(err).To(MatchError(cache.ErrInvalidGeometry))
		Expect(r.Busy()).To(BeFalse())
	})

	It("should refuse a second run while one is in flight", func() {
		gate := make(chan struct{})
		r := runner.New(runner.WithLoader(
			func(context.Context, string) (*trace.Trace, error) {
				<-gate
				return directMapped(), nil
			}))

		_, ch, err := r.Start(context.Background(), "a.txt")
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Busy()).To(BeTrue())

		_, _, err = r.Start(context.Background(), "b.txt")
		Expect(err).To(MatchError(runner.ErrBusy))

		close(gate)
		drain(ch)

		Expect(r.Busy()).To(BeFalse())
		_, err = r.Run(context.Background(), "c.txt")
		Expect(err).NotTo(HaveOccurred())
	})

	It("should stay busy until the outcome is delivered", func() {
		inListener := make(chan struct{})
		release := make(chan struct{})

		r := runner.New(
			runner.WithLoader(staticLoader(directMapped())),
			runner.WithListener(listener),
		)

		listener.EXPECT().RunStarted(gomock.Any(), "a.txt")
		listener.EXPECT().RunSucceeded(gomock.Any()).
			Do(func(*runner.Result) {
				close(inListener)
				<-release
			})

		_, ch, err := r.Start(context.Background(), "a.txt")
		Expect(err).NotTo(HaveOccurred())
		Expect((<-ch).Kind).To(Equal(runner.Running))

		<-inListener
		_, _, err = r.Start(context.Background(), "b.txt")
		Expect(err).To(MatchError(runner.ErrBusy))
		Expect(r.Busy()).To(BeTrue())

		close(release)
		ns := drain(ch)
		Expect(ns).To(HaveLen(1))
		Expect(ns[0].Kind).To(Equal(runner.Succeeded))
		Expect(r.Busy()).To(BeFalse())
	})

	It("should be idle when Run returns", func() {
		r := runner.New(runner.WithLoader(staticLoader(directMapped())))

		_, err := r.Run(context.Background(), "trace.txt")
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Busy()).To(BeFalse())
	})

	It("should pass the run ID to access observers", func() {
		var (
			mu       sync.Mutex
			accesses []cache.Access
			ids      []string
		)

		r := runner.New(
			runner.WithLoader(staticLoader(directMapped())),
			runner.WithAccessObserver(func(runID string, a cache.Access) {
				mu.Lock()
				defer mu.Unlock()
				ids = append(ids, runID)
				accesses = append(accesses, a)
			}),
		)

		res, err := r.Run(context.Background(), "trace.txt")
		Expect(err).NotTo(HaveOccurred())

		mu.Lock()
		defer mu.Unlock()
		Expect(accesses).To(HaveLen(4))
		for _, id := range ids {
			Expect(id).To(Equal(res.RunID))
		}
		Expect(accesses[2].Hit).To(BeTrue())
		Expect(accesses[3].Evicted).To(BeTrue())
	})

	It("should give every run a distinct ID", func() {
		r := runner.New(runner.WithLoader(staticLoader(directMapped())))

		a, err := r.Run(context.Background(), "trace.txt")
		Expect(err).NotTo(HaveOccurred())
		b, err := r.Run(context.Background(), "trace.txt")
		Expect(err).NotTo(HaveOccurred())

		Expect(a.RunID).NotTo(Equal(b.RunID))
	})
})

var _ = Describe("Kind", func() {
	It("should have readable names", func() {
		Expect(runner.Running.String()).To(Equal("running"))
		Expect(runner.Succeeded.String()).To(Equal("succeeded"))
		Expect(runner.Failed.String()).To(Equal("failed"))
		Expect(runner.Kind(7).String()).To(Equal("Kind(7)"))
	})
})
