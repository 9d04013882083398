package watchdog_test

import (
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sentovic/jack1/engine/watchdog"
)

type fakeKiller struct {
	calls atomic.Int32
	pgids []int
}

func (f *fakeKiller) KillProcessGroup(pgid int) error {
	f.calls.Add(1)
	f.pgids = append(f.pgids, pgid)
	return nil
}

var _ = Describe("Watchdog", func() {
	var killer *fakeKiller

	BeforeEach(func() {
		killer = &fakeKiller{}
	})

	It("does not fire while the cycle thread keeps marking itself live", func() {
		w := watchdog.New(killer, nil, nil, 999)
		w.Interval = 20 * time.Millisecond

		done := make(chan struct{})
		go func() {
			defer close(done)
			w.Run()
		}()

		for i := 0; i < 5; i++ {
			w.MarkLive()
			time.Sleep(15 * time.Millisecond)
		}
		w.Stop()

		Eventually(done).Should(BeClosed())
		Expect(killer.calls.Load()).To(BeZero())
	})

	It("escalates to SIGKILL on the engine process group when stalled", func() {
		w := watchdog.New(killer, nil, nil, 999)
		w.Interval = 10 * time.Millisecond

		done := make(chan struct{})
		go func() {
			defer close(done)
			w.Run()
		}()

		Eventually(done, time.Second).Should(BeClosed())
		Expect(killer.calls.Load()).To(BeNumerically(">=", int32(1)))
		Expect(killer.pgids).To(ContainElement(999))
	})
})
