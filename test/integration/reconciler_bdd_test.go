//go:build integration

package integration

import (
	"context"
	"errors"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/xgate/internal/config"
	"github.com/eliteGoblin/focusd/xgate/internal/daemon"
	"github.com/eliteGoblin/focusd/xgate/internal/domain"
	"github.com/eliteGoblin/focusd/xgate/internal/history"
	"github.com/eliteGoblin/focusd/xgate/internal/infra"
	"github.com/eliteGoblin/focusd/xgate/test/fixtures"
)

const preamble = "127.0.0.1\tlocalhost\n::1\tlocalhost\n"

var claude = domain.ProcessRecord{PID: "4242", PPID: "1", TTY: "ttys001", CPUPercent: 35, Command: "claude --resume"}

var _ = Describe("Reconciler", func() {
	var (
		ctx        context.Context
		tmpDir     string
		gate       *fixtures.FakeGate
		scanner    *fixtures.FakeScanner
		flusher    *fixtures.CountingFlusher
		store      *history.Store
		reconciler *daemon.Reconciler
	)

	writeConfig := func(mutate func(*config.Config)) {
		c := config.Default()
		c.Blocklist = []string{"x.com"}
		c.Process.ActiveGraceSeconds = 0
		c.Process.EnableNettop = false
		if mutate != nil {
			mutate(&c)
		}
		Expect(gate.WriteConfig(c)).To(Succeed())
	}

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		tmpDir, err = os.MkdirTemp("", "xgate-integration-*")
		Expect(err).NotTo(HaveOccurred())

		gate, err = fixtures.NewFakeGate(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		scanner = &fixtures.FakeScanner{}
		flusher = &fixtures.CountingFlusher{}

		store, err = history.Open(":memory:")
		Expect(err).NotTo(HaveOccurred())

		reconciler = daemon.NewReconciler(
			daemon.ReconcilerConfig{ConfigPath: gate.ConfigPath, Version: "test", CompatVersion: 2},
			scanner,
			fixtures.NoNet{},
			infra.NewHostsFile(gate.HostsPath),
			infra.NewStateFile(gate.StatePath),
			flusher,
			zap.NewNop(),
		).WithRecorder(store)
	})

	AfterEach(func() {
		store.Close()
		os.RemoveAll(tmpDir)
	})

	Describe("Tick", func() {
		Context("in reward mode with no agent running", func() {
			It("should block the configured domains", func() {
				writeConfig(nil)

				state := reconciler.Tick(ctx)

				Expect(state.Block).To(BeTrue())
				Expect(gate.Hosts()).To(Equal(preamble + "\n" +
					"# xgate:start\n" +
					"0.0.0.0 x.com\n" +
					"::1 x.com\n" +
					"0.0.0.0 www.x.com\n" +
					"::1 www.x.com\n" +
					"# xgate:end\n"))
				Expect(flusher.Count()).To(Equal(1))
			})
		})

		Context("when the agent starts working", func() {
			It("should unblock and leave the rest of the file alone", func() {
				writeConfig(nil)
				reconciler.Tick(ctx)

				scanner.Set(claude)
				state := reconciler.Tick(ctx)

				Expect(state.Block).To(BeFalse())
				Expect(state.ProcessActive).To(BeTrue())
				Expect(state.Evidence).To(Equal([]string{"cpu"}))
				Expect(gate.Hosts()).To(HavePrefix(preamble))
				Expect(gate.Hosts()).NotTo(ContainSubstring("xgate"))
				Expect(flusher.Count()).To(Equal(2))
			})
		})

		Context("when nothing changes between ticks", func() {
			It("should not rewrite the hosts file", func() {
				writeConfig(nil)
				reconciler.Tick(ctx)
				reconciler.Tick(ctx)
				reconciler.Tick(ctx)

				Expect(flusher.Count()).To(Equal(1))

				transitions, err := store.Recent(ctx, 10)
				Expect(err).NotTo(HaveOccurred())
				Expect(transitions).To(HaveLen(1))
				Expect(transitions[0].Block).To(BeTrue())
				Expect(transitions[0].Reasons).To(Equal([]string{"activity"}))
			})
		})

		Context("when the config file is missing", func() {
			It("should fail open without touching the hosts file", func() {
				state := reconciler.Tick(ctx)

				Expect(state.Enabled).To(BeFalse())
				Expect(state.Block).To(BeFalse())
				Expect(gate.Hosts()).To(Equal(preamble))
				Expect(flusher.Count()).To(BeZero())
			})
		})

		Context("when the process listing fails", func() {
			It("should report ps_error and treat the agent as idle", func() {
				writeConfig(func(c *config.Config) { c.RewardMode = false })
				scanner.Fail(errors.New("ps: not found"))

				state := reconciler.Tick(ctx)

				Expect(state.ProcessRunning).To(BeFalse())
				Expect(state.Evidence).To(Equal([]string{"ps_error"}))
				Expect(state.Block).To(BeFalse())
			})
		})

		Context("when a timer is set", func() {
			It("should block even while the agent works", func() {
				writeConfig(func(c *config.Config) {
					c.BlockUntilUnix = float64(time.Now().Add(time.Hour).Unix())
				})
				scanner.Set(claude)

				state := reconciler.Tick(ctx)

				Expect(state.Block).To(BeTrue())
				Expect(gate.Hosts()).To(ContainSubstring("0.0.0.0 x.com\n"))
			})
		})

		Context("when the blocklist grows while blocked", func() {
			It("should rewrite the block with the new domains", func() {
				writeConfig(nil)
				reconciler.Tick(ctx)

				writeConfig(func(c *config.Config) {
					c.Blocklist = []string{"x.com", "reddit.com"}
					c.IncludeWWW = false
				})
				reconciler.Tick(ctx)

				Expect(gate.Hosts()).To(Equal(preamble + "\n" +
					"# xgate:start\n" +
					"0.0.0.0 x.com\n" +
					"::1 x.com\n" +
					"0.0.0.0 reddit.com\n" +
					"::1 reddit.com\n" +
					"# xgate:end\n"))
			})
		})

		It("should write a fresh state snapshot every tick", func() {
			writeConfig(nil)
			reconciler.Tick(ctx)

			state, _, ok := infra.ReadState(gate.StatePath, 5*time.Second)
			Expect(ok).To(BeTrue())
			Expect(state.Block).To(BeTrue())
			Expect(state.Reasons).To(Equal([]string{"activity"}))
			Expect(state.DaemonVersion).To(Equal("test"))
			Expect(state.CompatVersion).To(Equal(2))
		})
	})

	Describe("Run", func() {
		It("should stop after one tick in once mode", func() {
			writeConfig(nil)
			once := daemon.NewReconciler(
				daemon.ReconcilerConfig{ConfigPath: gate.ConfigPath, Once: true},
				scanner, fixtures.NoNet{},
				infra.NewHostsFile(gate.HostsPath), infra.NewStateFile(gate.StatePath),
				flusher, zap.NewNop(),
			)

			Expect(once.Run(ctx)).To(Succeed())
			Expect(gate.Hosts()).To(ContainSubstring("# xgate:start\n"))
		})
	})
})
