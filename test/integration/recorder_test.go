//go:build integration

package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"
	"github.com/onsi/gomega/gexec"

	"github.com/eliteGoblin/rtsprec/internal/capture"
	"github.com/eliteGoblin/rtsprec/internal/daemon"
	"github.com/eliteGoblin/rtsprec/internal/infra"
	"github.com/eliteGoblin/rtsprec/test/fixtures"
)

var _ = Describe("Recorder lifecycle", func() {
	var (
		tmpDir    string
		outputDir string
		logDir    string
		pidFile   string
		engine    *fixtures.FakeEngine
		mode      string
		segment   string
		pm        = infra.NewProcessManager()
	)

	env := func() []string {
		vars := append(os.Environ(),
			"RTSP_URL=rtsp://127.0.0.1:8554/cam",
			"FFMPEG_BINARY="+engine.Path,
			"OUTPUT_DIR="+outputDir,
			"LOG_DIR="+logDir,
			"PID_FILE="+pidFile,
			"SEGMENT_DURATION="+segment,
			"RETRY_DELAY=1s",
			"SHUTDOWN_GRACE=1s",
			"STOP_TIMEOUT=5s",
			"LOG_LEVEL=debug",
		)
		return append(vars, engine.Env(mode)...)
	}

	rtsprec := func(args ...string) *gexec.Session {
		cmd := exec.Command(binPath, args...)
		cmd.Env = env()
		cmd.Dir = tmpDir
		session, err := gexec.Start(cmd, GinkgoWriter, GinkgoWriter)
		Expect(err).NotTo(HaveOccurred())
		Eventually(session, 20*time.Second).Should(gexec.Exit())
		return session
	}

	recordedPID := func() int {
		data, err := os.ReadFile(pidFile)
		if err != nil {
			return 0
		}
		pid, _ := strconv.Atoi(strings.TrimSpace(string(data)))
		return pid
	}

	todaysSegments := func() []string {
		dir := capture.NewLayout(outputDir, "mp4").DatedDir(time.Now())
		matches, _ := filepath.Glob(filepath.Join(dir, "recording_*.mp4"))
		return matches
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "rtsprec-integration-*")
		Expect(err).NotTo(HaveOccurred())

		outputDir = filepath.Join(tmpDir, "recordings")
		logDir = filepath.Join(tmpDir, "logs")
		pidFile = filepath.Join(tmpDir, "run", "rtsprec.pid")
		mode = fixtures.ModeRecord
		segment = "5"

		engine = fixtures.NewFakeEngine(tmpDir)
		Expect(engine.Install()).To(Succeed())
	})

	AfterEach(func() {
		rtsprec("stop")
		os.RemoveAll(tmpDir)
	})

	Describe("Scenario A: continuous recording", func() {
		It("writes at least two segments in today's directory within 12 seconds", func() {
			session := rtsprec("start")
			Expect(session.ExitCode()).To(Equal(0))
			Expect(session.Out).To(gbytes.Say("rtsprec started"))

			Eventually(func() int { return len(todaysSegments()) }, 12*time.Second, 500*time.Millisecond).
				Should(BeNumerically(">=", 2))
		})
	})

	Describe("Scenario B: engine failure", func() {
		BeforeEach(func() {
			mode = fixtures.ModeFailOnce
		})

		It("removes the failed session's segment and starts a new session", func() {
			Expect(rtsprec("start").ExitCode()).To(Equal(0))

			Eventually(engine.Starts, 5*time.Second, 100*time.Millisecond).Should(BeNumerically(">=", 2))

			failed := engine.FailedSegment()
			Expect(failed).NotTo(BeEmpty())
			Expect(failed).NotTo(BeAnExistingFile())

			Eventually(engine.Segments, 3*time.Second).ShouldNot(BeEmpty())
			Expect(engine.Segments()[0]).To(BeAnExistingFile())
		})
	})

	Describe("Scenario C: graceful stop", func() {
		It("exits within the grace period, clears the PID record and keeps the partial segment", func() {
			Expect(rtsprec("start").ExitCode()).To(Equal(0))
			pid := recordedPID()
			Expect(pid).To(BeNumerically(">", 0))
			Eventually(engine.Segments, 5*time.Second).ShouldNot(BeEmpty())

			started := time.Now()
			session := rtsprec("stop")
			Expect(session.ExitCode()).To(Equal(0))
			Expect(session.Out).To(gbytes.Say("rtsprec stopped"))
			Expect(time.Since(started)).To(BeNumerically("<", 5*time.Second))

			Expect(pm.IsRunning(pid)).To(BeFalse())
			Expect(pidFile).NotTo(BeAnExistingFile())

			segments := engine.Segments()
			Expect(segments[len(segments)-1]).To(BeAnExistingFile())
		})
	})

	Describe("Scenario D: stop when nothing runs", func() {
		It("reports not running and succeeds", func() {
			session := rtsprec("stop")

			Expect(session.ExitCode()).To(Equal(0))
			Expect(session.Out).To(gbytes.Say("not running"))

			audit, err := os.ReadFile(filepath.Join(logDir, "launcher.log"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(audit)).To(ContainSubstring("stop: not running"))

			// Twice is still a no-op
			Expect(rtsprec("stop").ExitCode()).To(Equal(0))
		})
	})

	Describe("stale PID record", func() {
		It("never signals the unrelated process that reused the PID", func() {
			sleeper := exec.Command("sleep", "60")
			Expect(sleeper.Start()).To(Succeed())
			defer func() {
				_ = sleeper.Process.Kill()
				_, _ = sleeper.Process.Wait()
			}()

			Expect(os.MkdirAll(filepath.Dir(pidFile), 0o755)).To(Succeed())
			Expect(os.WriteFile(pidFile, []byte(strconv.Itoa(sleeper.Process.Pid)+"\n"), 0o644)).To(Succeed())

			status := rtsprec("status")
			Expect(status.ExitCode()).To(Equal(0))
			Expect(status.Out).To(gbytes.Say("NOT RUNNING"))

			Expect(rtsprec("stop").ExitCode()).To(Equal(0))
			Expect(pm.IsRunning(sleeper.Process.Pid)).To(BeTrue())
			Expect(pidFile).NotTo(BeAnExistingFile())
		})

		It("finds a running recorder by process scan when the record is missing", func() {
			Expect(rtsprec("start").ExitCode()).To(Equal(0))
			pid := recordedPID()
			Expect(os.Remove(pidFile)).To(Succeed())

			status := rtsprec("status")
			Expect(status.Out).To(gbytes.Say("RUNNING"))
			Expect(status.Out).To(gbytes.Say(strconv.Itoa(pid)))
			Expect(status.Out).To(gbytes.Say("process table scan"))

			Expect(rtsprec("stop").ExitCode()).To(Equal(0))
			Expect(pm.IsRunning(pid)).To(BeFalse())
		})
	})

	Describe("restart", func() {
		It("leaves exactly one recorder and the old one dead", func() {
			Expect(rtsprec("start").ExitCode()).To(Equal(0))
			oldPID := recordedPID()

			Expect(rtsprec("restart").ExitCode()).To(Equal(0))
			newPID := recordedPID()

			Expect(newPID).NotTo(Equal(oldPID))
			Expect(pm.IsRunning(oldPID)).To(BeFalse())

			pids, err := pm.FindByIdentity(daemon.SupervisorIdentity(binPath))
			Expect(err).NotTo(HaveOccurred())
			Expect(pids).To(ConsistOf(newPID))
		})

		It("refuses a second start", func() {
			Expect(rtsprec("start").ExitCode()).To(Equal(0))
			session := rtsprec("start")
			Expect(session.ExitCode()).To(Equal(0))
			Expect(session.Out).To(gbytes.Say("already running"))
		})
	})

	Describe("engine ignoring SIGTERM", func() {
		BeforeEach(func() {
			mode = fixtures.ModeStubborn
		})

		It("is killed after the grace period and the recorder still stops", func() {
			Expect(rtsprec("start").ExitCode()).To(Equal(0))
			Eventually(engine.Starts, 5*time.Second).Should(Equal(1))
			Eventually(engine.Segments, 5*time.Second).ShouldNot(BeEmpty())

			Expect(rtsprec("stop").ExitCode()).To(Equal(0))

			for _, line := range readLines(filepath.Join(engine.StateDir, "starts")) {
				enginePID, _ := strconv.Atoi(line)
				Expect(pm.IsRunning(enginePID)).To(BeFalse(), "engine %d still alive", enginePID)
			}
		})
	})

	Describe("invalid configuration", func() {
		It("makes record exit non-zero", func() {
			cmd := exec.Command(binPath, "record")
			cmd.Env = append(env(), "RTSP_URL=http://not-rtsp")
			cmd.Dir = tmpDir
			session, err := gexec.Start(cmd, GinkgoWriter, GinkgoWriter)
			Expect(err).NotTo(HaveOccurred())
			Eventually(session, 5*time.Second).Should(gexec.Exit(1))
			Expect(session.Err).To(gbytes.Say("fatal configuration error"))
		})
	})
})

func readLines(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return strings.Fields(string(data))
}
