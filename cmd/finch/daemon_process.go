package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// pidFilePath returns the pidfile finch uses to track a backgrounded
// daemon process, namespaced by config path so multiple daemons (e.g.
// one per profile) don't collide.
func pidFilePath(configPath string) string {
	safe := strings.NewReplacer("/", "_", string(os.PathSeparator), "_").Replace(configPath)
	return fmt.Sprintf("finch-%s.pid", safe)
}

// startBackgroundDaemon re-execs the current binary with `daemon`,
// detached from the controlling terminal, and records its pid.
func startBackgroundDaemon(configPath string) error {
	pidPath := pidFilePath(configPath)
	if pid, ok := readPid(pidPath); ok && processAlive(pid) {
		return fmt.Errorf("daemon already running (pid %d, pidfile %s)", pid, pidPath)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving executable: %w", err)
	}

	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", os.DevNull, err)
	}
	defer devnull.Close()

	proc, err := os.StartProcess(exe, []string{exe, "--config", configPath, "daemon"}, &os.ProcAttr{
		Files: []*os.File{devnull, devnull, devnull},
		Sys:   &syscall.SysProcAttr{Setsid: true},
	})
	if err != nil {
		return fmt.Errorf("starting daemon process: %w", err)
	}

	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(proc.Pid)), 0o644); err != nil {
		return fmt.Errorf("writing pidfile %s: %w", pidPath, err)
	}
	fmt.Printf("daemon started (pid %d)\n", proc.Pid)
	return nil
}

// stopBackgroundDaemon signals SIGTERM to the pid recorded for the
// default config path and removes the pidfile.
func stopBackgroundDaemon() error {
	pidPath := pidFilePath(configPathFlag)
	pid, ok := readPid(pidPath)
	if !ok {
		return fmt.Errorf("no pidfile at %s; is the daemon running?", pidPath)
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("signaling pid %d: %w", pid, err)
	}
	_ = os.Remove(pidPath)
	fmt.Printf("daemon (pid %d) signaled to stop\n", pid)
	return nil
}

func readPid(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return pid, true
}

func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
