//go:build linux

package render

import (
	"fmt"
	"os"
	"runtime"
	"syscall"

	"golang.org/x/sys/unix"
)

type rlimitSetting struct {
	name     string
	resource int
	value    uint64
}

// rlimits lists the resource ceilings of a profile in the order they are applied.
func (p Profile) rlimits() []rlimitSetting {
	settings := []rlimitSetting{{name: "core", resource: unix.RLIMIT_CORE, value: p.CoreBytes}}

	optional := []rlimitSetting{
		{name: "cpu", resource: unix.RLIMIT_CPU, value: p.CPUSeconds},
		{name: "data", resource: unix.RLIMIT_DATA, value: p.DataBytes},
		{name: "stack", resource: unix.RLIMIT_STACK, value: p.StackBytes},
		{name: "fsize", resource: unix.RLIMIT_FSIZE, value: p.FileBytes},
		{name: "nofile", resource: unix.RLIMIT_NOFILE, value: p.OpenFiles},
		{name: "msgqueue", resource: unix.RLIMIT_MSGQUEUE, value: p.MsgQueueBytes},
		{name: "rttime", resource: unix.RLIMIT_RTTIME, value: p.RealtimeMicros},
	}
	for _, setting := range optional {
		if setting.value > 0 {
			settings = append(settings, setting)
		}
	}

	return settings
}

// ApplyProfile sets the profile on the calling process. Hard limits are lowered together with
// soft limits so the tool cannot raise them back.
func ApplyProfile(p Profile) error {
	for _, setting := range p.rlimits() {
		if err := setRlimit(setting); err != nil {
			return fmt.Errorf("set %s limit: %w", setting.name, err)
		}
	}

	if p.Nice > 0 {
		// Niceness is per thread on Linux; the caller holds the thread that will exec.
		if err := unix.Setpriority(unix.PRIO_PROCESS, 0, p.Nice); err != nil {
			fmt.Fprintf(os.Stderr, "sandbox-exec: lower priority: %v\n", err)
		}
	}

	if p.WallClock > 0 {
		watchdog := unix.Itimerval{Value: unix.NsecToTimeval(p.WallClock.Nanoseconds())}
		if _, err := unix.Setitimer(unix.ItimerReal, watchdog); err != nil {
			return fmt.Errorf("arm wall-clock watchdog: %w", err)
		}
	}

	return nil
}

func setRlimit(setting rlimitSetting) error {
	if setting.resource == unix.RLIMIT_NOFILE {
		// The syscall package restores its startup NOFILE limit on exec unless it was changed
		// through syscall.Setrlimit.
		return syscall.Setrlimit(setting.resource, &syscall.Rlimit{Cur: setting.value, Max: setting.value})
	}

	return unix.Setrlimit(setting.resource, &unix.Rlimit{Cur: setting.value, Max: setting.value})
}

// execWithProfile applies the profile and replaces the process image. The real-time interval
// timer survives execve, so SIGALRM terminates the tool when the wall-clock budget runs out.
func execWithProfile(p Profile, path string, argv []string, env []string) error {
	runtime.LockOSThread()

	if err := ApplyProfile(p); err != nil {
		return err
	}

	if err := syscall.Exec(path, argv, env); err != nil {
		return fmt.Errorf("exec %s: %w", path, err)
	}

	return nil
}
