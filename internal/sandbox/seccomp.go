package sandbox

import "encoding/json"

// seccompProfile is the JSON form Docker's --security-opt seccomp=<path>
// expects. Grounded on the teacher's container_sandbox.go
// writeSeccompProfile: allow the syscall surface a short, non-interactive
// program legitimately needs, deny the handful used to escape or tamper
// with the host (ptrace, mount, reboot, kernel-module loading).
type seccompProfile struct {
	DefaultAction string           `json:"defaultAction"`
	Architectures []string         `json:"architectures"`
	Syscalls      []seccompSyscall `json:"syscalls"`
}

type seccompSyscall struct {
	Names  []string     `json:"names"`
	Action string       `json:"action"`
	Args   []seccompArg `json:"args,omitempty"`
}

type seccompArg struct {
	Index uint   `json:"index"`
	Value uint64 `json:"value"`
	Op    string `json:"op"`
}

var blockedSyscalls = []string{
	"ptrace", "mount", "umount2", "reboot", "swapon", "swapoff",
	"kexec_load", "kexec_file_load", "acct", "init_module", "delete_module",
}

var allowedSyscalls = [][]string{
	{"read", "write", "open", "close", "stat", "fstat", "lstat", "openat"},
	{"poll", "lseek", "mmap", "mprotect", "munmap", "brk"},
	{"rt_sigaction", "rt_sigprocmask", "rt_sigreturn", "ioctl"},
	{"access", "pipe", "pipe2", "select", "sched_yield", "mremap"},
	{"dup", "dup2", "dup3", "pause", "nanosleep", "clock_nanosleep"},
	{"clone", "fork", "vfork", "execve", "execveat", "exit", "exit_group"},
	{"wait4", "waitid", "kill", "tgkill", "uname", "fcntl"},
	{"getdents", "getdents64", "getcwd", "chdir", "fchdir", "rename", "renameat"},
	{"mkdir", "mkdirat", "rmdir", "creat", "link", "unlink", "unlinkat", "symlink"},
	{"readlink", "readlinkat", "chmod", "fchmod", "fchmodat", "chown", "fchown"},
	{"getrandom", "gettimeofday", "clock_gettime", "getrlimit", "getrusage"},
	{"getuid", "getgid", "geteuid", "getegid", "getpid", "getppid", "gettid"},
	{"futex", "set_robust_list", "get_robust_list", "sched_getaffinity"},
	{"prlimit64", "sigaltstack", "arch_prctl", "set_tid_address"},
}

// renderSeccompProfile renders the profile JSON. The caller is responsible
// for persisting it where the container runtime can read it.
func renderSeccompProfile() ([]byte, error) {
	profile := seccompProfile{
		DefaultAction: "SCMP_ACT_ERRNO",
		Architectures: []string{"SCMP_ARCH_X86_64", "SCMP_ARCH_AARCH64"},
	}
	for _, group := range allowedSyscalls {
		profile.Syscalls = append(profile.Syscalls, seccompSyscall{Names: group, Action: "SCMP_ACT_ALLOW"})
	}
	profile.Syscalls = append(profile.Syscalls, seccompSyscall{
		Names:  []string{"ptrace"},
		Action: "SCMP_ACT_ERRNO",
		Args:   []seccompArg{{Index: 0, Value: 0, Op: "SCMP_CMP_NE"}},
	})
	for _, name := range blockedSyscalls {
		if name == "ptrace" {
			continue
		}
		profile.Syscalls = append(profile.Syscalls, seccompSyscall{Names: []string{name}, Action: "SCMP_ACT_ERRNO"})
	}
	return json.MarshalIndent(profile, "", "  ")
}
