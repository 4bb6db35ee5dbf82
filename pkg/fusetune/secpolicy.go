package fusetune

import "time"

// Capability is a Linux capability the FUSE front end may require.
type Capability int

const (
	CapSysAdmin Capability = iota
	CapDacReadSearch
	CapDacOverride
	CapChown
	CapFOwner
	CapFSetID
	CapKill
	CapSetGid
	CapSetUid
	CapSetPCap
	CapNetAdmin
	CapSysChroot
	CapMknod
	CapLease
	CapAuditWrite
)

// CapabilitySet is an ordered, deduplicated set of required capabilities.
type CapabilitySet struct {
	caps []Capability
}

// NewCapabilitySet returns an empty CapabilitySet.
func NewCapabilitySet() *CapabilitySet {
	return &CapabilitySet{}
}

// FuseMinimal returns the minimal capability set a FUSE mount needs:
// CAP_SYS_ADMIN alone, for the mount(2) syscall.
func FuseMinimal() *CapabilitySet {
	s := NewCapabilitySet()
	s.Add(CapSysAdmin)
	return s
}

// Contains reports whether cap is in the set.
func (s *CapabilitySet) Contains(cap Capability) bool {
	for _, c := range s.caps {
		if c == cap {
			return true
		}
	}
	return false
}

// Add inserts cap, a no-op if already present.
func (s *CapabilitySet) Add(cap Capability) {
	if !s.Contains(cap) {
		s.caps = append(s.caps, cap)
	}
}

// Remove deletes cap, reporting whether it was present.
func (s *CapabilitySet) Remove(cap Capability) bool {
	for i, c := range s.caps {
		if c == cap {
			s.caps = append(s.caps[:i], s.caps[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of capabilities in the set.
func (s *CapabilitySet) Len() int { return len(s.caps) }

// IsEmpty reports whether the set has no capabilities.
func (s *CapabilitySet) IsEmpty() bool { return len(s.caps) == 0 }

// SeccompMode is a syscall policy's enforcement level.
type SeccompMode int

const (
	SeccompDisabled SeccompMode = iota
	SeccompLog
	SeccompEnforce
)

// fuseSyscallAllowlist is the representative set of syscalls a FUSE
// front end needs for file I/O, mount lifecycle, and socket transport;
// trimmed from the full kernel syscall table to the concerns this
// process actually exercises.
var fuseSyscallAllowlist = []string{
	"read", "write", "pread64", "pwrite64", "readv", "writev", "preadv", "pwritev",
	"open", "openat", "close", "stat", "fstat", "lstat", "newfstatat", "statx",
	"lseek", "mmap", "mprotect", "munmap", "brk", "madvise", "fallocate",
	"mkdir", "mkdirat", "rmdir", "rename", "renameat", "renameat2", "unlink", "unlinkat",
	"link", "linkat", "symlink", "symlinkat", "readlink", "readlinkat",
	"chmod", "fchmod", "fchmodat", "chown", "fchown", "lchown", "fchownat",
	"truncate", "ftruncate", "fsync", "fdatasync", "flock",
	"getdents", "getdents64", "access", "faccessat", "faccessat2",
	"socket", "connect", "accept", "accept4", "bind", "listen",
	"sendto", "recvfrom", "sendmsg", "recvmsg", "setsockopt", "getsockopt",
	"epoll_create1", "epoll_ctl", "epoll_wait", "epoll_pwait",
	"clone", "clone3", "execve", "exit", "exit_group", "wait4", "futex",
	"rt_sigaction", "rt_sigprocmask", "rt_sigreturn", "nanosleep",
	"getpid", "gettid", "getuid", "geteuid", "getgid", "getegid",
	"prctl", "mount", "umount2", "pivot_root", "chroot", "capget", "capset",
}

// SyscallPolicy allow/block lists a process's syscall surface under a
// SeccompMode.
type SyscallPolicy struct {
	mode    SeccompMode
	allowed map[string]bool
	blocked map[string]bool
}

// NewSyscallPolicy returns a disabled policy with no restrictions.
func NewSyscallPolicy() *SyscallPolicy {
	return &SyscallPolicy{mode: SeccompDisabled, allowed: map[string]bool{}, blocked: map[string]bool{}}
}

// FuseAllowlist returns an enforcing policy allowing only the
// syscalls a FUSE front end needs.
func FuseAllowlist() *SyscallPolicy {
	p := NewSyscallPolicy()
	p.mode = SeccompEnforce
	for _, s := range fuseSyscallAllowlist {
		p.allowed[s] = true
	}
	return p
}

// IsAllowed reports whether syscall may run under this policy: with
// no allowlist, anything not explicitly blocked is allowed; with an
// allowlist, syscall must be both allowed and not blocked.
func (p *SyscallPolicy) IsAllowed(syscall string) bool {
	if len(p.allowed) == 0 {
		return !p.blocked[syscall]
	}
	return p.allowed[syscall] && !p.blocked[syscall]
}

// IsBlocked reports whether syscall is explicitly blocked.
func (p *SyscallPolicy) IsBlocked(syscall string) bool {
	return p.blocked[syscall]
}

// Mode returns the policy's enforcement mode.
func (p *SyscallPolicy) Mode() SeccompMode { return p.mode }

// WithMode sets the policy's enforcement mode and returns p.
func (p *SyscallPolicy) WithMode(mode SeccompMode) *SyscallPolicy {
	p.mode = mode
	return p
}

// Block adds syscall to the block list.
func (p *SyscallPolicy) Block(syscall string) {
	p.blocked[syscall] = true
}

// MountNamespace identifies a FUSE mount's Linux mount namespace and
// owning process.
type MountNamespace struct {
	NsID      uint64
	PID       uint32
	CreatedAt time.Time
}

// NewMountNamespace returns a MountNamespace created at now.
func NewMountNamespace(nsID uint64, pid uint32, now time.Time) MountNamespace {
	return MountNamespace{NsID: nsID, PID: pid, CreatedAt: now}
}

// Age returns the namespace's age as of now.
func (m MountNamespace) Age(now time.Time) time.Duration {
	if now.Before(m.CreatedAt) {
		return 0
	}
	return now.Sub(m.CreatedAt)
}

// SecurityProfile bundles a FUSE mount's capability set, syscall
// policy, mount namespace, and no_new_privs enforcement.
type SecurityProfile struct {
	capabilities       *CapabilitySet
	syscallPolicy      *SyscallPolicy
	mountNS            *MountNamespace
	enforceNoNewPrivs  bool
}

// DefaultSecurityProfile returns an unrestricted profile (no
// capabilities required, no syscall policy enforced).
func DefaultSecurityProfile() *SecurityProfile {
	return &SecurityProfile{capabilities: NewCapabilitySet(), syscallPolicy: NewSyscallPolicy()}
}

// HardenedSecurityProfile returns the minimal-capability, syscall-
// allowlisted profile a production FUSE mount should run under.
func HardenedSecurityProfile() *SecurityProfile {
	return &SecurityProfile{
		capabilities:      FuseMinimal(),
		syscallPolicy:     FuseAllowlist(),
		enforceNoNewPrivs: true,
	}
}

// IsSyscallPermitted reports whether syscall is permitted under this
// profile's syscall policy.
func (s *SecurityProfile) IsSyscallPermitted(syscall string) bool {
	return s.syscallPolicy.IsAllowed(syscall)
}

// RequiredCapabilities returns the profile's required capability set.
func (s *SecurityProfile) RequiredCapabilities() *CapabilitySet {
	return s.capabilities
}

// WithMountNamespace attaches ns to the profile and returns s.
func (s *SecurityProfile) WithMountNamespace(ns MountNamespace) *SecurityProfile {
	s.mountNS = &ns
	return s
}

// MountNamespace returns the profile's attached mount namespace, if any.
func (s *SecurityProfile) MountNamespace() (MountNamespace, bool) {
	if s.mountNS == nil {
		return MountNamespace{}, false
	}
	return *s.mountNS, true
}

// WithNoNewPrivs sets the no_new_privs enforcement flag and returns s.
func (s *SecurityProfile) WithNoNewPrivs(enabled bool) *SecurityProfile {
	s.enforceNoNewPrivs = enabled
	return s
}

// EnforceNoNewPrivs reports whether PR_SET_NO_NEW_PRIVS should be set.
func (s *SecurityProfile) EnforceNoNewPrivs() bool {
	return s.enforceNoNewPrivs
}
