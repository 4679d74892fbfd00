// Package security holds the daemon's privilege check.
package security

import (
	"errors"
	"strconv"
	"strings"
)

// AllowRootEnv names the variable that lets the daemon start as root, for
// container images whose only user is root.
const AllowRootEnv = "KEYRELAY_ALLOW_ROOT"

// ErrRunningAsRoot is returned when the effective user ID is 0 and root was not allowed.
var ErrRunningAsRoot = errors.New("refusing to run as root: the relay holds live API keys, run it as an unprivileged user or set " + AllowRootEnv + "=1")

// effectiveUIDGetter is replaced by root_unix.go; elsewhere it reports "not root".
var effectiveUIDGetter = func() int { return -1 }

// EffectiveUIDGetter returns the platform effective-UID getter.
func EffectiveUIDGetter() func() int {
	return effectiveUIDGetter
}

// RootPolicy decides whether the daemon may start under the current user.
type RootPolicy struct {
	EUID      func() int // nil skips the check
	AllowRoot bool
}

// RootPolicyFromEnv reads AllowRootEnv through getenv (nil means unset).
// Any value strconv.ParseBool accepts as true allows root.
func RootPolicyFromEnv(euid func() int, getenv func(string) string) RootPolicy {
	p := RootPolicy{EUID: euid}
	if getenv != nil {
		p.AllowRoot, _ = strconv.ParseBool(strings.TrimSpace(getenv(AllowRootEnv)))
	}
	return p
}

// Check reports whether the process runs as root. It returns ErrRunningAsRoot
// when it does and AllowRoot is false.
func (p RootPolicy) Check() (asRoot bool, err error) {
	if p.EUID == nil || p.EUID() != 0 {
		return false, nil
	}
	if !p.AllowRoot {
		return true, ErrRunningAsRoot
	}
	return true, nil
}

// RequireNonRoot returns ErrRunningAsRoot when euidGetter reports 0.
// A nil getter skips the check.
func RequireNonRoot(euidGetter func() int) error {
	_, err := RootPolicy{EUID: euidGetter}.Check()
	return err
}
