//go:build unix

package security

import (
	"os"
	"testing"
)

func TestEffectiveUIDGetter_OnUnix_ShouldReportProcessEUID(t *testing.T) {
	if got, want := EffectiveUIDGetter()(), os.Geteuid(); got != want {
		t.Errorf("EffectiveUIDGetter()() = %d, want %d", got, want)
	}
}
