package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

var _ CronEngine = (*RobfigCronEngine)(nil)

func TestRobfigCronEngine_AddFunc_ShouldAcceptExpressionsAndDescriptors(t *testing.T) {
	engine := NewRobfigCronEngine()
	for _, spec := range []string{"*/5 * * * *", "@every 30s", "@hourly"} {
		if _, err := engine.AddFunc(spec, func() {}); err != nil {
			t.Errorf("AddFunc(%q): %v", spec, err)
		}
	}
}

func TestRobfigCronEngine_AddFunc_WhenInvalidSpec_ShouldReturnError(t *testing.T) {
	engine := NewRobfigCronEngine()
	if _, err := engine.AddFunc("not a cron", func() {}); err == nil {
		t.Error("expected error for invalid spec")
	}
}

func TestRobfigCronEngine_Remove_ShouldNotPanic(t *testing.T) {
	engine := NewRobfigCronEngine()
	id, _ := engine.AddFunc("@every 1h", func() {})
	engine.Remove(id)
	engine.Remove(9999)
}

func TestRobfigCronEngine_ShouldFireOnScheduleAndStopCleanly(t *testing.T) {
	engine := NewRobfigCronEngine()
	var fired atomic.Int32
	if _, err := engine.AddFunc("@every 1s", func() { fired.Add(1) }); err != nil {
		t.Fatalf("AddFunc: %v", err)
	}
	engine.Start()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && fired.Load() == 0 {
		time.Sleep(100 * time.Millisecond)
	}
	engine.Stop()
	if fired.Load() == 0 {
		t.Fatal("expected cron job to fire within 3 seconds")
	}
}

func TestParseSpec_ShouldMatchEngineParser(t *testing.T) {
	for _, spec := range []string{"*/5 * * * *", "@every 5m", "@daily"} {
		if err := ParseSpec(spec); err != nil {
			t.Errorf("ParseSpec(%q): %v", spec, err)
		}
	}
	for _, spec := range []string{"", "every five minutes", "* * *"} {
		if err := ParseSpec(spec); err == nil {
			t.Errorf("ParseSpec(%q): expected error", spec)
		}
	}
}
