package metrics

import (
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Error("New() returned nil")
	}
}

func TestDefault(t *testing.T) {
	m1 := Default()
	m2 := Default()

	if m1 != m2 {
		t.Error("Default() should return same instance")
	}
}

func TestRecordRunStarted(t *testing.T) {
	m := New()
	m.RecordRunStarted("interactive")
	m.RecordRunStarted("automated")

	if m.runsStarted.Load() != 2 {
		t.Error("Started runs not incremented")
	}
	if m.activeRuns.Load() != 2 {
		t.Error("Active runs not incremented")
	}
}

func TestRecordRunFinished(t *testing.T) {
	m := New()
	m.RecordRunStarted("interactive")
	m.RecordRunFinished(false)
	m.RecordRunStarted("batch")
	m.RecordRunFinished(true)

	if m.runsCompleted.Load() != 1 {
		t.Error("Completed runs not incremented")
	}
	if m.runsFailed.Load() != 1 {
		t.Error("Failed runs not incremented")
	}
	if m.activeRuns.Load() != 0 {
		t.Error("Active runs not decremented")
	}
}

func TestRecordDecision(t *testing.T) {
	m := New()
	m.RecordDecision("accept")
	m.RecordDecision("accept")
	m.RecordDecision("reject")
	m.RecordDecision("skip")

	if m.pagesAccepted.Load() != 2 {
		t.Error("Accepted pages not incremented")
	}
	if m.pagesRejected.Load() != 1 {
		t.Error("Rejected pages not incremented")
	}
	if m.pagesSkipped.Load() != 1 {
		t.Error("Skipped pages not incremented")
	}
}

func TestRecordPersisted(t *testing.T) {
	m := New()
	m.RecordPersisted(3, 11)
	m.RecordPersisted(1, 2)

	if m.conditionsCreated.Load() != 4 {
		t.Error("Conditions created not accumulated")
	}
	if m.measurementsPlaced.Load() != 13 {
		t.Error("Measurements placed not accumulated")
	}
}

func TestRecordDetection(t *testing.T) {
	m := New()
	m.RecordDetection(true)
	m.RecordDetection(false)

	if m.detectionRequests.Load() != 2 {
		t.Error("Detection requests not incremented")
	}
	if m.detectionFailures.Load() != 1 {
		t.Error("Detection failures not incremented")
	}
}

func TestSnapshot_AcceptRate(t *testing.T) {
	m := New()
	m.RecordDecision("accept")
	m.RecordDecision("accept")
	m.RecordDecision("reject")
	m.RecordDecision("skip")

	s := m.Snapshot()
	if s.AcceptRate != 50 {
		t.Errorf("AcceptRate = %v, want 50", s.AcceptRate)
	}
}

func TestSnapshot_DetectionTimes(t *testing.T) {
	m := New()
	m.RecordDetectionTime(100 * time.Millisecond)
	m.RecordDetectionTime(300 * time.Millisecond)

	s := m.Snapshot()
	if s.AvgDetectionTime != 200*time.Millisecond {
		t.Errorf("AvgDetectionTime = %v, want 200ms", s.AvgDetectionTime)
	}
}

func TestSnapshot_ModeRuns(t *testing.T) {
	m := New()
	m.RecordRunStarted("interactive")
	m.RecordRunStarted("interactive")
	m.RecordRunStarted("automated")

	s := m.Snapshot()
	if s.ModeRuns["interactive"] != 2 {
		t.Errorf("ModeRuns[interactive] = %d, want 2", s.ModeRuns["interactive"])
	}
	if s.ModeRuns["automated"] != 1 {
		t.Errorf("ModeRuns[automated] = %d, want 1", s.ModeRuns["automated"])
	}
}

func TestPrometheus(t *testing.T) {
	m := New()
	m.RecordRunStarted("interactive")
	m.RecordPersisted(2, 5)

	out := m.Prometheus()
	if !strings.Contains(out, "takeoff_runs_started_total 1") {
		t.Error("Prometheus output missing runs started counter")
	}
	if !strings.Contains(out, "takeoff_conditions_created_total 2") {
		t.Error("Prometheus output missing conditions counter")
	}
	if !strings.Contains(out, "takeoff_measurements_placed_total 5") {
		t.Error("Prometheus output missing measurements counter")
	}
	if !strings.Contains(out, "# TYPE takeoff_active_runs gauge") {
		t.Error("Prometheus output missing gauge type line")
	}
}
