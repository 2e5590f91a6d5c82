package metrics

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Metrics struct {
	startTime time.Time

	runsStarted   atomic.Int64
	runsCompleted atomic.Int64
	runsFailed    atomic.Int64
	activeRuns    atomic.Int64

	pagesIdentified atomic.Int64
	pagesProcessed  atomic.Int64
	pagesAccepted   atomic.Int64
	pagesRejected   atomic.Int64
	pagesSkipped    atomic.Int64

	conditionsCreated  atomic.Int64
	measurementsPlaced atomic.Int64

	detectionRequests atomic.Int64
	detectionFailures atomic.Int64
	breakerOpens      atomic.Int64
	pollTimeouts      atomic.Int64

	identifyRequests atomic.Int64
	identifyFailures atomic.Int64

	ocrCacheHits   atomic.Int64
	ocrCacheMisses atomic.Int64

	detectionTimes     []time.Duration
	detectionTimesLock sync.Mutex

	modeRuns map[string]*atomic.Int64
	modeLock sync.Mutex
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

func New() *Metrics {
	return &Metrics{
		startTime:      time.Now(),
		detectionTimes: make([]time.Duration, 0, 1000),
		modeRuns:       make(map[string]*atomic.Int64),
	}
}

func (m *Metrics) RecordRunStarted(mode string) {
	m.runsStarted.Add(1)
	m.activeRuns.Add(1)

	m.modeLock.Lock()
	defer m.modeLock.Unlock()
	if m.modeRuns[mode] == nil {
		m.modeRuns[mode] = &atomic.Int64{}
	}
	m.modeRuns[mode].Add(1)
}

func (m *Metrics) RecordRunFinished(failed bool) {
	m.activeRuns.Add(-1)
	if failed {
		m.runsFailed.Add(1)
	} else {
		m.runsCompleted.Add(1)
	}
}

func (m *Metrics) RecordPagesIdentified(count int64) {
	m.pagesIdentified.Add(count)
}

func (m *Metrics) RecordPageProcessed() {
	m.pagesProcessed.Add(1)
}

func (m *Metrics) RecordDecision(decision string) {
	switch decision {
	case "accept":
		m.pagesAccepted.Add(1)
	case "reject":
		m.pagesRejected.Add(1)
	case "skip":
		m.pagesSkipped.Add(1)
	}
}

func (m *Metrics) RecordPersisted(conditions, measurements int64) {
	m.conditionsCreated.Add(conditions)
	m.measurementsPlaced.Add(measurements)
}

func (m *Metrics) RecordDetection(success bool) {
	m.detectionRequests.Add(1)
	if !success {
		m.detectionFailures.Add(1)
	}
}

func (m *Metrics) RecordBreakerOpen() {
	m.breakerOpens.Add(1)
}

func (m *Metrics) RecordPollTimeout() {
	m.pollTimeouts.Add(1)
}

func (m *Metrics) RecordIdentify(success bool) {
	m.identifyRequests.Add(1)
	if !success {
		m.identifyFailures.Add(1)
	}
}

func (m *Metrics) RecordOCRCache(hit bool) {
	if hit {
		m.ocrCacheHits.Add(1)
	} else {
		m.ocrCacheMisses.Add(1)
	}
}

func (m *Metrics) RecordDetectionTime(d time.Duration) {
	m.detectionTimesLock.Lock()
	defer m.detectionTimesLock.Unlock()

	m.detectionTimes = append(m.detectionTimes, d)
	if len(m.detectionTimes) > 1000 {
		m.detectionTimes = m.detectionTimes[1:]
	}
}

type Snapshot struct {
	Uptime             time.Duration    `json:"uptime"`
	RunsStarted        int64            `json:"runs_started"`
	RunsCompleted      int64            `json:"runs_completed"`
	RunsFailed         int64            `json:"runs_failed"`
	ActiveRuns         int64            `json:"active_runs"`
	PagesIdentified    int64            `json:"pages_identified"`
	PagesProcessed     int64            `json:"pages_processed"`
	PagesAccepted      int64            `json:"pages_accepted"`
	PagesRejected      int64            `json:"pages_rejected"`
	PagesSkipped       int64            `json:"pages_skipped"`
	ConditionsCreated  int64            `json:"conditions_created"`
	MeasurementsPlaced int64            `json:"measurements_placed"`
	DetectionRequests  int64            `json:"detection_requests"`
	DetectionFailures  int64            `json:"detection_failures"`
	BreakerOpens       int64            `json:"breaker_opens"`
	PollTimeouts       int64            `json:"poll_timeouts"`
	IdentifyRequests   int64            `json:"identify_requests"`
	IdentifyFailures   int64            `json:"identify_failures"`
	OCRCacheHits       int64            `json:"ocr_cache_hits"`
	OCRCacheMisses     int64            `json:"ocr_cache_misses"`
	AvgDetectionTime   time.Duration    `json:"avg_detection_time"`
	P99DetectionTime   time.Duration    `json:"p99_detection_time"`
	ModeRuns           map[string]int64 `json:"mode_runs"`
	AcceptRate         float64          `json:"accept_rate"`
}

func (m *Metrics) Snapshot() *Snapshot {
	s := &Snapshot{
		Uptime:             time.Since(m.startTime),
		RunsStarted:        m.runsStarted.Load(),
		RunsCompleted:      m.runsCompleted.Load(),
		RunsFailed:         m.runsFailed.Load(),
		ActiveRuns:         m.activeRuns.Load(),
		PagesIdentified:    m.pagesIdentified.Load(),
		PagesProcessed:     m.pagesProcessed.Load(),
		PagesAccepted:      m.pagesAccepted.Load(),
		PagesRejected:      m.pagesRejected.Load(),
		PagesSkipped:       m.pagesSkipped.Load(),
		ConditionsCreated:  m.conditionsCreated.Load(),
		MeasurementsPlaced: m.measurementsPlaced.Load(),
		DetectionRequests:  m.detectionRequests.Load(),
		DetectionFailures:  m.detectionFailures.Load(),
		BreakerOpens:       m.breakerOpens.Load(),
		PollTimeouts:       m.pollTimeouts.Load(),
		IdentifyRequests:   m.identifyRequests.Load(),
		IdentifyFailures:   m.identifyFailures.Load(),
		OCRCacheHits:       m.ocrCacheHits.Load(),
		OCRCacheMisses:     m.ocrCacheMisses.Load(),
		ModeRuns:           make(map[string]int64),
	}

	decided := s.PagesAccepted + s.PagesRejected + s.PagesSkipped
	if decided > 0 {
		s.AcceptRate = float64(s.PagesAccepted) / float64(decided) * 100
	}

	m.detectionTimesLock.Lock()
	if len(m.detectionTimes) > 0 {
		var total time.Duration
		for _, dt := range m.detectionTimes {
			total += dt
		}
		s.AvgDetectionTime = total / time.Duration(len(m.detectionTimes))

		sorted := make([]time.Duration, len(m.detectionTimes))
		copy(sorted, m.detectionTimes)
		for i := 0; i < len(sorted)-1; i++ {
			for j := i + 1; j < len(sorted); j++ {
				if sorted[j] < sorted[i] {
					sorted[i], sorted[j] = sorted[j], sorted[i]
				}
			}
		}
		p99Index := int(float64(len(sorted)) * 0.99)
		if p99Index >= len(sorted) {
			p99Index = len(sorted) - 1
		}
		s.P99DetectionTime = sorted[p99Index]
	}
	m.detectionTimesLock.Unlock()

	m.modeLock.Lock()
	for k, v := range m.modeRuns {
		s.ModeRuns[k] = v.Load()
	}
	m.modeLock.Unlock()

	return s
}

func (m *Metrics) Prometheus() string {
	var sb strings.Builder

	sb.WriteString("# HELP takeoff_uptime_seconds Time since server start\n")
	sb.WriteString("# TYPE takeoff_uptime_seconds gauge\n")
	sb.WriteString("takeoff_uptime_seconds " + strconv.FormatInt(int64(time.Since(m.startTime).Seconds()), 10) + "\n\n")

	sb.WriteString("# HELP takeoff_runs_started_total Takeoff runs started\n")
	sb.WriteString("# TYPE takeoff_runs_started_total counter\n")
	sb.WriteString("takeoff_runs_started_total " + strconv.FormatInt(m.runsStarted.Load(), 10) + "\n\n")

	sb.WriteString("# HELP takeoff_runs_completed_total Takeoff runs completed\n")
	sb.WriteString("# TYPE takeoff_runs_completed_total counter\n")
	sb.WriteString("takeoff_runs_completed_total " + strconv.FormatInt(m.runsCompleted.Load(), 10) + "\n\n")

	sb.WriteString("# HELP takeoff_runs_failed_total Takeoff runs failed\n")
	sb.WriteString("# TYPE takeoff_runs_failed_total counter\n")
	sb.WriteString("takeoff_runs_failed_total " + strconv.FormatInt(m.runsFailed.Load(), 10) + "\n\n")

	sb.WriteString("# HELP takeoff_active_runs Runs currently open\n")
	sb.WriteString("# TYPE takeoff_active_runs gauge\n")
	sb.WriteString("takeoff_active_runs " + strconv.FormatInt(m.activeRuns.Load(), 10) + "\n\n")

	sb.WriteString("# HELP takeoff_pages_identified_total Pages returned by identification\n")
	sb.WriteString("# TYPE takeoff_pages_identified_total counter\n")
	sb.WriteString("takeoff_pages_identified_total " + strconv.FormatInt(m.pagesIdentified.Load(), 10) + "\n\n")

	sb.WriteString("# HELP takeoff_pages_processed_total Pages run through detection\n")
	sb.WriteString("# TYPE takeoff_pages_processed_total counter\n")
	sb.WriteString("takeoff_pages_processed_total " + strconv.FormatInt(m.pagesProcessed.Load(), 10) + "\n\n")

	sb.WriteString("# HELP takeoff_pages_accepted_total Page proposals accepted\n")
	sb.WriteString("# TYPE takeoff_pages_accepted_total counter\n")
	sb.WriteString("takeoff_pages_accepted_total " + strconv.FormatInt(m.pagesAccepted.Load(), 10) + "\n\n")

	sb.WriteString("# HELP takeoff_pages_rejected_total Page proposals rejected\n")
	sb.WriteString("# TYPE takeoff_pages_rejected_total counter\n")
	sb.WriteString("takeoff_pages_rejected_total " + strconv.FormatInt(m.pagesRejected.Load(), 10) + "\n\n")

	sb.WriteString("# HELP takeoff_conditions_created_total Conditions persisted from accepted proposals\n")
	sb.WriteString("# TYPE takeoff_conditions_created_total counter\n")
	sb.WriteString("takeoff_conditions_created_total " + strconv.FormatInt(m.conditionsCreated.Load(), 10) + "\n\n")

	sb.WriteString("# HELP takeoff_measurements_placed_total Measurements persisted from accepted proposals\n")
	sb.WriteString("# TYPE takeoff_measurements_placed_total counter\n")
	sb.WriteString("takeoff_measurements_placed_total " + strconv.FormatInt(m.measurementsPlaced.Load(), 10) + "\n\n")

	sb.WriteString("# HELP takeoff_detection_requests_total Detection backend calls\n")
	sb.WriteString("# TYPE takeoff_detection_requests_total counter\n")
	sb.WriteString("takeoff_detection_requests_total " + strconv.FormatInt(m.detectionRequests.Load(), 10) + "\n\n")

	sb.WriteString("# HELP takeoff_detection_failures_total Detection backend failures\n")
	sb.WriteString("# TYPE takeoff_detection_failures_total counter\n")
	sb.WriteString("takeoff_detection_failures_total " + strconv.FormatInt(m.detectionFailures.Load(), 10) + "\n\n")

	sb.WriteString("# HELP takeoff_breaker_opens_total Circuit breaker opens\n")
	sb.WriteString("# TYPE takeoff_breaker_opens_total counter\n")
	sb.WriteString("takeoff_breaker_opens_total " + strconv.FormatInt(m.breakerOpens.Load(), 10) + "\n\n")

	sb.WriteString("# HELP takeoff_poll_timeouts_total Automated runs that never reached a terminal state\n")
	sb.WriteString("# TYPE takeoff_poll_timeouts_total counter\n")
	sb.WriteString("takeoff_poll_timeouts_total " + strconv.FormatInt(m.pollTimeouts.Load(), 10) + "\n\n")

	sb.WriteString("# HELP takeoff_identify_requests_total Page identification calls\n")
	sb.WriteString("# TYPE takeoff_identify_requests_total counter\n")
	sb.WriteString("takeoff_identify_requests_total " + strconv.FormatInt(m.identifyRequests.Load(), 10) + "\n\n")

	sb.WriteString("# HELP takeoff_ocr_cache_hits_total OCR text cache hits\n")
	sb.WriteString("# TYPE takeoff_ocr_cache_hits_total counter\n")
	sb.WriteString("takeoff_ocr_cache_hits_total " + strconv.FormatInt(m.ocrCacheHits.Load(), 10) + "\n\n")

	sb.WriteString("# HELP takeoff_ocr_cache_misses_total OCR text cache misses\n")
	sb.WriteString("# TYPE takeoff_ocr_cache_misses_total counter\n")
	sb.WriteString("takeoff_ocr_cache_misses_total " + strconv.FormatInt(m.ocrCacheMisses.Load(), 10) + "\n")

	return sb.String()
}
