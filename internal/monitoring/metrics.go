package monitoring

import (
	"strconv"
	"time"

	"github.com/Gamemanuel/BathPass/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var (
	openPasses = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bathpass_open_passes",
			Help: "Current number of open passes per teacher",
		},
		[]string{"teacher_id"},
	)

	queueLength = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bathpass_queue_length",
			Help: "Current line length per teacher",
		},
		[]string{"teacher_id"},
	)

	passOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bathpass_pass_operations_total",
			Help: "Total pass operations",
		},
		[]string{"operation", "status"},
	)

	queueOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bathpass_queue_operations_total",
			Help: "Total line operations",
		},
		[]string{"operation", "status"},
	)

	passDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bathpass_pass_duration_seconds",
			Help:    "Duration of closed passes",
			Buckets: prometheus.ExponentialBuckets(30, 2, 10),
		},
	)
)

type Monitor struct {
	db *gorm.DB
}

func NewMonitor(db *gorm.DB, interval time.Duration) *Monitor {
	monitor := &Monitor{db: db}
	go monitor.collect(interval)
	return monitor
}

func (m *Monitor) collect(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		m.collectGauges()
	}
}

type teacherCount struct {
	TeacherID uint
	N         int64
}

func (m *Monitor) collectGauges() {
	var open []teacherCount
	if err := m.db.Model(&models.Pass{}).
		Select("teacher_id, COUNT(*) AS n").
		Where("time_in IS NULL").
		Group("teacher_id").
		Scan(&open).Error; err == nil {
		openPasses.Reset()
		for _, row := range open {
			openPasses.WithLabelValues(strconv.Itoa(int(row.TeacherID))).Set(float64(row.N))
		}
	}

	var waiting []teacherCount
	if err := m.db.Model(&models.QueueEntry{}).
		Select("teacher_id, COUNT(*) AS n").
		Group("teacher_id").
		Scan(&waiting).Error; err == nil {
		queueLength.Reset()
		for _, row := range waiting {
			queueLength.WithLabelValues(strconv.Itoa(int(row.TeacherID))).Set(float64(row.N))
		}
	}
}

// TrackPassOperation counts a pass operation outcome.
func TrackPassOperation(operation, status string) {
	passOperations.WithLabelValues(operation, status).Inc()
}

// TrackQueueOperation counts a line operation outcome.
func TrackQueueOperation(operation, status string) {
	queueOperations.WithLabelValues(operation, status).Inc()
}

// TrackPassDuration records how long a closed pass lasted.
func TrackPassDuration(d time.Duration) {
	passDuration.Observe(d.Seconds())
}
