package api

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"lockd-api/domain"
)

// ReminderQueue is the downstream delivery target for scheduled reminders.
type ReminderQueue interface {
	Enqueue(ctx context.Context, ev domain.ReminderEvent) error
}

type reminderConfig struct {
	bufferSize      int
	workerCount     int
	batchSize       int
	flushInterval   time.Duration
	enqueueTimeout  time.Duration
	handoffTimeout  time.Duration
	retryInitial    time.Duration
	retryMax        time.Duration
	walDir          string
	walSegmentSize  int64
	walSyncEvery    int
	walSyncInterval time.Duration
}

func reminderConfigFromEnv() reminderConfig {
	cfg := reminderConfig{
		bufferSize:      envInt("REMINDER_BUFFER", 4096),
		workerCount:     envInt("REMINDER_WORKERS", 8),
		batchSize:       envInt("REMINDER_BATCH", 32),
		flushInterval:   envDur("REMINDER_FLUSH_INTERVAL", 5*time.Millisecond),
		enqueueTimeout:  envDur("REMINDER_ENQUEUE_TIMEOUT", 60*time.Second),
		handoffTimeout:  envDur("REMINDER_HANDOFF_TIMEOUT", 25*time.Millisecond),
		retryInitial:    envDur("REMINDER_RETRY_INITIAL", 250*time.Millisecond),
		retryMax:        envDur("REMINDER_RETRY_MAX", 30*time.Second),
		walDir:          envString("REMINDER_LOG_DIR", filepath.Join(os.TempDir(), "lockd-reminders")),
		walSegmentSize:  int64(envInt("REMINDER_SEGMENT_MB", 64)) * 1024 * 1024,
		walSyncEvery:    envInt("REMINDER_SYNC_EVERY", 1),
		walSyncInterval: envDur("REMINDER_SYNC_INTERVAL", 2*time.Millisecond),
	}
	return cfg.normalized()
}

func (c reminderConfig) normalized() reminderConfig {
	if c.workerCount <= 0 {
		c.workerCount = 1
	}
	if c.batchSize <= 0 {
		c.batchSize = 1
	}
	if c.bufferSize <= 0 {
		c.bufferSize = c.workerCount * c.batchSize * 2
	}
	if c.walSegmentSize <= 0 {
		c.walSegmentSize = 64 * 1024 * 1024
	}
	if c.walSyncEvery <= 0 {
		c.walSyncEvery = 1
	}
	return c
}

// ReminderDispatcher hands committed reminder events to the reminder queue.
// Events are appended to a local write-ahead log before dispatch, so a crash
// or an unavailable queue never loses an accepted reminder; undelivered
// records are replayed on the next start.
type ReminderDispatcher struct {
	cfg    reminderConfig
	queue  ReminderQueue
	logger *log.Logger
	wal    *wal

	workCh   chan *walRecord
	stopCh   chan struct{}
	workerWG sync.WaitGroup
	retryWG  sync.WaitGroup

	mu        sync.Mutex
	inflight  map[uint64]*walRecord
	acked     map[uint64]struct{}
	nextAck   uint64
	closing   bool
	delivered atomic.Uint64
	started   time.Time
}

// NewReminderDispatcher opens the reminder log, replays undelivered events
// and starts the delivery workers. Configuration comes from the environment.
func NewReminderDispatcher(queue ReminderQueue, logger *log.Logger) (*ReminderDispatcher, error) {
	return newReminderDispatcher(reminderConfigFromEnv(), queue, logger)
}

func newReminderDispatcher(cfg reminderConfig, queue ReminderQueue, logger *log.Logger) (*ReminderDispatcher, error) {
	if queue == nil {
		return nil, errors.New("reminder queue is required")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	cfg = cfg.normalized()

	w, pending, err := openWAL(walConfig{
		dir:          cfg.walDir,
		segmentBytes: cfg.walSegmentSize,
		syncEvery:    cfg.walSyncEvery,
		syncInterval: cfg.walSyncInterval,
		logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	d := &ReminderDispatcher{
		cfg:      cfg,
		queue:    queue,
		logger:   logger,
		wal:      w,
		workCh:   make(chan *walRecord, cfg.bufferSize),
		stopCh:   make(chan struct{}),
		inflight: make(map[uint64]*walRecord),
		acked:    make(map[uint64]struct{}),
		nextAck:  w.committedOffset,
		started:  time.Now().UTC(),
	}

	sort.Slice(pending, func(i, j int) bool { return pending[i].Offset < pending[j].Offset })
	for _, rec := range pending {
		d.inflight[rec.Offset] = rec
	}
	go func() {
		for _, rec := range pending {
			select {
			case d.workCh <- rec:
			case <-d.stopCh:
				return
			}
		}
	}()

	for i := 0; i < cfg.workerCount; i++ {
		d.workerWG.Add(1)
		go d.worker(i)
	}
	if cfg.walSyncInterval > 0 {
		go d.syncLoop()
	}

	if len(pending) > 0 {
		logger.Infof("reminder dispatcher started, workers: %d, replaying %d undelivered events", cfg.workerCount, len(pending))
	} else {
		logger.Infof("reminder dispatcher started, workers: %d, buffer: %d", cfg.workerCount, cfg.bufferSize)
	}
	return d, nil
}

// ScheduleReminder records the event durably and queues it for delivery. It
// never blocks the caller beyond the handoff timeout: when the buffer is
// saturated the event stays in the log and is redelivered by the retry path.
func (d *ReminderDispatcher) ScheduleReminder(ev domain.ReminderEvent) {
	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		d.logger.WithField("owner", ev.Owner).Warn("reminder dropped: dispatcher shutting down")
		return
	}
	d.mu.Unlock()

	rec := &walRecord{Event: ev, Timestamp: time.Now().UTC()}

	d.wal.mu.Lock()
	if err := d.wal.appendRecordLocked(rec); err != nil {
		d.wal.mu.Unlock()
		d.logger.WithError(err).Error("reminder log append failed; delivering without durability")
	} else {
		if err := d.wal.syncIfNeededLocked(); err != nil {
			d.logger.WithError(err).Error("reminder log sync failed")
		}
		d.wal.mu.Unlock()
		d.mu.Lock()
		d.inflight[rec.Offset] = rec
		d.mu.Unlock()
	}

	if !d.dispatch(rec) {
		d.scheduleRetry(rec)
	}
}

func (d *ReminderDispatcher) dispatch(rec *walRecord) bool {
	select {
	case d.workCh <- rec:
		return true
	default:
	}
	if d.cfg.handoffTimeout <= 0 {
		return false
	}

	timer := time.NewTimer(d.cfg.handoffTimeout)
	defer timer.Stop()
	select {
	case d.workCh <- rec:
		return true
	case <-timer.C:
		return false
	case <-d.stopCh:
		return false
	}
}

func (d *ReminderDispatcher) worker(id int) {
	defer d.workerWG.Done()

	batch := make([]*walRecord, 0, d.cfg.batchSize)
	timer := time.NewTimer(d.cfg.flushInterval)
	defer timer.Stop()
	for {
		if len(batch) == 0 {
			select {
			case rec, ok := <-d.workCh:
				if !ok {
					return
				}
				if rec == nil {
					continue
				}
				batch = append(batch, rec)
				timer.Reset(d.cfg.flushInterval)
			case <-d.stopCh:
				return
			}
		}

	gather:
		for len(batch) < d.cfg.batchSize {
			select {
			case rec, ok := <-d.workCh:
				if !ok {
					break gather
				}
				if rec == nil {
					continue
				}
				batch = append(batch, rec)
			case <-timer.C:
				timer.Reset(d.cfg.flushInterval)
				break gather
			case <-d.stopCh:
				return
			}
		}

		d.flushBatch(batch, id)
		batch = batch[:0]
	}
}

func (d *ReminderDispatcher) flushBatch(batch []*walRecord, workerID int) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.enqueueTimeout)
	defer cancel()

	delivered := make([]*walRecord, 0, len(batch))
	for _, rec := range batch {
		if err := d.queue.Enqueue(ctx, rec.Event); err != nil {
			rec.Attempt++
			rec.LastErr = err.Error()
			d.logger.WithError(err).Errorf("reminder delivery failed, worker=%d, owner=%s, task=%d, offset=%d, attempt=%d",
				workerID, rec.Event.Owner, rec.Event.TaskID, rec.Offset, rec.Attempt)
			d.scheduleRetry(rec)
			continue
		}
		rec.Attempt = 0
		rec.LastErr = ""
		delivered = append(delivered, rec)
	}

	if len(delivered) > 0 {
		d.markDelivered(delivered)
	}
}

func (d *ReminderDispatcher) markDelivered(records []*walRecord) {
	var maxCommit uint64

	d.mu.Lock()
	for _, rec := range records {
		if rec.Offset == 0 {
			// never made it into the log
			continue
		}
		delete(d.inflight, rec.Offset)
		d.acked[rec.Offset] = struct{}{}
	}
	d.delivered.Add(uint64(len(records)))

	for {
		next := d.nextAck + 1
		if _, ok := d.acked[next]; !ok {
			break
		}
		delete(d.acked, next)
		d.nextAck = next
		maxCommit = next
	}
	d.mu.Unlock()

	if maxCommit > 0 {
		d.wal.mu.Lock()
		if err := d.wal.commitLocked(maxCommit); err != nil {
			d.logger.WithError(err).Error("failed to commit reminder log checkpoint")
		}
		d.wal.mu.Unlock()
	}
}

func (d *ReminderDispatcher) scheduleRetry(rec *walRecord) {
	delay := exponentialBackoff(rec.Attempt, d.cfg.retryInitial, d.cfg.retryMax)
	d.retryWG.Add(1)
	go func() {
		defer d.retryWG.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			select {
			case d.workCh <- rec:
			case <-d.stopCh:
			}
		case <-d.stopCh:
		}
	}()
}

func (d *ReminderDispatcher) syncLoop() {
	ticker := time.NewTicker(d.cfg.walSyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.wal.mu.Lock()
			err := d.wal.syncLocked()
			d.wal.mu.Unlock()
			if err != nil {
				if errors.Is(err, errWALClosed) {
					return
				}
				d.logger.WithError(err).Error("reminder log sync failed")
			}
		case <-d.stopCh:
			return
		}
	}
}

// Shutdown stops the workers and closes the reminder log. Undelivered events
// stay in the log for the next start.
func (d *ReminderDispatcher) Shutdown() {
	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		return
	}
	d.closing = true
	d.mu.Unlock()

	close(d.stopCh)
	d.workerWG.Wait()
	d.retryWG.Wait()
	d.wal.close()
}

type reminderHealth struct {
	QueueDepth         int       `json:"queueDepth"`
	Buffered           int       `json:"buffered"`
	OldestAgeSeconds   float64   `json:"oldestAgeSeconds"`
	Delivered          uint64    `json:"delivered"`
	StartedAt          time.Time `json:"startedAt"`
	DrainRatePerSecond float64   `json:"drainRatePerSecond"`
}

// Health reports queue depth and throughput for the health endpoint.
func (d *ReminderDispatcher) Health() reminderHealth {
	d.mu.Lock()
	depth := len(d.inflight)
	buffered := len(d.workCh)
	var oldest time.Duration
	now := time.Now()
	for _, rec := range d.inflight {
		if age := now.Sub(rec.Timestamp); age > oldest {
			oldest = age
		}
	}
	d.mu.Unlock()

	delivered := d.delivered.Load()
	elapsed := time.Since(d.started)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(delivered) / elapsed.Seconds()
	}
	return reminderHealth{
		QueueDepth:         depth,
		Buffered:           buffered,
		OldestAgeSeconds:   oldest.Seconds(),
		Delivered:          delivered,
		StartedAt:          d.started,
		DrainRatePerSecond: rate,
	}
}

func exponentialBackoff(attempt int, initial, max time.Duration) time.Duration {
	if initial <= 0 {
		initial = time.Second
	}
	if attempt <= 0 {
		return initial
	}
	if max <= 0 {
		max = 10 * time.Second
	}
	backoff := float64(initial) * math.Pow(2, float64(attempt-1))
	if backoff > float64(max) {
		backoff = float64(max)
	}
	jitter := 0.2 * backoff
	return time.Duration(backoff + (rand.Float64()-0.5)*2*jitter)
}
