package queue

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ebsight/ebsight/internal/models"
)

// Executor runs one scan request to a terminal scan record state.
// *scan.Orchestrator satisfies it.
type Executor interface {
	Execute(ctx context.Context, req *models.ScanRequest) error
}

// RecordGetter reads back the scan record after execution so the worker can
// dispatch outcome notifications. *store.Store satisfies it.
type RecordGetter interface {
	GetScanRecord(ctx context.Context, tenantID string, scanID uuid.UUID) (*models.ScanRecord, error)
}

// Notifier receives terminal scan outcomes. Notification failures never
// affect the scan.
type Notifier interface {
	NotifyScanCompleted(ctx context.Context, rec *models.ScanRecord)
	NotifyScanFailed(ctx context.Context, rec *models.ScanRecord)
}

type Worker struct {
	id       string
	queue    *Queue
	executor Executor
	records  RecordGetter
	notifier Notifier

	pollInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	running bool
	mu      sync.Mutex
}

type WorkerConfig struct {
	Queue        *Queue
	Executor     Executor
	Records      RecordGetter
	Notifier     Notifier
	PollInterval time.Duration
}

func NewWorker(cfg WorkerConfig) *Worker {
	hostname, _ := os.Hostname()
	workerID := fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8])

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	return &Worker{
		id:           workerID,
		queue:        cfg.Queue,
		executor:     cfg.Executor,
		records:      cfg.Records,
		notifier:     cfg.Notifier,
		pollInterval: cfg.PollInterval,
	}
}

func (w *Worker) ID() string {
	return w.id
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("worker already running")
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	log.Printf("[%s] Worker starting", w.id)

	w.wg.Add(1)
	go w.heartbeatLoop()

	w.wg.Add(1)
	go w.processLoop()

	return nil
}

func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	log.Printf("[%s] Worker stopping", w.id)
	w.cancel()
	w.wg.Wait()
	log.Printf("[%s] Worker stopped", w.id)
}

func (w *Worker) heartbeatLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.queue.WorkerHeartbeat(w.ctx, w.id)
		}
	}
}

func (w *Worker) processLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			req, err := w.queue.Dequeue(w.ctx)
			if err != nil {
				log.Printf("[%s] Error dequeuing scan request: %v", w.id, err)
				time.Sleep(5 * time.Second)
				continue
			}

			if req == nil {
				time.Sleep(w.pollInterval)
				continue
			}

			w.process(req)
		}
	}
}

// process runs one request. Execution errors are logged and the request is
// not requeued: the scan record already carries the failure, and the
// conditions the orchestrator reports as errors do not heal on redelivery.
func (w *Worker) process(req *models.ScanRequest) {
	log.Printf("[%s] Processing scan %s (tenant: %s, account: %s)",
		w.id, req.ScanID, req.TenantID, req.AccountID)

	if err := w.executor.Execute(w.ctx, req); err != nil {
		log.Printf("[%s] Scan %s failed: %v", w.id, req.ScanID, err)
	} else {
		log.Printf("[%s] Scan %s finished", w.id, req.ScanID)
	}

	w.notify(req)
}

func (w *Worker) notify(req *models.ScanRequest) {
	if w.notifier == nil || w.records == nil {
		return
	}

	scanID, err := uuid.Parse(req.ScanID)
	if err != nil {
		return
	}

	rec, err := w.records.GetScanRecord(w.ctx, req.TenantID, scanID)
	if err != nil || rec == nil {
		if err != nil {
			log.Printf("[%s] Error reading scan record %s for notification: %v", w.id, req.ScanID, err)
		}
		return
	}

	switch rec.Status {
	case models.ScanStatusCompleted:
		w.notifier.NotifyScanCompleted(w.ctx, rec)
	case models.ScanStatusFailed:
		w.notifier.NotifyScanFailed(w.ctx, rec)
	}
}
