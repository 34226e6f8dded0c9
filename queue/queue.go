// Package queue implements the asynchronous analysis queue: a bounded
// submission channel feeding a single consumer that fans jobs out to a
// bounded set of worker goroutines. Submitters never block on analysis
// work and never see analysis errors; outcomes surface through the
// persisted record, progress events, and the audit trail.
package queue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/HillviewCap/ferrocodex-sub002/analyzer"
	"github.com/HillviewCap/ferrocodex-sub002/db"
	"github.com/HillviewCap/ferrocodex-sub002/models"
	"github.com/HillviewCap/ferrocodex-sub002/storage"
)

const (
	// DefaultCapacity bounds how many submitted jobs can wait for the
	// consumer.
	DefaultCapacity = 100
	// DefaultWorkers bounds how many analyses run concurrently.
	DefaultWorkers = 4
)

// ErrQueueClosed is returned by QueueAnalysis after Shutdown.
var ErrQueueClosed = errors.New("analysis queue is shut down")

// Options configures an AnalysisQueue.
type Options struct {
	Capacity int
	Workers  int
	Notifier Notifier
}

// AnalysisQueue decouples job submission from analysis execution. Every
// collaborator is injected at construction; the queue holds no global
// state and acquires no database handle across file I/O or analysis work.
type AnalysisQueue struct {
	repo     AnalysisRepository
	firmware FirmwareRepository
	store    storage.FirmwareStore
	analyzer Analyzer
	events   EventSink
	audit    AuditLogger
	notifier Notifier

	jobs         chan models.AnalysisJob
	workers      chan struct{}
	quit         chan struct{}
	consumerDone chan struct{}

	mu      sync.Mutex
	closed  bool
	senders sync.WaitGroup
	wg      sync.WaitGroup
}

// New creates and starts an analysis queue.
func New(repo AnalysisRepository, firmware FirmwareRepository, store storage.FirmwareStore, az Analyzer, events EventSink, audit AuditLogger, opts Options) *AnalysisQueue {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	q := &AnalysisQueue{
		repo:         repo,
		firmware:     firmware,
		store:        store,
		analyzer:     az,
		events:       events,
		audit:        audit,
		notifier:     opts.Notifier,
		jobs:         make(chan models.AnalysisJob, capacity),
		workers:      make(chan struct{}, workers),
		quit:         make(chan struct{}),
		consumerDone: make(chan struct{}),
	}
	go q.consume()
	return q
}

// QueueAnalysis submits a job. It blocks while the queue is at capacity and
// fails only once the queue has been shut down. The analysis outcome is
// never returned here; callers observe it through progress events or by
// polling the repository.
func (q *AnalysisQueue) QueueAnalysis(job models.AnalysisJob) error {
	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	// Registering under the lock keeps Shutdown from closing the consumer
	// side while this send is still pending.
	q.senders.Add(1)
	q.mu.Unlock()
	defer q.senders.Done()

	q.jobs <- job
	return nil
}

// Shutdown closes the submission side, lets the consumer drain jobs that
// were already accepted, and waits for in-flight analyses to finish or the
// context to expire.
func (q *AnalysisQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	// Accepted submissions must land in the channel before the consumer is
	// told to drain, otherwise a successful QueueAnalysis could be dropped.
	q.senders.Wait()
	close(q.quit)
	<-q.consumerDone

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown interrupted with analyses still running: %w", ctx.Err())
	}
}

// consume is the single consumer loop. Each received job runs in its own
// goroutine, gated by the worker semaphore.
func (q *AnalysisQueue) consume() {
	defer close(q.consumerDone)

	for {
		select {
		case job := <-q.jobs:
			q.dispatch(job)
		case <-q.quit:
			// Drain jobs accepted before shutdown.
			for {
				select {
				case job := <-q.jobs:
					q.dispatch(job)
				default:
					return
				}
			}
		}
	}
}

func (q *AnalysisQueue) dispatch(job models.AnalysisJob) {
	q.workers <- struct{}{}
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer func() { <-q.workers }()
		q.runJob(job)
	}()
}

// runJob drives one job through the full execution sequence. Progress
// events for a single firmware version are emitted in a fixed order; the
// database handle is only touched between, never across, file reads and
// analysis work.
func (q *AnalysisQueue) runJob(job models.AnalysisJob) {
	ctx := context.Background()

	q.emit(job, models.AnalysisStatusInProgress, 0, "Starting analysis")
	q.auditEvent(job, models.AuditEventAnalysisStarted, map[string]any{
		"job_id": job.JobID,
	})

	fw, err := q.firmware.GetFirmwareVersion(job.FirmwareVersionID)
	if err != nil {
		q.fail(job, 0, fmt.Errorf("firmware record unavailable: %w", err))
		return
	}

	record, err := q.fetchOrCreateRecord(job.FirmwareVersionID)
	if err != nil {
		q.fail(job, 0, err)
		return
	}
	if err := q.repo.UpdateAnalysisStatus(record.ID, models.AnalysisStatusInProgress, nil); err != nil {
		q.fail(job, record.ID, fmt.Errorf("failed to mark analysis in progress: %w", err))
		return
	}

	q.emit(job, models.AnalysisStatusInProgress, 20, "Reading firmware file")

	data, err := q.store.ReadFirmwareFile(ctx, fw.FilePath, job.UserID, job.Username)
	if err != nil {
		q.fail(job, record.ID, fmt.Errorf("failed to read firmware file: %w", err))
		return
	}
	if fw.FileHash != "" {
		sum := sha256.Sum256(data)
		if actual := hex.EncodeToString(sum[:]); actual != fw.FileHash {
			q.fail(job, record.ID, fmt.Errorf("firmware integrity check failed: stored hash %s, file hash %s", fw.FileHash, actual))
			return
		}
	}

	q.emit(job, models.AnalysisStatusInProgress, 40, "Analyzing firmware")

	result, err := q.analyzer.Analyze(ctx, data)
	if err != nil {
		q.fail(job, record.ID, err)
		return
	}

	q.emit(job, models.AnalysisStatusInProgress, 80, "Saving results")

	if err := q.persistResults(record.ID, result); err != nil {
		q.fail(job, record.ID, err)
		return
	}
	if err := q.repo.UpdateAnalysisStatus(record.ID, models.AnalysisStatusCompleted, nil); err != nil {
		q.fail(job, record.ID, fmt.Errorf("failed to mark analysis completed: %w", err))
		return
	}

	q.emit(job, models.AnalysisStatusCompleted, 100, "Analysis completed")
	q.auditEvent(job, models.AuditEventAnalysisCompleted, map[string]any{
		"job_id":        job.JobID,
		"file_type":     result.FileType,
		"finding_count": len(result.SecurityFindings),
		"entropy_score": result.EntropyScore,
	})

	if q.notifier != nil {
		q.notifier.AnalysisCompleted(job, result)
	}
}

// fetchOrCreateRecord reuses an existing analysis row for re-runs. Only a
// missing row leads to CreateAnalysis; any other lookup error fails the job
// so a transient database problem is not reported as a duplicate insert.
func (q *AnalysisQueue) fetchOrCreateRecord(firmwareVersionID int64) (*models.FirmwareAnalysisResult, error) {
	record, err := q.repo.GetAnalysisByFirmwareVersion(firmwareVersionID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up analysis record: %w", err)
	}
	record, createErr := q.repo.CreateAnalysis(firmwareVersionID)
	if createErr != nil {
		return nil, fmt.Errorf("failed to create analysis record: %w", createErr)
	}
	return record, nil
}

// persistResults writes every result field in one repository call.
func (q *AnalysisQueue) persistResults(recordID int64, result *models.AnalysisResult) error {
	var versionsJSON *string
	if len(result.DetectedVersions) > 0 {
		raw, err := json.Marshal(result.DetectedVersions)
		if err != nil {
			return fmt.Errorf("failed to encode detected versions: %w", err)
		}
		s := string(raw)
		versionsJSON = &s
	}

	var findingsJSON *string
	if len(result.SecurityFindings) > 0 {
		raw, err := json.Marshal(result.SecurityFindings)
		if err != nil {
			return fmt.Errorf("failed to encode security findings: %w", err)
		}
		s := string(raw)
		findingsJSON = &s
	}

	var rawResults *string
	encoded, err := analyzer.EncodeRawResults(result.SignatureHits)
	if err != nil {
		return err
	}
	if encoded != "" {
		rawResults = &encoded
	}

	fileType := result.FileType
	entropy := result.EntropyScore
	if err := q.repo.UpdateAnalysisResults(recordID, &fileType, versionsJSON, &entropy, findingsJSON, rawResults); err != nil {
		return fmt.Errorf("failed to persist analysis results: %w", err)
	}
	return nil
}

// fail marks the record Failed, emits the terminal progress event, and
// audit-logs the failure. The Failed write itself is best effort: a
// failure there is logged and swallowed.
func (q *AnalysisQueue) fail(job models.AnalysisJob, recordID int64, cause error) {
	message := cause.Error()
	log.Printf("analysis of firmware %d failed: %v", job.FirmwareVersionID, cause)

	if recordID != 0 {
		if err := q.repo.UpdateAnalysisStatus(recordID, models.AnalysisStatusFailed, &message); err != nil {
			log.Printf("failed to mark analysis %d as failed: %v", recordID, err)
		}
	}

	q.events.Publish(models.ProgressEvent{
		FirmwareVersionID: job.FirmwareVersionID,
		Status:            string(models.AnalysisStatusFailed),
		Message:           message,
	})
	q.auditEvent(job, models.AuditEventAnalysisFailed, map[string]any{
		"job_id": job.JobID,
		"error":  message,
	})

	if q.notifier != nil {
		q.notifier.AnalysisFailed(job, message)
	}
}

func (q *AnalysisQueue) emit(job models.AnalysisJob, status models.AnalysisStatus, progress int, message string) {
	q.events.Publish(models.ProgressEvent{
		FirmwareVersionID: job.FirmwareVersionID,
		Status:            string(status),
		Progress:          &progress,
		Message:           message,
	})
}

func (q *AnalysisQueue) auditEvent(job models.AnalysisJob, eventType string, details map[string]any) {
	if err := q.audit.RecordAuditEvent(job.JobID, eventType, job.FirmwareVersionID, job.UserID, job.Username, details); err != nil {
		log.Printf("failed to record audit event %s for firmware %d: %v", eventType, job.FirmwareVersionID, err)
	}
}
