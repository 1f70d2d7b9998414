package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/qrpay-reconciler/internal/domain/syncjob"
)

// WorkerPoolReconcileService implements the ReconcileService interface
type WorkerPoolReconcileService struct {
	baseService ReconcileService
	pool        *ants.Pool
	logger      *slog.Logger
	// Use a mutex to protect access to the results map
	mu      sync.Mutex
	results map[string]chan error
}

type WorkerPoolConfig struct {
	Size int
}

func NewWorkerPoolReconcileService(
	baseService ReconcileService,
	config WorkerPoolConfig,
	logger *slog.Logger,
) (*WorkerPoolReconcileService, error) {
	// Create a new worker pool with the specified size
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, err
	}

	return &WorkerPoolReconcileService{
		baseService: baseService,
		pool:        pool,
		logger:      logger,
		results:     make(map[string]chan error),
	}, nil
}

// Reconcile submits a sync job to the worker pool and waits for its result.
func (s *WorkerPoolReconcileService) Reconcile(ctx context.Context, job *syncjob.Job) error {
	s.logger.Debug("Submitting sync job to worker pool",
		"qr_id", job.QRID,
		"priority", job.Priority.String(),
	)

	// Create a channel to receive the result of the reconciliation
	resultChan := make(chan error, 1)

	// Store the result channel in the result map
	s.mu.Lock()
	s.results[job.Key] = resultChan
	s.mu.Unlock()

	// Create a copy of the job to avoid data races
	jobCopy := *job

	// Submit the task to the worker pool
	err := s.pool.Submit(func() {
		// Reconcile the job using the base service
		err := s.baseService.Reconcile(ctx, &jobCopy)

		// Send the result to the channel
		resultChan <- err

		// Remove the result channel from the map
		s.mu.Lock()
		delete(s.results, jobCopy.Key)
		close(resultChan)
		s.mu.Unlock()
	})

	if err != nil {
		// If we couldn't submit the task to the pool, remove the result channel
		s.mu.Lock()
		delete(s.results, job.Key)
		close(resultChan)
		s.mu.Unlock()

		s.logger.Error("Failed to submit sync job to worker pool",
			"qr_id", job.QRID,
			"error", err,
		)
		return err
	}

	// Wait for the result from the worker
	return <-resultChan
}

// Shutdown gracefully shuts down the worker pool.
func (s *WorkerPoolReconcileService) Shutdown() {
	s.logger.Info("Shutting down worker pool", "running_workers", s.pool.Running())
	s.pool.Release()
}

// Running returns the number of running workers in the pool.
func (s *WorkerPoolReconcileService) Running() int {
	return s.pool.Running()
}

// Capacity returns the capacity of the worker pool.
func (s *WorkerPoolReconcileService) Capacity() int {
	return s.pool.Cap()
}
