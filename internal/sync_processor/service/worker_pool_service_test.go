package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/qrpay-reconciler/internal/domain/syncjob"
)

// MockReconcileService mocks the ReconcileService interface
type MockReconcileService struct {
	mock.Mock
}

func (m *MockReconcileService) Reconcile(ctx context.Context, job *syncjob.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func TestWorkerPoolReconcileService_Reconcile(t *testing.T) {
	logger := slog.Default()
	job := syncjob.NewJob("QR-POOL-001", uuid.New(), syncjob.PriorityHigh, time.Now())

	tests := []struct {
		name          string
		baseErr       error
		expectedError error
	}{
		{
			name: "successful reconciliation",
		},
		{
			name:          "reconciliation error",
			baseErr:       errors.New("gateway down"),
			expectedError: errors.New("gateway down"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockBaseService := &MockReconcileService{}
			mockBaseService.On("Reconcile", mock.Anything, mock.MatchedBy(func(j *syncjob.Job) bool {
				return j.Key == job.Key
			})).Return(tt.baseErr).Once()

			workerPoolService, err := NewWorkerPoolReconcileService(
				mockBaseService,
				WorkerPoolConfig{
					Size: 2,
				},
				logger,
			)
			assert.NoError(t, err)
			defer workerPoolService.Shutdown()

			err = workerPoolService.Reconcile(context.Background(), job)

			if tt.expectedError != nil {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError.Error())
			} else {
				assert.NoError(t, err)
			}

			mockBaseService.AssertExpectations(t)
		})
	}
}

func TestWorkerPoolReconcileService_Concurrency(t *testing.T) {
	mockBaseService := &MockReconcileService{}
	logger := slog.Default()

	workerPoolService, err := NewWorkerPoolReconcileService(
		mockBaseService,
		WorkerPoolConfig{
			Size: 5,
		},
		logger,
	)
	assert.NoError(t, err)
	defer workerPoolService.Shutdown()

	var mu sync.Mutex
	counter := 0

	mockBaseService.On("Reconcile", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		// Simulate some work
		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		counter++
		mu.Unlock()
	}).Return(nil)

	numJobs := 10
	var wg sync.WaitGroup
	wg.Add(numJobs)

	for i := 0; i < numJobs; i++ {
		go func(i int) {
			defer wg.Done()

			job := syncjob.NewJob(fmt.Sprintf("QR-POOL-%03d", i), uuid.New(), syncjob.PriorityMedium, time.Now())
			err := workerPoolService.Reconcile(context.Background(), job)
			assert.NoError(t, err)
		}(i)
	}

	wg.Wait()

	assert.Equal(t, numJobs, counter)
	assert.True(t, workerPoolService.Running() > 0)
	assert.Equal(t, 5, workerPoolService.Capacity())
}
