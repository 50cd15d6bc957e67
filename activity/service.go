// Package activity records relationship and group mutations asynchronously.
package activity

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Danya2kk/diplomTMS/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entry holds one activity event to be logged.
type Entry struct {
	ProfileID int64
	Action    string
	Detail    interface{}
	TraceID   string
}

// Service logs activity entries asynchronously in batches.
type Service struct {
	db     *gorm.DB
	ch     chan *model.ActivityLog
	stopCh chan struct{}
	wg     sync.WaitGroup
	logger *zap.Logger
}

// New creates a new activity Service and starts its background worker.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	svc := &Service{
		db:     db,
		ch:     make(chan *model.ActivityLog, 1024),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Log enqueues an activity entry for async DB write.
func (svc *Service) Log(entry Entry) {
	detailJSON, _ := json.Marshal(entry.Detail)
	record := &model.ActivityLog{
		ProfileID: entry.ProfileID,
		Action:    entry.Action,
		Detail:    datatypes.JSON(detailJSON),
		TraceID:   entry.TraceID,
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("activity channel full, dropping entry",
			zap.String("action", entry.Action))
	}
}

// Stop flushes remaining entries and shuts down the worker.
// It blocks until the worker goroutine has finished.
func (svc *Service) Stop(_ context.Context) {
	select {
	case <-svc.stopCh:
	default:
		close(svc.stopCh)
	}
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	batch := make([]*model.ActivityLog, 0, 100)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.Create(&batch).Error; err != nil {
			svc.logger.Error("activity batch write failed", zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			// Drain remaining entries.
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}
