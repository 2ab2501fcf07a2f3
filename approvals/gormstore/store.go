// Package gormstore 基于 GORM 的审批记录存储，支持 PostgreSQL、MySQL 与
// SQLite（glebarez 纯 Go 驱动）。
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/approvalflow/approvals"
	"github.com/BaSui01/approvalflow/internal/database"
	"github.com/BaSui01/approvalflow/types"
)

// updateRetries 写终态时事务的最大尝试次数
const updateRetries = 3

// Store 实现 approvals.Store
type Store struct {
	pm     *database.PoolManager
	now    func() time.Time
	logger *zap.Logger
}

var _ approvals.Store = (*Store)(nil)

// New 创建存储
func New(pm *database.PoolManager, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pm:     pm,
		now:    time.Now,
		logger: logger.With(zap.String("component", "approval_store")),
	}
}

// AutoMigrate 创建或更新表结构
func (s *Store) AutoMigrate(ctx context.Context) error {
	err := s.pm.DB().WithContext(ctx).AutoMigrate(
		&Workspace{},
		&ExecutionProcess{},
		&ApprovalRecord{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	return nil
}

// Save 以 pending 状态保存新请求
func (s *Store) Save(ctx context.Context, req types.ApprovalRequest, kind types.ApprovalKind) error {
	row := newRecordRow(req, kind)
	if err := s.pm.DB().WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", approvals.ErrDuplicateID, req.ID)
		}
		return fmt.Errorf("save approval %s: %w", req.ID, err)
	}
	return nil
}

// UpdateStatus 写入终态。只更新仍为 pending 的行，已解决的行返回 ErrAlreadyResolved。
func (s *Store) UpdateStatus(ctx context.Context, id string, outcome types.ApprovalOutcome, resolver types.Resolver) error {
	cols, err := resolutionColumns(outcome, resolver, s.now())
	if err != nil {
		return err
	}

	return s.pm.WithTransactionRetry(ctx, updateRetries, func(tx *gorm.DB) error {
		res := tx.Model(&ApprovalRecord{}).
			Where("id = ? AND status = ?", id, string(approvals.RecordPending)).
			Updates(cols)
		if res.Error != nil {
			return fmt.Errorf("update approval %s: %w", id, res.Error)
		}
		if res.RowsAffected > 0 {
			return nil
		}

		var count int64
		if err := tx.Model(&ApprovalRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("update approval %s: %w", id, err)
		}
		if count == 0 {
			return fmt.Errorf("%w: %s", approvals.ErrNotFound, id)
		}
		return fmt.Errorf("%w: %s", approvals.ErrAlreadyResolved, id)
	})
}

// LoadExecutionContext 加载执行进程及其工作区
func (s *Store) LoadExecutionContext(ctx context.Context, executionProcessID string) (*approvals.ExecutionContext, error) {
	var ep ExecutionProcess
	err := s.pm.DB().WithContext(ctx).
		Preload("Workspace").
		Where("id = ?", executionProcessID).
		First(&ep).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("execution process %s: %w", executionProcessID, approvals.ErrNotFound)
		}
		return nil, fmt.Errorf("load execution process %s: %w", executionProcessID, err)
	}

	ec := &approvals.ExecutionContext{
		ExecutionProcessID: ep.ID,
		Workspace:          approvals.Workspace{ID: ep.WorkspaceID},
	}
	if ep.Workspace != nil {
		ec.Workspace.Name = ep.Workspace.Name
		ec.Workspace.Branch = ep.Workspace.Branch
	}
	return ec, nil
}

// Get 读取持久化记录
func (s *Store) Get(ctx context.Context, id string) (*approvals.ApprovalRecord, error) {
	var row ApprovalRecord
	err := s.pm.DB().WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", approvals.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get approval %s: %w", id, err)
	}
	return row.toDomain()
}

// ListByExecutionProcess 按创建时间返回某个执行进程的全部记录
func (s *Store) ListByExecutionProcess(ctx context.Context, executionProcessID string) ([]*approvals.ApprovalRecord, error) {
	var rows []ApprovalRecord
	err := s.pm.DB().WithContext(ctx).
		Where("execution_process_id = ?", executionProcessID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list approvals of %s: %w", executionProcessID, err)
	}

	out := make([]*approvals.ApprovalRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// RegisterExecutionProcess 写入（或更新）执行进程及其工作区
func (s *Store) RegisterExecutionProcess(ctx context.Context, ec approvals.ExecutionContext) error {
	if ec.ExecutionProcessID == "" || ec.Workspace.ID == "" {
		return fmt.Errorf("execution process and workspace ids are required")
	}

	return s.pm.WithTransaction(ctx, func(tx *gorm.DB) error {
		ws := Workspace{ID: ec.Workspace.ID, Name: ec.Workspace.Name, Branch: ec.Workspace.Branch}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "branch"}),
		}).Create(&ws).Error; err != nil {
			return fmt.Errorf("upsert workspace %s: %w", ws.ID, err)
		}

		ep := ExecutionProcess{ID: ec.ExecutionProcessID, WorkspaceID: ec.Workspace.ID}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"workspace_id"}),
		}).Create(&ep).Error; err != nil {
			return fmt.Errorf("upsert execution process %s: %w", ep.ID, err)
		}
		return nil
	})
}
