package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"citizen-system/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileRepository 档案数据仓储，同时承载注册状态机
type ProfileRepository struct {
	db      *gorm.DB
	counter *CounterRepository
}

// NewProfileRepository 创建ProfileRepository实例
func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db, counter: NewCounterRepository()}
}

// Transition 状态迁移结果
type Transition struct {
	Applied bool                // false 表示目标状态与当前相同，未做任何修改
	From    model.ProfileStatus // 迁移前状态
}

// ActivationCommit 激活提交的最终值
type ActivationCommit struct {
	AvatarURL string
	Nickname  string
	RekFaceID string
	Meta      model.RegMeta
}

// lockProfile 在事务内以 SELECT ... FOR UPDATE 读取档案，串行化同一档案的并发修改
func lockProfile(tx *gorm.DB, id string) (*model.Profile, error) {
	var p model.Profile
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Take(&p).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// Create 创建档案
func (r *ProfileRepository) Create(ctx context.Context, p *model.Profile) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// GetByID 根据ID获取档案
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*model.Profile, error) {
	var p model.Profile
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// Advance 幂等的状态迁移。
// 行锁与写入在同一事务内；目标状态与当前相同时不做修改并返回 Applied=false；
// 否则写入新状态、整体替换 reg_meta、重试计数清零。
// from 非空时，加锁后的当前状态必须属于 from，否则返回 ErrInvalidTransition。
func (r *ProfileRepository) Advance(ctx context.Context, id string, next model.ProfileStatus, meta model.RegMeta, from ...model.ProfileStatus) (Transition, error) {
	var t Transition
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := lockProfile(tx, id)
		if err != nil {
			return err
		}
		t.From = p.Status
		if p.Status == next {
			return nil
		}
		if len(from) > 0 && !slices.Contains(from, p.Status) {
			return fmt.Errorf("%s -> %s (需要 %v): %w", p.Status, next, from, ErrInvalidTransition)
		}
		if !model.CanTransition(p.Status, next) {
			return fmt.Errorf("%s -> %s: %w", p.Status, next, ErrInvalidTransition)
		}
		if err := setStatus(tx, id, next, meta); err != nil {
			return err
		}
		t.Applied = true
		return nil
	})
	if err != nil {
		return Transition{}, err
	}
	return t, nil
}

// ResetFailed 运维显式重置 ACTIVATION_FAILED -> PAID，返回重置前的簿记。
// 档案不处于 ACTIVATION_FAILED 时返回 ErrInvalidTransition。
func (r *ProfileRepository) ResetFailed(ctx context.Context, id string, meta model.RegMeta) (model.RegMeta, error) {
	var prev model.RegMeta
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := lockProfile(tx, id)
		if err != nil {
			return err
		}
		if p.Status != model.StatusActivationFailed {
			return fmt.Errorf("重置 %s: %w", p.Status, ErrInvalidTransition)
		}
		prev = p.RegMeta.Data()
		return setStatus(tx, id, model.StatusPaid, meta)
	})
	return prev, err
}

func setStatus(tx *gorm.DB, id string, next model.ProfileStatus, meta model.RegMeta) error {
	return tx.Model(&model.Profile{}).Where("id = ?", id).Updates(map[string]any{
		"status":          next,
		"reg_meta":        datatypes.NewJSONType(meta),
		"reg_retry_count": 0,
	}).Error
}

// ClaimStaleGeneration 接管中断的激活流程：
// 档案处于 GENERATING 且上次开始时间早于 staleBefore 时，刷新簿记并将重试计数加一。
// 仍在窗口内返回 false；档案已离开 GENERATING 返回 ErrInvalidState。
func (r *ProfileRepository) ClaimStaleGeneration(ctx context.Context, id string, staleBefore time.Time, meta model.RegMeta) (bool, error) {
	claimed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := lockProfile(tx, id)
		if err != nil {
			return err
		}
		if p.Status != model.StatusGenerating {
			return fmt.Errorf("接管时状态为 %s: %w", p.Status, ErrInvalidState)
		}
		if started := p.RegMeta.Data().StartedAt; !started.IsZero() && started.After(staleBefore) {
			return nil
		}
		res := tx.Model(&model.Profile{}).Where("id = ?", id).Updates(map[string]any{
			"reg_meta":        datatypes.NewJSONType(meta),
			"reg_retry_count": gorm.Expr("reg_retry_count + 1"),
		})
		if res.Error != nil {
			return res.Error
		}
		claimed = true
		return nil
	})
	return claimed, err
}

// PublishAvatarCandidates 发布头像候选集，仅在 GENERATING 状态下允许
func (r *ProfileRepository) PublishAvatarCandidates(ctx context.Context, id string, urls []string) error {
	return r.publish(ctx, id, "avatar_urls", urls)
}

// PublishNicknameOptions 发布昵称候选集，仅在 GENERATING 状态下允许
func (r *ProfileRepository) PublishNicknameOptions(ctx context.Context, id string, names []string) error {
	return r.publish(ctx, id, "nickname_options", names)
}

func (r *ProfileRepository) publish(ctx context.Context, id, column string, values []string) error {
	res := r.db.WithContext(ctx).Model(&model.Profile{}).
		Where("id = ? AND status = ?", id, model.StatusGenerating).
		Update(column, datatypes.NewJSONSlice(values))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("发布%s: %w", column, ErrInvalidState)
	}
	return nil
}

// CommitActivation 激活的最终原子提交：
// 分配公民编号、写入最终头像/昵称/人脸ID、状态置为 ACTIVE、清空暂存字段与候选集。
// 最终值必须属于最近一次发布的候选集。
func (r *ProfileRepository) CommitActivation(ctx context.Context, id string, c ActivationCommit) (int64, error) {
	var citizenID int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := lockProfile(tx, id)
		if err != nil {
			return err
		}
		if !model.CanTransition(p.Status, model.StatusActive) {
			return fmt.Errorf("提交激活时状态为 %s: %w", p.Status, ErrInvalidState)
		}
		if !slices.Contains(p.AvatarURLs, c.AvatarURL) {
			return fmt.Errorf("头像不在候选集中: %w", ErrInvalidState)
		}
		if !slices.Contains(p.NicknameOptions, c.Nickname) {
			return fmt.Errorf("昵称不在候选集中: %w", ErrInvalidState)
		}

		n, err := r.counter.Next(tx, model.CitizenIDCounter)
		if err != nil {
			return err
		}

		res := tx.Model(&model.Profile{}).Where("id = ?", id).Updates(map[string]any{
			"status":           model.StatusActive,
			"citizen_id":       n,
			"avatar_url":       c.AvatarURL,
			"nickname":         c.Nickname,
			"rek_face_id":      c.RekFaceID,
			"tmp_face_url":     nil,
			"style_id":         nil,
			"gender":           nil,
			"avatar_urls":      datatypes.NewJSONSlice([]string{}),
			"nickname_options": datatypes.NewJSONSlice([]string{}),
			"reg_retry_count":  0,
			"reg_meta":         datatypes.NewJSONType(c.Meta),
		})
		if res.Error != nil {
			return res.Error
		}
		citizenID = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return citizenID, nil
}

// TakenNicknames 返回给定昵称中已被占用的集合。
// 昵称唯一索引按不区分大小写的排序规则比较，返回的key统一为小写。
func (r *ProfileRepository) TakenNicknames(ctx context.Context, names []string) (map[string]bool, error) {
	taken := make(map[string]bool, len(names))
	if len(names) == 0 {
		return taken, nil
	}
	var used []string
	err := r.db.WithContext(ctx).Model(&model.Profile{}).
		Where("nickname IN ?", names).
		Pluck("nickname", &used).Error
	if err != nil {
		return nil, err
	}
	for _, n := range used {
		taken[strings.ToLower(n)] = true
	}
	return taken, nil
}

// ListByStatus 按状态列出档案（运维工具使用）
func (r *ProfileRepository) ListByStatus(ctx context.Context, status model.ProfileStatus, limit int) ([]model.Profile, error) {
	var profiles []model.Profile
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("updated_at DESC").
		Limit(limit).
		Find(&profiles).Error
	return profiles, err
}
