package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"citizen-system/config"
	"citizen-system/internal/model"
	"citizen-system/internal/repository"
	"citizen-system/pkg/avatar"
	"citizen-system/pkg/logger"
	"citizen-system/pkg/metrics"
	"citizen-system/pkg/redis"
	"citizen-system/pkg/retry"

	"go.uber.org/zap"
)

// 进度步骤
const (
	StepGenStart          = "GEN_START"
	StepAvatarGenerated   = "AVATAR_GENERATED"
	StepFaceIndexed       = "FACE_INDEXED"
	StepNicknameGenerated = "NICKNAME_GENERATED"
	StepProfileUpdate     = "PROFILE_UPDATE"
	StepDone              = "DONE"
	StepFailed            = "FAILED"
)

// 失败时记录在 reg_meta.step 中的环节
const (
	stageAvatar   = "avatar"
	stageFace     = "face"
	stageNickname = "nickname"
	stageCommit   = "commit"
)

// failWriteTimeout 写入失败状态的独立超时，不受任务本身的截止时间影响
const failWriteTimeout = 15 * time.Second

// ErrActivationInProgress 另一次投递正在执行且尚未超过接管窗口，队列应稍后重新投递
var ErrActivationInProgress = errors.New("激活正在进行中")

// ActivationDeps 激活服务依赖
type ActivationDeps struct {
	Profiles      *repository.ProfileRepository
	Avatars       AvatarGenerator
	Faces         FaceIndexer
	Nicknames     *NicknameService
	Progress      ProgressReporter // 可为 nil
	Metrics       *metrics.Metrics // 可为 nil
	Styles        []config.StyleConfig
	Policy        retry.Policy
	VendorTimeout time.Duration
	StaleAfter    time.Duration
}

// ActivationService 激活编排：PAID -> GENERATING -> ACTIVE | ACTIVATION_FAILED
type ActivationService struct {
	profiles      *repository.ProfileRepository
	avatars       AvatarGenerator
	faces         FaceIndexer
	nicknames     *NicknameService
	progress      ProgressReporter
	metrics       *metrics.Metrics
	styles        map[string]config.StyleConfig
	policy        retry.Policy
	vendorTimeout time.Duration
	staleAfter    time.Duration
	now           func() time.Time
}

// NewActivationService 创建激活服务
func NewActivationService(d ActivationDeps) *ActivationService {
	styles := make(map[string]config.StyleConfig, len(d.Styles))
	for _, st := range d.Styles {
		styles[st.ID] = st
	}
	return &ActivationService{
		profiles:      d.Profiles,
		avatars:       d.Avatars,
		faces:         d.Faces,
		nicknames:     d.Nicknames,
		progress:      d.Progress,
		metrics:       d.Metrics,
		styles:        styles,
		policy:        d.Policy,
		vendorTimeout: d.VendorTimeout,
		staleAfter:    d.StaleAfter,
		now:           time.Now,
	}
}

// run 单次激活的上下文
type run struct {
	profile  *model.Profile
	style    config.StyleConfig
	jobID    string
	started  time.Time
	takeover bool
}

func (r *run) meta(step string, err error) model.RegMeta {
	m := model.RegMeta{Step: step, JobID: r.jobID, StartedAt: r.started}
	if err != nil {
		m.Error = err.Error()
	}
	return m
}

// Activate 执行激活
func (s *ActivationService) Activate(ctx context.Context, profileID string) error {
	return s.ActivateJob(ctx, profileID, "")
}

// ActivateJob 执行激活，jobID 写入簿记便于排查。
//
// 重复投递是安全的：只有把状态推进到 GENERATING 的那次投递（或接管超时流程的投递）会继续执行。
// 档案仍在其他投递的执行窗口内时返回 ErrActivationInProgress，由队列稍后重投，
// 直到流程结束或超过 staleAfter 被接管。
// 任一外部步骤失败（含超时）都不在内部重试，档案记为 ACTIVATION_FAILED 后返回 nil；
// 只有输入错误、存储不可用，或失败状态本身写不进去时才返回错误。
func (s *ActivationService) ActivateJob(ctx context.Context, profileID, jobID string) error {
	log := logger.With(zap.String("profile_id", profileID), zap.String("job_id", jobID))

	p, err := retry.Do(ctx, s.storePolicy(), "activation.load", func(ctx context.Context) (*model.Profile, error) {
		return s.profiles.GetByID(ctx, profileID)
	})
	if err != nil {
		return fmt.Errorf("加载档案 %s: %w", profileID, err)
	}

	if p.Status.IsTerminal() {
		log.Info("档案已处于终态，忽略激活任务", zap.String("status", string(p.Status)))
		s.metrics.IncActivation("skipped")
		return nil
	}
	if p.Status == model.StatusStaging {
		return fmt.Errorf("档案尚未支付: %w", ErrInvalidInput)
	}
	if !p.HasStagingInputs() {
		return fmt.Errorf("档案缺少暂存的人脸/风格/性别: %w", ErrInvalidInput)
	}
	style, ok := s.styles[model.Deref(p.StyleID)]
	if !ok {
		return fmt.Errorf("未知的风格 %q: %w", model.Deref(p.StyleID), ErrInvalidInput)
	}

	r := &run{profile: p, style: style, jobID: jobID, started: s.now().UTC()}
	proceed, err := s.begin(ctx, r)
	if errors.Is(err, ErrActivationInProgress) {
		log.Info("激活正由其他投递执行，稍后重试")
		s.metrics.IncActivation("in_progress")
		return err
	}
	if err != nil {
		return err
	}
	if !proceed {
		log.Info("重复投递，激活已由其他任务完成")
		s.metrics.IncActivation("duplicate")
		return nil
	}
	if r.takeover {
		log.Warn("接管超时的激活流程", zap.Int("retry_count", p.RegRetryCount+1))
	}
	s.report(ctx, profileID, StepGenStart, redis.ProgressRunning, 0, "")

	citizenID, stage, err := s.execute(ctx, r)
	if err != nil {
		return s.fail(ctx, r, stage, err)
	}

	s.metrics.IncActivation("activated")
	s.metrics.IncCitizenIDs()
	s.report(ctx, profileID, StepDone, redis.ProgressDone, citizenID, "")
	log.Info("激活完成", zap.Int64("citizen_id", citizenID), zap.Duration("elapsed", s.now().Sub(r.started)))
	return nil
}

// begin 推进到 GENERATING；已经是 GENERATING 时只有超过 staleAfter 才能接管，
// 否则返回 ErrActivationInProgress
func (s *ActivationService) begin(ctx context.Context, r *run) (bool, error) {
	id := r.profile.ID
	t, err := retry.Do(ctx, s.storePolicy(), "activation.advance", func(ctx context.Context) (repository.Transition, error) {
		return s.profiles.Advance(ctx, id, model.StatusGenerating, r.meta(StepGenStart, nil))
	})
	if errors.Is(err, repository.ErrInvalidTransition) {
		// 读取之后被其他任务推进到了终态
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("推进到GENERATING: %w", err)
	}
	if t.Applied {
		return true, nil
	}

	staleBefore := r.started.Add(-s.staleAfter)
	claimed, err := retry.Do(ctx, s.storePolicy(), "activation.claim", func(ctx context.Context) (bool, error) {
		return s.profiles.ClaimStaleGeneration(ctx, id, staleBefore, r.meta(StepGenStart, nil))
	})
	if errors.Is(err, repository.ErrInvalidState) {
		// 其他投递已经结束
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("接管激活流程: %w", err)
	}
	if !claimed {
		return false, ErrActivationInProgress
	}
	r.takeover = true
	return true, nil
}

// execute 依次执行头像、人脸、昵称与最终提交，返回失败所在环节
func (s *ActivationService) execute(ctx context.Context, r *run) (int64, string, error) {
	p := r.profile
	faceURL := model.Deref(p.TmpFaceURL)
	gender := model.Deref(p.Gender)

	// 1. 头像
	avatars, err := s.generateAvatars(ctx, r)
	if err != nil {
		return 0, stageAvatar, err
	}
	chosenAvatar := avatars[0]
	s.report(ctx, p.ID, StepAvatarGenerated, redis.ProgressRunning, 0, "")

	// 2. 人脸入库
	start := s.now()
	faceID, err := withTimeout(ctx, s.vendorTimeout, func(ctx context.Context) (string, error) {
		return s.faces.IndexFace(ctx, faceURL, p.ID)
	})
	s.metrics.ObserveStep(stageFace, s.now().Sub(start))
	if err != nil {
		return 0, stageFace, fmt.Errorf("人脸入库失败: %w", err)
	}
	s.report(ctx, p.ID, StepFaceIndexed, redis.ProgressRunning, 0, "")

	// 3. 昵称
	start = s.now()
	nick, err := s.nicknames.Resolve(ctx, NicknameRequest{AvatarRef: chosenAvatar, Gender: gender, Archetype: r.style.Archetype})
	s.metrics.ObserveStep(stageNickname, s.now().Sub(start))
	if err != nil {
		return 0, stageNickname, fmt.Errorf("昵称生成失败: %w", err)
	}
	if err := retry.Exec(ctx, s.storePolicy(), "activation.publish_nicknames", func(ctx context.Context) error {
		return s.profiles.PublishNicknameOptions(ctx, p.ID, nick.Options)
	}); err != nil {
		return 0, stageNickname, err
	}
	s.report(ctx, p.ID, StepNicknameGenerated, redis.ProgressRunning, 0, "")

	// 4. 原子提交
	s.report(ctx, p.ID, StepProfileUpdate, redis.ProgressRunning, 0, "")
	start = s.now()
	citizenID, err := retry.Do(ctx, s.storePolicy(), "activation.commit", func(ctx context.Context) (int64, error) {
		return s.profiles.CommitActivation(ctx, p.ID, repository.ActivationCommit{
			AvatarURL: chosenAvatar,
			Nickname:  nick.Nickname,
			RekFaceID: faceID,
			Meta:      r.meta(StepDone, nil),
		})
	})
	s.metrics.ObserveStep(stageCommit, s.now().Sub(start))
	if err != nil {
		return 0, stageCommit, err
	}
	return citizenID, "", nil
}

// generateAvatars 接管时复用已发布的候选，避免重复调用生成服务
func (s *ActivationService) generateAvatars(ctx context.Context, r *run) ([]string, error) {
	p := r.profile
	if r.takeover && len(p.AvatarURLs) > 0 {
		logger.Info("复用已发布的头像候选", zap.String("profile_id", p.ID), zap.Int("count", len(p.AvatarURLs)))
		return p.AvatarURLs, nil
	}

	start := s.now()
	urls, err := withTimeout(ctx, s.vendorTimeout, func(ctx context.Context) ([]string, error) {
		return s.avatars.GenerateAvatar(ctx, avatar.Request{
			SubjectID:    p.ID,
			FaceURL:      model.Deref(p.TmpFaceURL),
			ReferenceURL: r.style.ReferenceURL,
			Gender:       model.Deref(p.Gender),
			Archetype:    r.style.Archetype,
		})
	})
	s.metrics.ObserveStep(stageAvatar, s.now().Sub(start))
	if err != nil {
		return nil, fmt.Errorf("头像生成失败: %w", err)
	}
	if len(urls) == 0 {
		return nil, avatar.ErrNoCandidates
	}

	if err := retry.Exec(ctx, s.storePolicy(), "activation.publish_avatars", func(ctx context.Context) error {
		return s.profiles.PublishAvatarCandidates(ctx, p.ID, urls)
	}); err != nil {
		return nil, err
	}
	return urls, nil
}

// fail 记录 ACTIVATION_FAILED。记录成功时失败已被处理，返回 nil；
// 记录本身失败则输出 critical 日志并返回合并后的错误。
// 任务上下文可能已超时或取消，写入使用独立的上下文。
func (s *ActivationService) fail(ctx context.Context, r *run, stage string, cause error) error {
	id := r.profile.ID
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failWriteTimeout)
	defer cancel()
	fields := []zap.Field{
		zap.String("profile_id", id),
		zap.String("job_id", r.jobID),
		zap.String("stage", stage),
		zap.Error(cause),
	}

	_, err := retry.Do(ctx, s.storePolicy(), "activation.fail", func(ctx context.Context) (repository.Transition, error) {
		return s.profiles.Advance(ctx, id, model.StatusActivationFailed, r.meta(stage, cause))
	})
	if errors.Is(err, repository.ErrInvalidTransition) {
		// 已被其他任务提交为 ACTIVE
		logger.Warn("激活失败时档案已处于终态", fields...)
		return nil
	}

	s.metrics.IncActivation("failed")
	s.report(ctx, id, StepFailed, redis.ProgressFailed, 0, stage)
	if err != nil {
		logger.Critical("激活失败且无法写入失败状态，需要人工介入", append(fields, zap.NamedError("record_error", err))...)
		return errors.Join(cause, err)
	}
	logger.Error("激活失败", fields...)
	return nil
}

func (s *ActivationService) report(ctx context.Context, profileID, step string, state redis.ProgressState, citizenID int64, errStage string) {
	if s.progress == nil {
		return
	}
	p := redis.Progress{ProfileID: profileID, Step: step, State: state, CitizenID: citizenID, Error: errStage}
	if err := s.progress.Write(context.WithoutCancel(ctx), p); err != nil {
		logger.Warn("写入激活进度失败", zap.String("profile_id", profileID), zap.String("step", step), zap.Error(err))
	}
}

func (s *ActivationService) storePolicy() retry.Policy {
	p := s.policy
	if p.Permanent == nil {
		p.Permanent = storePermanent
	}
	if p.OnAttempt == nil {
		p.OnAttempt = s.metrics.RetryHook
	}
	return p
}

// withTimeout 外部调用各自独立超时，超时按外部服务错误处理
func withTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}
