package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"citizen-system/config"
	"citizen-system/internal/model"
	"citizen-system/internal/service/mocks"
	"citizen-system/pkg/avatar"
	"citizen-system/pkg/llm"
	"citizen-system/pkg/logger"
	"citizen-system/pkg/redis"
	"citizen-system/pkg/retry"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type ActivationSuite struct {
	suite.Suite

	st       *store
	ctrl     *gomock.Controller
	avatars  *mocks.MockAvatarGenerator
	faces    *mocks.MockFaceIndexer
	names    *mocks.MockNicknameGenerator
	progress *mocks.MockProgressReporter
	svc      *ActivationService

	mu    sync.Mutex
	steps []string
}

func TestActivationSuite(t *testing.T) {
	suite.Run(t, new(ActivationSuite))
}

func (s *ActivationSuite) SetupTest() {
	s.st = newStore(s.T())
	s.ctrl = gomock.NewController(s.T())
	s.avatars = mocks.NewMockAvatarGenerator(s.ctrl)
	s.faces = mocks.NewMockFaceIndexer(s.ctrl)
	s.names = mocks.NewMockNicknameGenerator(s.ctrl)
	s.progress = mocks.NewMockProgressReporter(s.ctrl)
	s.steps = nil

	s.progress.EXPECT().Write(gomock.Any(), gomock.Any()).AnyTimes().
		DoAndReturn(func(_ context.Context, p redis.Progress) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.steps = append(s.steps, p.Step)
			return nil
		})

	s.svc = NewActivationService(ActivationDeps{
		Profiles:      s.st.profiles,
		Avatars:       s.avatars,
		Faces:         s.faces,
		Nicknames:     NewNicknameService(s.names, s.st.profiles, fastPolicy(), time.Second),
		Progress:      s.progress,
		Styles:        []config.StyleConfig{{ID: "knight", Archetype: "Guardian", ReferenceURL: "https://styles.example.com/knight.png"}},
		Policy:        fastPolicy(),
		VendorTimeout: time.Second,
		StaleAfter:    10 * time.Minute,
	})
}

func (s *ActivationSuite) expectHappyVendors(p *model.Profile, avatars []string, names []string) {
	s.avatars.EXPECT().GenerateAvatar(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req avatar.Request) ([]string, error) {
			s.Equal(p.ID, req.SubjectID)
			s.Equal(*p.TmpFaceURL, req.FaceURL)
			s.Equal("Guardian", req.Archetype)
			return avatars, nil
		})
	s.faces.EXPECT().IndexFace(gomock.Any(), *p.TmpFaceURL, p.ID).Return("face-"+p.ID, nil)
	s.names.EXPECT().GenerateNicknameCandidates(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req llm.NicknameRequest) ([]string, error) {
			s.Equal(avatars[0], req.AvatarURL)
			s.Equal("female", req.Gender)
			return names, nil
		})
}

func (s *ActivationSuite) TestHappyPath() {
	p := s.st.paidProfile(s.T())
	s.expectHappyVendors(p, []string{"https://cdn.example.com/a1.png", "https://cdn.example.com/a2.png"}, []string{"IronWarden", "Ash"})

	s.Require().NoError(s.svc.ActivateJob(context.Background(), p.ID, "job-1"))

	got := s.st.reload(s.T(), p.ID)
	s.Equal(model.StatusActive, got.Status)
	s.Require().NotNil(got.CitizenID)
	s.Equal(int64(1), *got.CitizenID)
	s.Equal("https://cdn.example.com/a1.png", model.Deref(got.AvatarURL))
	s.Equal("IronWarden", model.Deref(got.Nickname))
	s.Equal("face-"+p.ID, model.Deref(got.RekFaceID))
	s.Nil(got.TmpFaceURL)
	s.Nil(got.StyleID)
	s.Nil(got.Gender)
	s.Empty(got.AvatarURLs)
	s.Empty(got.NicknameOptions)
	s.Equal("job-1", got.RegMeta.Data().JobID)

	s.Equal([]string{StepGenStart, StepAvatarGenerated, StepFaceIndexed, StepNicknameGenerated, StepProfileUpdate, StepDone}, s.steps)
}

func (s *ActivationSuite) TestRedeliveryAfterSuccessIsNoop() {
	p := s.st.paidProfile(s.T())
	s.expectHappyVendors(p, []string{"a1"}, []string{"Ash"})
	s.Require().NoError(s.svc.Activate(context.Background(), p.ID))

	// 第二次投递不应触发任何外部调用
	s.Require().NoError(s.svc.Activate(context.Background(), p.ID))
	got := s.st.reload(s.T(), p.ID)
	s.Equal(int64(1), *got.CitizenID)
}

func (s *ActivationSuite) TestConcurrentDeliveryWhileGeneratingAsksForRedelivery() {
	p := s.st.paidProfile(s.T())
	s.st.setMeta(s.T(), p.ID, model.StatusGenerating, model.RegMeta{Step: StepGenStart, StartedAt: time.Now().UTC()})

	err := s.svc.Activate(context.Background(), p.ID)
	s.ErrorIs(err, ErrActivationInProgress)
	s.False(IsInputError(err))

	got := s.st.reload(s.T(), p.ID)
	s.Equal(model.StatusGenerating, got.Status)
	s.Equal(0, got.RegRetryCount)
	s.Empty(s.steps)
}

func (s *ActivationSuite) TestStaleGenerationIsTakenOverReusingAvatars() {
	p := s.st.paidProfile(s.T())
	s.st.setMeta(s.T(), p.ID, model.StatusGenerating, model.RegMeta{Step: StepAvatarGenerated, StartedAt: time.Now().Add(-time.Hour).UTC()})
	s.Require().NoError(s.st.profiles.PublishAvatarCandidates(context.Background(), p.ID, []string{"published-1", "published-2"}))

	// 不调用头像生成
	s.faces.EXPECT().IndexFace(gomock.Any(), *p.TmpFaceURL, p.ID).Return("face-1", nil)
	s.names.EXPECT().GenerateNicknameCandidates(gomock.Any(), gomock.Any()).Return([]string{"Ash"}, nil)

	s.Require().NoError(s.svc.Activate(context.Background(), p.ID))

	got := s.st.reload(s.T(), p.ID)
	s.Equal(model.StatusActive, got.Status)
	s.Equal("published-1", model.Deref(got.AvatarURL))
	s.Equal(0, got.RegRetryCount)
}

func (s *ActivationSuite) TestAvatarFailureRecordsFailedState() {
	p := s.st.paidProfile(s.T())
	s.avatars.EXPECT().GenerateAvatar(gomock.Any(), gomock.Any()).
		Return(nil, &avatar.VendorError{StatusCode: 503, Message: "overloaded"})

	s.Require().NoError(s.svc.Activate(context.Background(), p.ID))

	got := s.st.reload(s.T(), p.ID)
	s.Equal(model.StatusActivationFailed, got.Status)
	s.Nil(got.CitizenID)
	s.Equal(stageAvatar, got.RegMeta.Data().Step)
	s.Contains(got.RegMeta.Data().Error, "overloaded")
	s.Equal(StepFailed, s.steps[len(s.steps)-1])

	// 失败没有消耗编号
	next := s.st.paidProfile(s.T())
	s.expectHappyVendors(next, []string{"a1"}, []string{"Ash"})
	s.Require().NoError(s.svc.Activate(context.Background(), next.ID))
	s.Equal(int64(1), *s.st.reload(s.T(), next.ID).CitizenID)
}

func (s *ActivationSuite) TestFaceFailureKeepsPublishedAvatars() {
	p := s.st.paidProfile(s.T())
	s.avatars.EXPECT().GenerateAvatar(gomock.Any(), gomock.Any()).Return([]string{"a1", "a2"}, nil)
	s.faces.EXPECT().IndexFace(gomock.Any(), gomock.Any(), gomock.Any()).Return("", errors.New("throttled"))

	s.Require().NoError(s.svc.Activate(context.Background(), p.ID))

	got := s.st.reload(s.T(), p.ID)
	s.Equal(model.StatusActivationFailed, got.Status)
	s.Equal(stageFace, got.RegMeta.Data().Step)
	s.Equal([]string{"a1", "a2"}, []string(got.AvatarURLs))
	s.Nil(got.CitizenID)
	s.Nil(got.AvatarURL)
	s.Nil(got.Nickname)
	s.Nil(got.RekFaceID)
}

func (s *ActivationSuite) TestJobDeadlineStillRecordsFailure() {
	p := s.st.paidProfile(s.T())
	s.avatars.EXPECT().GenerateAvatar(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ avatar.Request) ([]string, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s.Require().NoError(s.svc.ActivateJob(ctx, p.ID, "job-deadline"))

	got := s.st.reload(s.T(), p.ID)
	s.Equal(model.StatusActivationFailed, got.Status)
	s.Equal(stageAvatar, got.RegMeta.Data().Step)
	s.Contains(got.RegMeta.Data().Error, context.DeadlineExceeded.Error())
	s.Equal(StepFailed, s.steps[len(s.steps)-1])

	// 重新投递不再执行
	s.Require().NoError(s.svc.Activate(context.Background(), p.ID))
	s.Equal(model.StatusActivationFailed, s.st.reload(s.T(), p.ID).Status)
}

func (s *ActivationSuite) TestFailureThatCannotBeRecordedIsCritical() {
	core, logs := observer.New(zap.InfoLevel)
	logger.SetLogger(zap.New(core))
	s.T().Cleanup(func() { logger.SetLogger(nil) })

	// 头像失败之后所有更新都写不进去
	var broken atomic.Bool
	s.Require().NoError(s.st.db.Callback().Update().Before("gorm:update").Register("test:broken_store", func(tx *gorm.DB) {
		if broken.Load() {
			_ = tx.AddError(errors.New("disk I/O error"))
		}
	}))
	s.T().Cleanup(func() { _ = s.st.db.Callback().Update().Remove("test:broken_store") })

	p := s.st.paidProfile(s.T())
	cause := &avatar.VendorError{StatusCode: 503, Message: "overloaded"}
	s.avatars.EXPECT().GenerateAvatar(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, avatar.Request) ([]string, error) {
			broken.Store(true)
			return nil, cause
		})

	err := s.svc.Activate(context.Background(), p.ID)
	s.Require().Error(err)
	s.ErrorIs(err, cause)
	s.ErrorIs(err, retry.ErrExhausted)

	broken.Store(false)
	s.Equal(model.StatusGenerating, s.st.reload(s.T(), p.ID).Status)

	critical := logs.FilterField(zap.String("severity", "critical")).FilterMessageSnippet("人工介入")
	s.Equal(1, critical.Len())
}

func (s *ActivationSuite) TestNicknameFailureRecordsStage() {
	p := s.st.paidProfile(s.T())
	s.avatars.EXPECT().GenerateAvatar(gomock.Any(), gomock.Any()).Return([]string{"a1"}, nil)
	s.faces.EXPECT().IndexFace(gomock.Any(), gomock.Any(), gomock.Any()).Return("face-1", nil)
	s.names.EXPECT().GenerateNicknameCandidates(gomock.Any(), gomock.Any()).Return(nil, llm.ErrMalformedResponse)

	s.Require().NoError(s.svc.Activate(context.Background(), p.ID))

	got := s.st.reload(s.T(), p.ID)
	s.Equal(model.StatusActivationFailed, got.Status)
	s.Equal(stageNickname, got.RegMeta.Data().Step)
}

func (s *ActivationSuite) TestSkipsTakenNickname() {
	s.st.activeProfile(s.T(), "IronWarden")
	p := s.st.paidProfile(s.T())
	s.expectHappyVendors(p, []string{"a1"}, []string{"ironwarden", "Ash"})

	s.Require().NoError(s.svc.Activate(context.Background(), p.ID))
	s.Equal("Ash", model.Deref(s.st.reload(s.T(), p.ID).Nickname))
}

func (s *ActivationSuite) TestInvalidInputs() {
	ctx := context.Background()

	missing := s.st.paidProfile(s.T())
	s.Require().NoError(s.st.db.Model(&model.Profile{}).Where("id = ?", missing.ID).Update("gender", nil).Error)
	s.ErrorIs(s.svc.Activate(ctx, missing.ID), ErrInvalidInput)
	s.Equal(model.StatusPaid, s.st.reload(s.T(), missing.ID).Status)

	unknownStyle := s.st.paidProfile(s.T())
	s.Require().NoError(s.st.db.Model(&model.Profile{}).Where("id = ?", unknownStyle.ID).Update("style_id", "pirate").Error)
	s.ErrorIs(s.svc.Activate(ctx, unknownStyle.ID), ErrInvalidInput)

	staging := s.st.paidProfile(s.T())
	s.st.setMeta(s.T(), staging.ID, model.StatusStaging, model.RegMeta{})
	s.ErrorIs(s.svc.Activate(ctx, staging.ID), ErrInvalidInput)

	s.ErrorIs(s.svc.Activate(ctx, "does-not-exist"), ErrNotFound)
	s.True(IsInputError(s.svc.Activate(ctx, "does-not-exist")))
}

func (s *ActivationSuite) TestFailedProfileIsNotRetried() {
	p := s.st.paidProfile(s.T())
	s.st.setMeta(s.T(), p.ID, model.StatusActivationFailed, model.RegMeta{Step: stageAvatar})

	s.Require().NoError(s.svc.Activate(context.Background(), p.ID))
	s.Equal(model.StatusActivationFailed, s.st.reload(s.T(), p.ID).Status)
}

func (s *ActivationSuite) TestConcurrentActivationsIssueDistinctIDs() {
	const n = 12
	s.avatars.EXPECT().GenerateAvatar(gomock.Any(), gomock.Any()).AnyTimes().
		DoAndReturn(func(_ context.Context, req avatar.Request) ([]string, error) {
			return []string{"https://cdn.example.com/" + req.SubjectID + ".png"}, nil
		})
	s.faces.EXPECT().IndexFace(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().Return("face", nil)
	var seq int
	var seqMu sync.Mutex
	s.names.EXPECT().GenerateNicknameCandidates(gomock.Any(), gomock.Any()).AnyTimes().
		DoAndReturn(func(context.Context, llm.NicknameRequest) ([]string, error) {
			seqMu.Lock()
			defer seqMu.Unlock()
			seq++
			return []string{fmt.Sprintf("citizen_%03d", seq)}, nil
		})

	ids := make([]string, n)
	for i := range ids {
		ids[i] = s.st.paidProfile(s.T()).ID
	}

	var g errgroup.Group
	for _, id := range ids {
		id := id
		g.Go(func() error { return s.svc.Activate(context.Background(), id) })
	}
	s.Require().NoError(g.Wait())

	seen := make(map[int64]bool, n)
	for _, id := range ids {
		got := s.st.reload(s.T(), id)
		s.Require().Equal(model.StatusActive, got.Status)
		s.False(seen[*got.CitizenID], "重复的公民编号 %d", *got.CitizenID)
		seen[*got.CitizenID] = true
	}
	for i := int64(1); i <= n; i++ {
		s.True(seen[i], "编号 %d 缺失", i)
	}
}
