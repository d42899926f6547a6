package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"citizen-system/config"
	"citizen-system/internal/model"
	"citizen-system/internal/service/mocks"
	"citizen-system/pkg/face"
	"citizen-system/pkg/queue"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"gorm.io/gorm"
)

type RegistrationSuite struct {
	suite.Suite

	st        *store
	faces     *mocks.MockFaceIndexer
	publisher *mocks.MockJobPublisher
	svc       *RegistrationService
}

func TestRegistrationSuite(t *testing.T) {
	suite.Run(t, new(RegistrationSuite))
}

func testConfig() *config.Config {
	return &config.Config{
		Retry:   config.RetryConfig{MaxAttempts: 2, Delay: time.Millisecond},
		Vendors: config.VendorsConfig{Timeout: time.Second},
		Payment: config.PaymentConfig{Fee: "9.99", Currency: "USD", WebhookSecret: "whsec"},
		Styles:  []config.StyleConfig{{ID: "knight", Archetype: "Guardian"}},
	}
}

func (s *RegistrationSuite) SetupTest() {
	s.st = newStore(s.T())
	ctrl := gomock.NewController(s.T())
	s.faces = mocks.NewMockFaceIndexer(ctrl)
	s.publisher = mocks.NewMockJobPublisher(ctrl)

	svc, err := NewRegistrationService(s.st.profiles, s.faces, s.publisher, testConfig())
	s.Require().NoError(err)
	s.svc = svc
}

func (s *RegistrationSuite) validInput() RegistrationInput {
	return RegistrationInput{Email: "a@example.com", FaceURL: "https://uploads.example.com/me.jpg", StyleID: "knight", Gender: "Female"}
}

func (s *RegistrationSuite) TestInvalidFeeConfig() {
	cfg := testConfig()
	cfg.Payment.Fee = "nine"
	_, err := NewRegistrationService(s.st.profiles, s.faces, s.publisher, cfg)
	s.Error(err)
}

func (s *RegistrationSuite) TestRegisterCreatesStagingProfile() {
	s.faces.EXPECT().SearchSimilar(gomock.Any(), "https://uploads.example.com/me.jpg").Return(face.Match{}, nil)

	p, err := s.svc.Register(context.Background(), s.validInput())
	s.Require().NoError(err)

	got := s.st.reload(s.T(), p.ID)
	s.Equal(model.StatusStaging, got.Status)
	s.Equal("female", model.Deref(got.Gender))
	s.Equal("knight", model.Deref(got.StyleID))
}

func (s *RegistrationSuite) TestRegisterRejectsDuplicateFace() {
	s.faces.EXPECT().SearchSimilar(gomock.Any(), gomock.Any()).
		Return(face.Match{Duplicate: true, SubjectID: "other", Similarity: 99.1}, nil)

	_, err := s.svc.Register(context.Background(), s.validInput())
	s.ErrorIs(err, ErrDuplicateFace)

	var n int64
	s.Require().NoError(s.st.db.Model(&model.Profile{}).Count(&n).Error)
	s.Zero(n)
}

func (s *RegistrationSuite) TestRegisterValidatesBeforeCallingVendor() {
	for name, mutate := range map[string]func(*RegistrationInput){
		"bad url":   func(in *RegistrationInput) { in.FaceURL = "ftp://x/y.jpg" },
		"bad style": func(in *RegistrationInput) { in.StyleID = "pirate" },
		"bad gender": func(in *RegistrationInput) {
			in.Gender = "robot"
		},
	} {
		in := s.validInput()
		mutate(&in)
		_, err := s.svc.Register(context.Background(), in)
		s.ErrorIs(err, ErrInvalidInput, name)
	}
}

func (s *RegistrationSuite) TestRegisterMapsUnusableImageToInvalidInput() {
	s.faces.EXPECT().SearchSimilar(gomock.Any(), gomock.Any()).Return(face.Match{}, face.ErrNoFace)

	_, err := s.svc.Register(context.Background(), s.validInput())
	s.ErrorIs(err, ErrInvalidInput)
	s.ErrorIs(err, face.ErrNoFace)
}

func (s *RegistrationSuite) TestPaymentSignature() {
	body := []byte(`{"eventId":"evt_1"}`)
	s.NoError(s.svc.VerifyPaymentSignature(body, SignPayment([]byte("whsec"), body)))
	s.ErrorIs(s.svc.VerifyPaymentSignature(body, SignPayment([]byte("other"), body)), ErrBadSignature)
	s.ErrorIs(s.svc.VerifyPaymentSignature(body, "not-hex"), ErrBadSignature)
	s.ErrorIs(s.svc.VerifyPaymentSignature([]byte(`{"eventId":"evt_2"}`), SignPayment([]byte("whsec"), body)), ErrBadSignature)
}

func (s *RegistrationSuite) staging() *model.Profile {
	p := s.st.paidProfile(s.T())
	s.st.setMeta(s.T(), p.ID, model.StatusStaging, model.RegMeta{Step: "STAGED"})
	return p
}

func (s *RegistrationSuite) event(id string) PaymentEvent {
	return PaymentEvent{EventID: "evt_" + id, ProfileID: id, Amount: "9.990", Currency: "usd", Status: PaymentSucceeded}
}

func (s *RegistrationSuite) TestConfirmPaymentEnqueuesActivation() {
	p := s.staging()
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(2).
		DoAndReturn(func(_ context.Context, job queue.Job) error {
			s.Equal(queue.KindActivation, job.Kind)
			s.Equal(p.ID, job.TargetID)
			return nil
		})

	applied, err := s.svc.ConfirmPayment(context.Background(), s.event(p.ID))
	s.Require().NoError(err)
	s.True(applied)
	s.Equal(model.StatusPaid, s.st.reload(s.T(), p.ID).Status)

	// 回调重复投递：状态不变，但仍补投一次任务
	applied, err = s.svc.ConfirmPayment(context.Background(), s.event(p.ID))
	s.Require().NoError(err)
	s.False(applied)
}

func (s *RegistrationSuite) TestConfirmPaymentPublishFailureIsReported() {
	p := s.staging()
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("nats: timeout"))

	applied, err := s.svc.ConfirmPayment(context.Background(), s.event(p.ID))
	s.Error(err)
	s.True(applied)
	s.Equal(model.StatusPaid, s.st.reload(s.T(), p.ID).Status)
}

func (s *RegistrationSuite) TestConfirmPaymentRejectsWrongAmount() {
	p := s.staging()
	ev := s.event(p.ID)
	ev.Amount = "1.00"

	_, err := s.svc.ConfirmPayment(context.Background(), ev)
	s.ErrorIs(err, ErrAmountMismatch)
	s.Equal(model.StatusStaging, s.st.reload(s.T(), p.ID).Status)
}

func (s *RegistrationSuite) TestConfirmPaymentIgnoresNonSucceededAndLateEvents() {
	p := s.staging()
	ev := s.event(p.ID)
	ev.Status = "pending"
	applied, err := s.svc.ConfirmPayment(context.Background(), ev)
	s.Require().NoError(err)
	s.False(applied)

	// 失败档案只能由运维重置
	s.st.setMeta(s.T(), p.ID, model.StatusActivationFailed, model.RegMeta{Step: stageFace})
	applied, err = s.svc.ConfirmPayment(context.Background(), s.event(p.ID))
	s.Require().NoError(err)
	s.False(applied)
	s.Equal(model.StatusActivationFailed, s.st.reload(s.T(), p.ID).Status)
}

func (s *RegistrationSuite) TestResetFailed() {
	p := s.st.paidProfile(s.T())
	s.ErrorIs(s.svc.ResetFailed(context.Background(), p.ID, "ops"), ErrInvalidInput)

	s.st.setMeta(s.T(), p.ID, model.StatusActivationFailed, model.RegMeta{Step: stageAvatar, Error: "overloaded"})
	failed, err := s.svc.ListFailed(context.Background(), 10)
	s.Require().NoError(err)
	s.Len(failed, 1)

	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)
	s.Require().NoError(s.svc.ResetFailed(context.Background(), p.ID, "ops"))

	got := s.st.reload(s.T(), p.ID)
	s.Equal(model.StatusPaid, got.Status)
	s.Equal("RESET", got.RegMeta.Data().Step)
	s.Contains(got.RegMeta.Data().Note, "ops")
}

// 回调读取档案之后、加锁之前激活失败：失败档案不能被回调拉回 PAID
func (s *RegistrationSuite) TestConfirmPaymentDoesNotRevivePaidProfileFailedMidway() {
	p := s.st.paidProfile(s.T())

	var once sync.Once
	s.Require().NoError(s.st.db.Callback().Query().After("gorm:query").Register("test:fail_after_read", func(tx *gorm.DB) {
		if tx.Statement.Table != "profile" {
			return
		}
		once.Do(func() {
			s.st.setMeta(s.T(), p.ID, model.StatusActivationFailed, model.RegMeta{Step: stageAvatar})
		})
	}))
	s.T().Cleanup(func() { _ = s.st.db.Callback().Query().Remove("test:fail_after_read") })

	// 不应投递激活任务
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

	applied, err := s.svc.ConfirmPayment(context.Background(), s.event(p.ID))
	s.Require().NoError(err)
	s.False(applied)
	s.Equal(model.StatusActivationFailed, s.st.reload(s.T(), p.ID).Status)
}
