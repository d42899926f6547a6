package service

import (
	"context"
	"testing"
	"time"

	"citizen-system/internal/model"
	"citizen-system/internal/repository"
	"citizen-system/pkg/retry"
	"citizen-system/pkg/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 2, Delay: time.Millisecond}
}

type store struct {
	db         *gorm.DB
	profiles   *repository.ProfileRepository
	comments   *repository.CommentRepository
	moderation *repository.ModerationRepository
}

func newStore(t *testing.T) *store {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	require.NoError(t, repository.Migrate(db))
	return &store{
		db:         db,
		profiles:   repository.NewProfileRepository(db),
		comments:   repository.NewCommentRepository(db),
		moderation: repository.NewModerationRepository(db),
	}
}

func ptr(s string) *string { return &s }

// paidProfile 已支付、暂存字段齐全的档案
func (st *store) paidProfile(t *testing.T) *model.Profile {
	t.Helper()
	p := &model.Profile{
		ID:         uuid.NewString(),
		Status:     model.StatusPaid,
		TmpFaceURL: ptr("https://uploads.example.com/" + uuid.NewString() + ".jpg"),
		StyleID:    ptr("knight"),
		Gender:     ptr("female"),
	}
	require.NoError(t, st.profiles.Create(context.Background(), p))
	return p
}

func (st *store) activeProfile(t *testing.T, nickname string) *model.Profile {
	t.Helper()
	p := &model.Profile{ID: uuid.NewString(), Status: model.StatusActive}
	if nickname != "" {
		p.Nickname = ptr(nickname)
	}
	require.NoError(t, st.profiles.Create(context.Background(), p))
	return p
}

func (st *store) setMeta(t *testing.T, id string, status model.ProfileStatus, meta model.RegMeta) {
	t.Helper()
	require.NoError(t, st.db.Model(&model.Profile{}).Where("id = ?", id).Updates(map[string]any{
		"status":   status,
		"reg_meta": datatypes.NewJSONType(meta),
	}).Error)
}

func (st *store) reload(t *testing.T, id string) *model.Profile {
	t.Helper()
	p, err := st.profiles.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p
}
