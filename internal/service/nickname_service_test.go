package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"citizen-system/internal/service/mocks"
	"citizen-system/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestCleanNicknames(t *testing.T) {
	got := CleanNicknames([]string{
		"  Iron Warden ", // 空格被去掉
		"ab",             // 太短
		"null",           // 保留词
		"Nickname",       // 保留词（不区分大小写）
		"Ash-Born!",
		"ironwarden", // 与第一个重复
		"abcdefghijklmnopqrstuvwxyz",
		"ok_name_1",
	})
	assert.Equal(t, []string{"IronWarden", "AshBorn", "ok_name_1"}, got)
}

func TestFallbackNickname(t *testing.T) {
	now := time.UnixMilli(1_700_000_123_456)

	assert.Equal(t, "nightowl_123456", FallbackNickname("Night Owl!", now))
	assert.Equal(t, "citizen_123456", FallbackNickname("  ", now))
	assert.Equal(t, "citizen_000042", FallbackNickname("", time.UnixMilli(42)))
	// 同一时刻结果确定
	assert.Equal(t, FallbackNickname("Seer", now), FallbackNickname("Seer", now))
}

func TestResolve_SkipsTakenNames(t *testing.T) {
	st := newStore(t)
	st.activeProfile(t, "Ash")

	ctrl := gomock.NewController(t)
	gen := mocks.NewMockNicknameGenerator(ctrl)
	gen.EXPECT().GenerateNicknameCandidates(gomock.Any(), gomock.Any()).
		Return([]string{"Ash", "Birch", "Cedar"}, nil)

	res, err := NewNicknameService(gen, st.profiles, fastPolicy(), time.Second).
		Resolve(context.Background(), NicknameRequest{Archetype: "Seer"})
	require.NoError(t, err)
	assert.Equal(t, "Birch", res.Nickname)
	assert.Equal(t, []string{"Birch", "Cedar"}, res.Options)
	assert.False(t, res.Fallback)
}

func TestResolve_FallsBackAfterThreeBatches(t *testing.T) {
	st := newStore(t)
	for _, n := range []string{"Ash", "Birch", "Cedar"} {
		st.activeProfile(t, n)
	}

	ctrl := gomock.NewController(t)
	gen := mocks.NewMockNicknameGenerator(ctrl)
	var excludes [][]string
	batches := [][]string{{"Ash"}, {"Birch", "Ash"}, {"Cedar", "xx"}}
	call := 0
	gen.EXPECT().GenerateNicknameCandidates(gomock.Any(), gomock.Any()).Times(3).
		DoAndReturn(func(_ context.Context, req llm.NicknameRequest) ([]string, error) {
			excludes = append(excludes, append([]string(nil), req.Exclude...))
			b := batches[call]
			call++
			return b, nil
		})

	svc := NewNicknameService(gen, st.profiles, fastPolicy(), time.Second)
	svc.now = func() time.Time { return time.UnixMilli(1_000_654_321) }

	res, err := svc.Resolve(context.Background(), NicknameRequest{Archetype: "Guardian"})
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, "guardian_654321", res.Nickname)
	assert.Equal(t, []string{res.Nickname}, res.Options)

	assert.Empty(t, excludes[0])
	assert.Equal(t, []string{"Ash"}, excludes[1])
	assert.Equal(t, []string{"Ash", "Birch"}, excludes[2])
}

func TestResolve_GeneratorErrorAborts(t *testing.T) {
	st := newStore(t)
	ctrl := gomock.NewController(t)
	gen := mocks.NewMockNicknameGenerator(ctrl)
	vendorErr := &llm.VendorError{Op: "nickname", Err: errors.New("rate limited")}
	gen.EXPECT().GenerateNicknameCandidates(gomock.Any(), gomock.Any()).Return(nil, vendorErr)

	_, err := NewNicknameService(gen, st.profiles, fastPolicy(), time.Second).ResolveUniqueNickname(context.Background(), "", "", "Seer")
	var vErr *llm.VendorError
	assert.ErrorAs(t, err, &vErr)
}

func TestResolve_EachGeneratorCallHasItsOwnTimeout(t *testing.T) {
	st := newStore(t)
	st.activeProfile(t, "Ash")

	ctrl := gomock.NewController(t)
	gen := mocks.NewMockNicknameGenerator(ctrl)
	var deadlines []time.Time
	batches := [][]string{{"Ash"}, {"Birch"}}
	gen.EXPECT().GenerateNicknameCandidates(gomock.Any(), gomock.Any()).Times(2).
		DoAndReturn(func(ctx context.Context, _ llm.NicknameRequest) ([]string, error) {
			dl, ok := ctx.Deadline()
			require.True(t, ok)
			deadlines = append(deadlines, dl)
			b := batches[len(deadlines)-1]
			time.Sleep(5 * time.Millisecond)
			return b, nil
		})

	res, err := NewNicknameService(gen, st.profiles, fastPolicy(), time.Minute).
		Resolve(context.Background(), NicknameRequest{Archetype: "Seer"})
	require.NoError(t, err)
	assert.Equal(t, "Birch", res.Nickname)
	require.Len(t, deadlines, 2)
	assert.True(t, deadlines[1].After(deadlines[0]), "第二次调用应重新计时")
}

func TestResolve_GeneratorTimeoutIsVendorFailure(t *testing.T) {
	st := newStore(t)
	ctrl := gomock.NewController(t)
	gen := mocks.NewMockNicknameGenerator(ctrl)
	gen.EXPECT().GenerateNicknameCandidates(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ llm.NicknameRequest) ([]string, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	ctx := context.Background()
	_, err := NewNicknameService(gen, st.profiles, fastPolicy(), 20*time.Millisecond).
		Resolve(ctx, NicknameRequest{Archetype: "Seer"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NoError(t, ctx.Err())
}
