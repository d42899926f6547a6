package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"citizen-system/internal/service"
	"citizen-system/pkg/metrics"
	"citizen-system/pkg/queue"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeActivator struct {
	err      error
	gotID    string
	gotJob   string
	deadline bool
}

func (f *fakeActivator) ActivateJob(ctx context.Context, profileID, jobID string) error {
	f.gotID, f.gotJob = profileID, jobID
	_, f.deadline = ctx.Deadline()
	return f.err
}

type fakeModerator struct {
	res service.ModerationResult
	err error
}

func (f *fakeModerator) Moderate(context.Context, string) (service.ModerationResult, error) {
	return f.res, f.err
}

func TestHandle_RoutesActivationWithTimeout(t *testing.T) {
	a := &fakeActivator{}
	d := NewDispatcher(a, &fakeModerator{}, nil, time.Minute)

	job := queue.NewJob(queue.KindActivation, "p-1")
	require.NoError(t, d.Handle(context.Background(), job))
	assert.Equal(t, "p-1", a.gotID)
	assert.Equal(t, job.ID, a.gotJob)
	assert.True(t, a.deadline)
}

func TestHandle_InputErrorsAreDropped(t *testing.T) {
	d := NewDispatcher(&fakeActivator{err: service.ErrInvalidInput}, &fakeModerator{err: service.ErrNotFound}, nil, 0)

	err := d.Handle(context.Background(), queue.NewJob(queue.KindActivation, "p-1"))
	assert.True(t, queue.IsDrop(err))
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	err = d.Handle(context.Background(), queue.NewJob(queue.KindModeration, "c-1"))
	assert.True(t, queue.IsDrop(err))

	err = d.Handle(context.Background(), queue.Job{ID: "x", Kind: "unknown", TargetID: "t"})
	assert.True(t, queue.IsDrop(err))
}

func TestHandle_TransientErrorsAreRetried(t *testing.T) {
	d := NewDispatcher(&fakeActivator{}, &fakeModerator{err: errors.New("vendor timeout")}, nil, 0)

	err := d.Handle(context.Background(), queue.NewJob(queue.KindModeration, "c-1"))
	require.Error(t, err)
	assert.False(t, queue.IsDrop(err))

	// 其他投递仍在执行：重新投递而不是确认
	d = NewDispatcher(&fakeActivator{err: service.ErrActivationInProgress}, &fakeModerator{}, nil, 0)
	err = d.Handle(context.Background(), queue.NewJob(queue.KindActivation, "p-1"))
	require.ErrorIs(t, err, service.ErrActivationInProgress)
	assert.False(t, queue.IsDrop(err))
}

func TestDispatcher_CountsJobsPerTransport(t *testing.T) {
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	d := NewDispatcher(&fakeActivator{}, &fakeModerator{res: service.ModerationResult{Moderated: true}}, m, 0)

	require.NoError(t, d.Handle(context.Background(), queue.NewJob(queue.KindActivation, "p-1")))
	require.NoError(t, d.Activate(context.Background(), "p-2"))
	res, err := d.Moderate(context.Background(), "c-1")
	require.NoError(t, err)
	assert.True(t, res.Moderated)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsReceived.WithLabelValues(TransportQueue, "activation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsReceived.WithLabelValues(TransportHTTP, "activation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsReceived.WithLabelValues(TransportHTTP, "moderation")))
}
