package service

import (
	"context"
	"testing"
	"time"

	"posture-monitor/internal/models"
	"posture-monitor/internal/notifier"
	"posture-monitor/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTimeline struct {
	patientID string
	since     time.Time
	limit     int
}

func (f *fakeTimeline) Timeline(ctx context.Context, patientID string, since time.Time, limit int) ([]models.PositionObservation, error) {
	f.patientID, f.since, f.limit = patientID, since, limit
	return []models.PositionObservation{{PatientID: patientID, Label: "left"}}, nil
}

func TestPositionService_Latest(t *testing.T) {
	recorder := notifier.NewPositionRecorder(nil, store.NewMemoryKV(), "pp:", time.Minute, zap.NewNop())
	recorder.Record(context.Background(), models.PositionObservation{PatientID: "p-1", Label: "supine", ObservedAt: time.Now()})
	svc := NewPositionService(recorder, nil)

	latest, err := svc.Latest(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "supine", latest.Label)

	_, err = svc.Latest(context.Background(), "p-2")
	assert.ErrorIs(t, err, notifier.ErrPositionNotFound)

	_, err = svc.Latest(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	list, err := svc.ListLatest(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestPositionService_Timeline(t *testing.T) {
	recorder := notifier.NewPositionRecorder(nil, store.NewMemoryKV(), "pp:", time.Minute, zap.NewNop())

	_, err := NewPositionService(recorder, nil).Timeline(context.Background(), "p-1", 0, 0)
	assert.ErrorIs(t, err, ErrTimelineDisabled)

	tl := &fakeTimeline{}
	svc := NewPositionService(recorder, tl)

	obs, err := svc.Timeline(context.Background(), "p-1", 0, 100000)
	require.NoError(t, err)
	assert.Len(t, obs, 1)
	assert.Equal(t, maxTimelineLimit, tl.limit)
	assert.WithinDuration(t, time.Now().Add(-time.Hour), tl.since, 5*time.Second)
}
