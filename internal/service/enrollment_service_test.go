package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-tutoring-api/internal/models"
	appErrors "github.com/noah-isme/campus-tutoring-api/pkg/errors"
)

func TestEnrollmentServiceEnroll(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()
	session := f.tomorrowSession(hm(9, 0), hm(10, 0), 5)

	enrollment, err := f.enrollments.Enroll(ctx, studentActor, session.ID, EnrollRequest{Comment: "chapter 4 please"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusConfirmed, enrollment.Status)
	assert.Equal(t, "chapter 4 please", enrollment.Comment)

	seats, err := f.sessions.RemainingSeats(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, seats)
	assert.Equal(t, 1, f.publisher.count())

	_, err = f.enrollments.Enroll(ctx, studentActor, session.ID, EnrollRequest{})
	assert.ErrorIs(t, err, appErrors.ErrAlreadyEnrolled)

	_, err = f.enrollments.Enroll(ctx, tutorActor, session.ID, EnrollRequest{})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.enrollments.Enroll(ctx, studentActor, "missing", EnrollRequest{})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	outcomes := f.metrics.Snapshot().Enrollments
	assert.Equal(t, uint64(1), outcomes["CONFIRMED"])
	assert.Equal(t, uint64(1), outcomes[appErrors.ErrAlreadyEnrolled.Code])
}

func TestEnrollmentServiceEnrollClosedSessions(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()
	cancelled := f.store.addSession(models.Session{TutorID: tutorActor.UserID, Date: testDay(1), StartTime: hm(9, 0), EndTime: hm(10, 0), Status: models.SessionStatusCancelled})
	ended := f.store.addSession(models.Session{TutorID: tutorActor.UserID, Date: testDay(-1), StartTime: hm(9, 0), EndTime: hm(10, 0)})
	running := f.store.addSession(models.Session{TutorID: tutorActor.UserID, Date: testDay(0), StartTime: hm(6, 30), EndTime: hm(8, 0)})

	_, err := f.enrollments.Enroll(ctx, studentActor, cancelled.ID, EnrollRequest{})
	assert.ErrorIs(t, err, appErrors.ErrSessionNotOpen)
	assert.Nil(t, f.store.enrollment(cancelled.ID, studentActor.UserID))

	_, err = f.enrollments.Enroll(ctx, studentActor, ended.ID, EnrollRequest{})
	assert.ErrorIs(t, err, appErrors.ErrSessionNotOpen)

	_, err = f.enrollments.Enroll(ctx, studentActor, running.ID, EnrollRequest{})
	assert.NoError(t, err)
}

func TestEnrollmentServiceLastSeatRace(t *testing.T) {
	f := newSchedulingFixture(t)
	session := f.tomorrowSession(hm(9, 0), hm(10, 0), 1)

	const contenders = 8
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, contenders)
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.enrollments.Enroll(context.Background(), student(fmt.Sprintf("racer-%d", i)), session.ID, EnrollRequest{})
		}(i)
	}
	close(start)
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errors.Is(err, appErrors.ErrSessionFull), "unexpected error %v", err)
	}
	assert.Equal(t, 1, wins)

	seats, err := f.sessions.RemainingSeats(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, seats)
	assert.Equal(t, uint64(contenders-1), f.metrics.Snapshot().Enrollments[appErrors.ErrSessionFull.Code])
}

func TestEnrollmentServiceWithdraw(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()
	session := f.tomorrowSession(hm(9, 0), hm(10, 0), 1)

	_, err := f.enrollments.Withdraw(ctx, studentActor, session.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotEnrolled)

	_, err = f.enrollments.Enroll(ctx, studentActor, session.ID, EnrollRequest{})
	require.NoError(t, err)

	enrollment, err := f.enrollments.Withdraw(ctx, studentActor, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCancelled, enrollment.Status)
	require.NotNil(t, enrollment.CancelReason)
	assert.Equal(t, models.CancelReasonStudentWithdrew, *enrollment.CancelReason)

	_, err = f.enrollments.Withdraw(ctx, studentActor, session.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotEnrolled)

	again, err := f.enrollments.Enroll(ctx, studentActor, session.ID, EnrollRequest{})
	require.NoError(t, err)
	assert.Equal(t, enrollment.ID, again.ID)
	assert.Nil(t, again.CancelReason)

	_, err = f.enrollments.Withdraw(ctx, studentActor, "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestEnrollmentServiceWithdrawAfterSessionEnded(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()
	session := f.store.addSession(models.Session{TutorID: tutorActor.UserID, Date: testDay(0), StartTime: hm(9, 0), EndTime: hm(10, 0)})
	_, err := f.enrollments.Enroll(ctx, studentActor, session.ID, EnrollRequest{})
	require.NoError(t, err)

	f.clock.Set(time.Date(2026, 10, 20, 11, 0, 0, 0, time.UTC))
	_, err = f.enrollments.Withdraw(ctx, studentActor, session.ID)
	assert.ErrorIs(t, err, appErrors.ErrSessionNotOpen)
}

func TestEnrollmentServiceExclude(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()
	session := f.tomorrowSession(hm(9, 0), hm(10, 0), 5)
	enrollment, err := f.enrollments.Enroll(ctx, studentActor, session.ID, EnrollRequest{})
	require.NoError(t, err)

	_, err = f.enrollments.Exclude(ctx, otherTutor, enrollment.ID, ExcludeRequest{})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	result, err := f.enrollments.Exclude(ctx, tutorActor, enrollment.ID, ExcludeRequest{})
	require.NoError(t, err)
	assert.False(t, result.Banned)
	assert.Equal(t, 1, result.Cancelled)

	stored := f.store.enrollment(session.ID, studentActor.UserID)
	require.NotNil(t, stored.CancelReason)
	assert.Equal(t, models.CancelReasonTutorExcluded, *stored.CancelReason)

	_, err = f.enrollments.Exclude(ctx, tutorActor, enrollment.ID, ExcludeRequest{})
	assert.ErrorIs(t, err, appErrors.ErrNotEnrolled)

	_, err = f.enrollments.Exclude(ctx, tutorActor, "missing", ExcludeRequest{})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestEnrollmentServiceExcludeWithBanCascades(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()
	x := f.tomorrowSession(hm(9, 0), hm(10, 0), 5)
	y := f.tomorrowSession(hm(11, 0), hm(12, 0), 5)
	z := f.tomorrowSession(hm(13, 0), hm(14, 0), 5)
	elsewhere := f.store.addSession(models.Session{TutorID: otherTutor.UserID, Date: testDay(1), StartTime: hm(9, 0), EndTime: hm(10, 0)})

	inX, err := f.enrollments.Enroll(ctx, studentActor, x.ID, EnrollRequest{})
	require.NoError(t, err)
	for _, id := range []string{y.ID, elsewhere.ID} {
		_, err := f.enrollments.Enroll(ctx, studentActor, id, EnrollRequest{})
		require.NoError(t, err)
	}

	result, err := f.enrollments.Exclude(ctx, tutorActor, inX.ID, ExcludeRequest{Ban: true, Reason: "disruptive"})
	require.NoError(t, err)
	assert.True(t, result.Banned)
	assert.Equal(t, 2, result.Cancelled)
	require.NotNil(t, result.Ban)
	assert.Equal(t, "disruptive", result.Ban.Reason)

	for _, id := range []string{x.ID, y.ID} {
		stored := f.store.enrollment(id, studentActor.UserID)
		assert.Equal(t, models.EnrollmentStatusCancelled, stored.Status)
		assert.Equal(t, models.CancelReasonBanCascade, *stored.CancelReason)
	}
	assert.Equal(t, models.EnrollmentStatusConfirmed, f.store.enrollment(elsewhere.ID, studentActor.UserID).Status)

	_, err = f.enrollments.Enroll(ctx, studentActor, z.ID, EnrollRequest{})
	assert.ErrorIs(t, err, appErrors.ErrBanned)
	_, err = f.enrollments.Enroll(ctx, studentActor, x.ID, EnrollRequest{})
	assert.ErrorIs(t, err, appErrors.ErrBanned)
}

func TestEnrollmentServiceMyEnrollments(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()
	later := f.store.addSession(models.Session{TutorID: tutorActor.UserID, Date: testDay(3), StartTime: hm(9, 0), EndTime: hm(10, 0)})
	sooner := f.tomorrowSession(hm(9, 0), hm(10, 0), 5)
	dropped := f.tomorrowSession(hm(11, 0), hm(12, 0), 5)
	past := f.store.addSession(models.Session{TutorID: tutorActor.UserID, Date: testDay(0), StartTime: hm(6, 0), EndTime: hm(8, 0)})

	for _, id := range []string{later.ID, sooner.ID, dropped.ID, past.ID} {
		_, err := f.enrollments.Enroll(ctx, studentActor, id, EnrollRequest{})
		require.NoError(t, err)
	}
	_, err := f.enrollments.Withdraw(ctx, studentActor, dropped.ID)
	require.NoError(t, err)
	f.clock.Set(time.Date(2026, 10, 20, 8, 30, 0, 0, time.UTC))

	mine, err := f.enrollments.MyEnrollments(ctx, studentActor)
	require.NoError(t, err)
	require.Len(t, mine.Active, 2)
	assert.Equal(t, sooner.ID, mine.Active[0].SessionID)
	assert.Equal(t, later.ID, mine.Active[1].SessionID)
	require.Len(t, mine.History, 2)
	for _, view := range mine.History {
		switch view.SessionID {
		case past.ID:
			assert.Equal(t, models.EnrollmentStatusCompleted, view.EffectiveStatus)
		case dropped.ID:
			assert.Equal(t, models.EnrollmentStatusCancelled, view.EffectiveStatus)
		default:
			t.Fatalf("unexpected history entry %s", view.SessionID)
		}
	}

	_, err = f.enrollments.MyEnrollments(ctx, tutorActor)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}
