package booking

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindconnect_booking/internal/schedule"
	"mindconnect_booking/internal/storage"
	"mindconnect_booking/internal/storage/models"
	"mindconnect_booking/internal/storage/sqlite"
	"mindconnect_booking/pkg/errors"
	"mindconnect_booking/pkg/logger"
)

const bookingDate = "2030-01-07"

// morning момент до начала рабочего дня в bookingDate
var morning = time.Date(2030, 1, 7, 8, 0, 0, 0, time.UTC)

type fakeScheduler struct {
	mu        sync.Mutex
	scheduled map[string]time.Time
	cancelled []string
	resets    int
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{scheduled: make(map[string]time.Time)}
}

func (f *fakeScheduler) Schedule(ctx context.Context, appt *models.Appointment, notifyAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled[appt.ID] = notifyAt
	return nil
}

func (f *fakeScheduler) Cancel(ctx context.Context, appointmentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.scheduled, appointmentID)
	f.cancelled = append(f.cancelled, appointmentID)
	return nil
}

func (f *fakeScheduler) ReschedulePending(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = make(map[string]time.Time)
	f.resets++
	return nil
}

func (f *fakeScheduler) Start(ctx context.Context) error { return nil }
func (f *fakeScheduler) Stop() error                     { return nil }

type fixture struct {
	svc       *Service
	store     *sqlite.SQLiteStorage
	sched     *fakeScheduler
	counselor *models.Counselor
	patient   *models.Patient
}

func setup(t *testing.T) *fixture {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sched := newFakeScheduler()
	svc := NewService(store, sched, Options{
		Location:            time.UTC,
		ReminderLead:        time.Hour,
		DefaultWorkStart:    "09:00",
		DefaultWorkEnd:      "18:00",
		DefaultIntervalMins: 50,
	}, logger.NewNop())

	ctx := context.Background()
	counselor, err := svc.RegisterCounselor(ctx, CounselorInput{
		Name:         "Ana Souza",
		Email:        "ana@clinic.example",
		Credential:   "CRP 06/12345",
		Phone:        "+55 11 98765-4321",
		WorkStart:    "09:00",
		WorkEnd:      "10:00",
		IntervalMins: 20,
	})
	require.NoError(t, err)

	patient, err := svc.RegisterPatient(ctx, PatientInput{Name: "Bruno Lima", Phone: "+5511912345678"})
	require.NoError(t, err)

	return &fixture{svc: svc, store: store, sched: sched, counselor: counselor, patient: patient}
}

func (f *fixture) request(slot string) BookingRequest {
	return BookingRequest{
		CounselorID: f.counselor.ID,
		PatientID:   f.patient.ID,
		Date:        bookingDate,
		Slot:        slot,
		Kind:        models.KindOnline,
	}
}

func TestRegisterCounselor_GeneratesSchedule(t *testing.T) {
	f := setup(t)

	assert.Equal(t, schedule.Labels{"09:00 - 09:20", "09:20 - 09:40", "09:40 - 10:00"}, f.counselor.Schedule)
	assert.Equal(t, "+5511987654321", f.counselor.Phone)

	_, err := f.svc.RegisterCounselor(context.Background(), CounselorInput{
		Name:       "Ana Clone",
		Email:      "clone@clinic.example",
		Credential: "CRP 06/12345",
		Phone:      "+5511987654000",
	})
	assert.True(t, stderrors.Is(err, errors.ErrDuplicateCounselor))
}

func TestRegisterCounselor_DefaultsAndInvalidRange(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	c, err := f.svc.RegisterCounselor(ctx, CounselorInput{
		Name:       "Carla Dias",
		Email:      "carla@clinic.example",
		Credential: "CRP 06/99999",
		Phone:      "+5511900001111",
	})
	require.NoError(t, err)
	assert.Equal(t, "09:00", c.WorkStart)
	assert.Equal(t, 50, c.IntervalMins)
	assert.Len(t, c.Schedule, 10)

	_, err = f.svc.RegisterCounselor(ctx, CounselorInput{
		Name:       "Davi Reis",
		Email:      "davi@clinic.example",
		Credential: "CRP 06/88888",
		Phone:      "+5511900002222",
		WorkStart:  "18:00",
		WorkEnd:    "09:00",
	})
	assert.True(t, stderrors.Is(err, errors.ErrInvalidRange))
}

func TestSetWorkingHours_ReplacesSchedule(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	c, err := f.svc.SetWorkingHours(ctx, f.counselor.ID, "09:00", "09:50", 20)
	require.NoError(t, err)
	assert.Equal(t, schedule.Labels{"09:00 - 09:20", "09:20 - 09:40"}, c.Schedule)

	_, err = f.svc.SetWorkingHours(ctx, 999, "09:00", "10:00", 20)
	assert.True(t, stderrors.Is(err, errors.ErrUnknownCounselor))

	_, err = f.svc.SetWorkingHours(ctx, f.counselor.ID, "10:00", "10:00", 20)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidRange))
}

func TestSetWorkingHours_UntilMidnight(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	c, err := f.svc.SetWorkingHours(ctx, f.counselor.ID, "22:00", "24:00", 60)
	require.NoError(t, err)
	assert.Equal(t, schedule.Labels{"22:00 - 23:00", "23:00 - 24:00"}, c.Schedule)

	appt, err := f.svc.Book(ctx, f.request("23:00 - 24:00"), morning)
	require.NoError(t, err)
	assert.Equal(t, schedule.Label("23:00 - 24:00"), appt.Slot)
}

func TestAvailableSlots_NoOccupancyReturnsSchedule(t *testing.T) {
	f := setup(t)

	slots, err := f.svc.AvailableSlots(context.Background(), f.counselor.ID, bookingDate)
	require.NoError(t, err)
	assert.Equal(t, []schedule.Label(f.counselor.Schedule), slots)

	_, err = f.svc.AvailableSlots(context.Background(), 999, bookingDate)
	assert.True(t, stderrors.Is(err, errors.ErrUnknownCounselor))

	_, err = f.svc.AvailableSlots(context.Background(), f.counselor.ID, "07/01/2030")
	assert.True(t, stderrors.Is(err, errors.ErrInvalidDate))
}

func TestBook_RemovesSlotAndRejectsSecondBooking(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.request("09:20 - 09:40"), morning)
	require.NoError(t, err)
	assert.NotEmpty(t, appt.ID)
	assert.Equal(t, models.StatusBooked, appt.Status)

	slots, err := f.svc.AvailableSlots(ctx, f.counselor.ID, bookingDate)
	require.NoError(t, err)
	assert.Equal(t, []schedule.Label{"09:00 - 09:20", "09:40 - 10:00"}, slots)

	_, err = f.svc.Book(ctx, f.request("09:20 - 09:40"), morning)
	assert.True(t, stderrors.Is(err, errors.ErrSlotTaken))

	// Напоминание за час до начала
	f.sched.mu.Lock()
	notifyAt := f.sched.scheduled[appt.ID]
	f.sched.mu.Unlock()
	assert.Equal(t, time.Date(2030, 1, 7, 8, 20, 0, 0, time.UTC), notifyAt)
}

func TestBook_ConcurrentRequestsForOneSlot(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	const attempts = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		taken     int
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Book(ctx, f.request("09:00 - 09:20"), morning)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case stderrors.Is(err, errors.ErrSlotTaken):
				taken++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, taken)

	appts, err := f.svc.CounselorAppointments(ctx, f.counselor.ID, bookingDate)
	require.NoError(t, err)
	assert.Len(t, appts, 1)
}

func TestBook_PastSlot(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// Ровно в момент начала слот уже нельзя забронировать
	startedAt := time.Date(2030, 1, 7, 9, 20, 0, 0, time.UTC)
	_, err := f.svc.Book(ctx, f.request("09:20 - 09:40"), startedAt)
	assert.True(t, stderrors.Is(err, errors.ErrPastSlot))

	appts, err := f.svc.CounselorAppointments(ctx, f.counselor.ID, "")
	require.NoError(t, err)
	assert.Empty(t, appts)

	occupied, err := f.store.ListOccupiedSlots(ctx, f.counselor.ID, bookingDate)
	require.NoError(t, err)
	assert.Empty(t, occupied)
	assert.Empty(t, f.sched.scheduled)
}

// racingStore имитирует конкурента, занявшего слот между проверкой и вставкой
type racingStore struct {
	storage.Storage
}

func (racingStore) CreateBooking(ctx context.Context, appt *models.Appointment) error {
	return storage.ErrConflict
}

func TestBook_ConflictOnInsertMapsToSlotTaken(t *testing.T) {
	f := setup(t)
	svc := NewService(racingStore{Storage: f.store}, f.sched, f.svc.opts, logger.NewNop())

	appt, err := svc.Book(context.Background(), f.request("09:00 - 09:20"), morning)
	assert.Nil(t, appt)
	assert.True(t, stderrors.Is(err, errors.ErrSlotTaken))
	assert.Empty(t, f.sched.scheduled)
}

func TestBook_PastSlotUsesConfiguredTimeZone(t *testing.T) {
	f := setup(t)
	f.svc.opts.Location = time.FixedZone("BRT", -3*60*60)

	// 09:00 BRT = 12:00 UTC; в 11:00 UTC слот еще впереди
	_, err := f.svc.Book(context.Background(), f.request("09:00 - 09:20"), time.Date(2030, 1, 7, 11, 0, 0, 0, time.UTC))
	assert.NoError(t, err)

	_, err = f.svc.Book(context.Background(), f.request("09:20 - 09:40"), time.Date(2030, 1, 7, 12, 30, 0, 0, time.UTC))
	assert.True(t, stderrors.Is(err, errors.ErrPastSlot))
}

func TestBook_ValidationOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(r *BookingRequest)
		wantErr error
	}{
		{name: "malformed label", mutate: func(r *BookingRequest) { r.Slot = "9-10" }, wantErr: errors.ErrInvalidSlotLabel},
		{name: "malformed date", mutate: func(r *BookingRequest) { r.Date = "2030-02-30" }, wantErr: errors.ErrInvalidDate},
		{name: "unknown kind", mutate: func(r *BookingRequest) { r.Kind = "phone" }, wantErr: errors.ErrInvalidAppointmentKind},
		{name: "unknown patient", mutate: func(r *BookingRequest) { r.PatientID = 999 }, wantErr: errors.ErrUnknownPatient},
		{name: "unknown counselor", mutate: func(r *BookingRequest) { r.CounselorID = 999 }, wantErr: errors.ErrUnknownCounselor},
		{name: "label outside schedule", mutate: func(r *BookingRequest) { r.Slot = "12:00 - 12:20" }, wantErr: errors.ErrSlotTaken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.request("09:00 - 09:20")
			tt.mutate(&req)

			_, err := f.svc.Book(ctx, req, morning)
			assert.True(t, stderrors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestBookableSlots_HidesStartedSlots(t *testing.T) {
	f := setup(t)

	slots, err := f.svc.BookableSlots(context.Background(), f.counselor.ID, bookingDate,
		time.Date(2030, 1, 7, 9, 20, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []schedule.Label{"09:40 - 10:00"}, slots)
}

func TestCancel_FreesSlot(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.request("09:40 - 10:00"), morning)
	require.NoError(t, err)

	err = f.svc.Cancel(ctx, appt.ID, f.patient.ID+1, morning)
	assert.True(t, stderrors.Is(err, errors.ErrAppointmentNotFound))

	err = f.svc.Cancel(ctx, appt.ID, f.patient.ID, time.Date(2030, 1, 7, 9, 45, 0, 0, time.UTC))
	assert.True(t, stderrors.Is(err, errors.ErrPastSlot))

	require.NoError(t, f.svc.Cancel(ctx, appt.ID, f.patient.ID, morning))
	assert.Contains(t, f.sched.cancelled, appt.ID)

	slots, err := f.svc.AvailableSlots(ctx, f.counselor.ID, bookingDate)
	require.NoError(t, err)
	assert.Contains(t, slots, schedule.Label("09:40 - 10:00"))

	err = f.svc.Cancel(ctx, appt.ID, f.patient.ID, morning)
	assert.True(t, stderrors.Is(err, errors.ErrAppointmentNotFound))

	_, err = f.svc.Book(ctx, f.request("09:40 - 10:00"), morning)
	assert.NoError(t, err)
}

func TestRegisterPatient_SameChatReturnsExisting(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	chatID := int64(777)
	first, err := f.svc.RegisterPatient(ctx, PatientInput{Name: "Eva", Phone: "+5511911112222", ChatID: &chatID})
	require.NoError(t, err)

	second, err := f.svc.RegisterPatient(ctx, PatientInput{Name: "Eva M.", Phone: "+5511911112222", ChatID: &chatID})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	byChat, err := f.svc.PatientByChatID(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, byChat.ID)

	_, err = f.svc.PatientByChatID(ctx, 1)
	assert.True(t, stderrors.Is(err, errors.ErrUnknownPatient))
}

func TestUpcomingAndPatientAppointments(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.svc.Book(ctx, f.request("09:00 - 09:20"), morning)
	require.NoError(t, err)
	second, err := f.svc.Book(ctx, f.request("09:40 - 10:00"), morning)
	require.NoError(t, err)

	all, err := f.svc.PatientAppointments(ctx, f.patient.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	upcoming, err := f.svc.UpcomingAppointments(ctx, f.patient.ID, time.Date(2030, 1, 7, 9, 10, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, second.ID, upcoming[0].ID)
	assert.NotEqual(t, first.ID, upcoming[0].ID)

	_, err = f.svc.PatientAppointments(ctx, 999)
	assert.True(t, stderrors.Is(err, errors.ErrUnknownPatient))
}

func TestReschedulePendingReminders(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	early, err := f.svc.Book(ctx, f.request("09:00 - 09:20"), morning)
	require.NoError(t, err)
	late, err := f.svc.Book(ctx, f.request("09:40 - 10:00"), morning)
	require.NoError(t, err)

	// После перезапуска в 09:10 ранняя консультация уже началась
	count, err := f.svc.ReschedulePendingReminders(ctx, time.Date(2030, 1, 7, 9, 10, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, f.sched.resets)

	f.sched.mu.Lock()
	defer f.sched.mu.Unlock()
	assert.NotContains(t, f.sched.scheduled, early.ID)
	assert.Contains(t, f.sched.scheduled, late.ID)
}
