package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitcoach/internal/events"
	"fitcoach/internal/models"
	"fitcoach/internal/repository"
	"fitcoach/internal/repository/memory"
)

type recordingPublisher struct {
	mu   sync.Mutex
	got  []events.Event
	fail bool
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, evt)
	if p.fail {
		return errors.New("stream down")
	}
	return nil
}

func (p *recordingPublisher) names() []events.Name {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Name, 0, len(p.got))
	for _, evt := range p.got {
		out = append(out, evt.Name)
	}
	return out
}

var (
	trainer = models.User{ID: "trainer-1", Roles: []models.UserRole{models.UserRoleTrainer}}
	other   = models.User{ID: "trainer-2", Roles: []models.UserRole{models.UserRoleTrainer}}
	admin   = models.User{ID: "admin-1", Roles: []models.UserRole{models.UserRoleAdmin}}
	client  = models.User{ID: "client-1", Roles: []models.UserRole{models.UserRoleClient}}
)

func TestWorkoutMutationsEmitEvents(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewWorkoutService(memory.NewWorkoutRepository(), pub, zerolog.Nop())
	ctx := context.Background()

	clientID := client.ID
	w, err := svc.Create(ctx, trainer, WorkoutInput{Title: "  Leg day ", ClientID: &clientID})
	require.NoError(t, err)
	assert.Equal(t, "Leg day", w.Title)

	_, err = svc.Update(ctx, trainer, w.ID, WorkoutInput{Title: "Leg day v2", ClientID: &clientID, IsTemplate: true})
	require.NoError(t, err)

	forClient, err := svc.List(ctx, client)
	require.NoError(t, err)
	require.Len(t, forClient, 1)
	templates, err := svc.Templates(ctx, trainer)
	require.NoError(t, err)
	require.Len(t, templates, 1)

	require.NoError(t, svc.Delete(ctx, trainer, w.ID))

	assert.Equal(t, []events.Name{events.WorkoutCreated, events.WorkoutUpdated, events.WorkoutDeleted}, pub.names())

	var payload events.ResourceChanged
	require.NoError(t, json.Unmarshal(pub.got[0].Payload, &payload))
	assert.Equal(t, w.ID, payload.ResourceID)
	assert.Equal(t, trainer.ID, payload.ActorID)
}

func TestWorkoutValidationAndOwnership(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewWorkoutService(memory.NewWorkoutRepository(), pub, zerolog.Nop())
	ctx := context.Background()

	_, err := svc.Create(ctx, trainer, WorkoutInput{Title: "   "})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Create(ctx, trainer, WorkoutInput{Title: "x", Exercises: []models.WorkoutExercise{{Sets: 3}}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	w, err := svc.Create(ctx, trainer, WorkoutInput{Title: "Mine"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, other, w.ID, WorkoutInput{Title: "Stolen"})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, svc.Delete(ctx, other, w.ID), ErrForbidden)
	assert.ErrorIs(t, svc.Delete(ctx, trainer, "missing"), repository.ErrWorkoutNotFound)

	require.NoError(t, svc.Delete(ctx, admin, w.ID))
	assert.Equal(t, []events.Name{events.WorkoutCreated, events.WorkoutDeleted}, pub.names())
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	pub := &recordingPublisher{fail: true}
	svc := NewWorkoutService(memory.NewWorkoutRepository(), pub, zerolog.Nop())

	w, err := svc.Create(context.Background(), trainer, WorkoutInput{Title: "Still saved"})
	require.NoError(t, err)
	assert.NotEmpty(t, w.ID)
	assert.Len(t, pub.names(), 1)
}

func TestNutritionOverviewAndAnalytics(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewNutritionService(memory.NewNutritionRepository(), pub, zerolog.Nop())
	ctx := context.Background()

	clientID := client.ID
	_, err := svc.Create(ctx, trainer, PlanInput{
		Name: "Cut", DailyCalories: 1800, Active: true, ClientID: &clientID,
		Meals: []models.Meal{{Name: "Oats", Calories: 400, ProteinG: 20, CarbsG: 60, FatG: 8}, {Name: "Chicken", Calories: 600, ProteinG: 55}},
	})
	require.NoError(t, err)
	inactive, err := svc.Create(ctx, trainer, PlanInput{Name: "Bulk", DailyCalories: 3000, Meals: []models.Meal{{Calories: 1000}}})
	require.NoError(t, err)

	overview, err := svc.Overview(ctx, trainer)
	require.NoError(t, err)
	assert.Equal(t, models.NutritionOverview{TotalPlans: 2, ActivePlans: 1, AssignedClients: 1, AverageDailyKcal: 2400}, overview)

	analytics, err := svc.Analytics(ctx, trainer)
	require.NoError(t, err)
	assert.Equal(t, 1, analytics.Plans)
	assert.Equal(t, 1000, analytics.TotalCalories)
	assert.InDelta(t, 75, analytics.ProteinG, 0.001)

	clientView, err := svc.Plans(ctx, client)
	require.NoError(t, err)
	assert.Len(t, clientView, 1)

	_, err = svc.Create(ctx, trainer, PlanInput{Name: "Bad", Meals: []models.Meal{{Calories: -1}}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Update(ctx, trainer, inactive.ID, PlanInput{Name: "Bulk", DailyCalories: 3000, Active: true})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, trainer, inactive.ID))

	assert.Equal(t, []events.Name{
		events.NutritionPlanCreated, events.NutritionPlanCreated,
		events.NutritionPlanUpdated, events.NutritionPlanDeleted,
	}, pub.names())
}

func TestNotificationsAreScopedToRecipient(t *testing.T) {
	pub := &recordingPublisher{}
	users := memory.NewUserRepository()
	ctx := context.Background()
	require.NoError(t, users.Create(ctx, models.User{ID: client.ID, Email: "c@b.com"}))
	svc := NewNotificationService(memory.NewNotificationRepository(), users, pub, zerolog.Nop())

	_, err := svc.Send(ctx, trainer, NotificationInput{RecipientID: "ghost", Title: "hi"})
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
	_, err = svc.Send(ctx, trainer, NotificationInput{RecipientID: client.ID})
	assert.ErrorIs(t, err, ErrInvalidInput)

	n, err := svc.Send(ctx, trainer, NotificationInput{RecipientID: client.ID, Title: "New plan"})
	require.NoError(t, err)

	mine, err := svc.List(ctx, client, 0)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Nil(t, mine[0].ReadAt)

	theirs, err := svc.List(ctx, trainer, 0)
	require.NoError(t, err)
	assert.Empty(t, theirs)

	assert.Error(t, svc.MarkRead(ctx, trainer, n.ID))
	require.NoError(t, svc.MarkRead(ctx, client, n.ID))
	mine, err = svc.List(ctx, client, 0)
	require.NoError(t, err)
	assert.NotNil(t, mine[0].ReadAt)

	assert.Equal(t, []events.Name{events.NotificationCreated}, pub.names())
}

type fakeMedia struct {
	objects map[string][]byte
	types   map[string]string
}

func (m *fakeMedia) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	m.objects[key] = data
	m.types[key] = contentType
	return int64(len(data)), nil
}

func (m *fakeMedia) URL(key string) string { return "https://media.test/" + key }

func TestExerciseMediaUpload(t *testing.T) {
	pub := &recordingPublisher{}
	media := &fakeMedia{objects: map[string][]byte{}, types: map[string]string{}}
	svc := NewExerciseService(memory.NewExerciseRepository(), media, testConfig(), pub, zerolog.Nop())
	ctx := context.Background()

	ex, err := svc.Create(ctx, trainer, ExerciseInput{Name: " Squat ", MuscleGroup: "legs"})
	require.NoError(t, err)
	assert.Equal(t, "Squat", ex.Name)

	svgDoc := `<svg><script>alert(1)</script><circle r="2"/></svg>`
	res, err := svc.AttachMedia(ctx, trainer, MediaInput{ExerciseID: ex.ID, File: strings.NewReader(svgDoc), DeclaredMIME: "image/svg+xml"})
	require.NoError(t, err)
	require.NotNil(t, res.Exercise.MediaObjectKey)
	key := *res.Exercise.MediaObjectKey
	assert.True(t, strings.HasPrefix(key, "exercises/"+ex.ID+"/"))
	assert.True(t, strings.HasSuffix(key, ".svg"))
	assert.NotContains(t, string(media.objects[key]), "script")
	assert.Equal(t, "image/svg+xml", media.types[key])
	assert.Equal(t, media.URL(key), res.URL)
	assert.Equal(t, res.URL, svc.MediaURL(res.Exercise))

	tampered := res.Exercise
	tampered.MediaSignature = bytes.Repeat([]byte{1}, len(tampered.MediaSignature))
	assert.Empty(t, svc.MediaURL(tampered))

	_, err = svc.AttachMedia(ctx, trainer, MediaInput{ExerciseID: ex.ID, File: strings.NewReader("\x89PNG\r\n\x1a\n...."), DeclaredMIME: "image/jpeg"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.AttachMedia(ctx, other, MediaInput{ExerciseID: ex.ID, File: strings.NewReader(svgDoc)})
	assert.ErrorIs(t, err, ErrForbidden)

	assert.Equal(t, []events.Name{events.ExerciseCreated, events.ExerciseUpdated}, pub.names())
}

func TestExerciseMediaWithoutStore(t *testing.T) {
	svc := NewExerciseService(memory.NewExerciseRepository(), nil, testConfig(), events.NoopPublisher{}, zerolog.Nop())
	_, err := svc.AttachMedia(context.Background(), trainer, MediaInput{ExerciseID: "x", File: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrMediaUnavailable)
}
