package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fitcoach/internal/config"
	"fitcoach/internal/events"
	"fitcoach/internal/ids"
	"fitcoach/internal/media/sniffer"
	"fitcoach/internal/media/svg"
	"fitcoach/internal/models"
	"fitcoach/internal/security"
)

var (
	ErrMediaUnavailable = errors.New("media storage not configured")
	ErrMediaTooLarge    = errors.New("media too large")
)

const maxMediaBytes = 10 << 20

type ExerciseService struct {
	exercises ExerciseStore
	media     MediaStore
	cfg       *config.AppConfig
	emitter
}

// NewExerciseService wires the exercise catalogue. media may be nil, in
// which case uploads fail with ErrMediaUnavailable.
func NewExerciseService(exercises ExerciseStore, media MediaStore, cfg *config.AppConfig, publisher events.Publisher, log zerolog.Logger) *ExerciseService {
	return &ExerciseService{
		exercises: exercises,
		media:     media,
		cfg:       cfg,
		emitter:   emitter{publisher: publisher, log: log},
	}
}

type ExerciseInput struct {
	Name        string
	MuscleGroup string
	Equipment   string
}

func (s *ExerciseService) List(ctx context.Context, limit, offset int) ([]models.Exercise, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.exercises.List(ctx, limit, offset)
}

func (s *ExerciseService) Create(ctx context.Context, actor models.User, input ExerciseInput) (models.Exercise, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return models.Exercise{}, fmt.Errorf("%w: name required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	exercise := models.Exercise{
		ID:          ids.New(),
		OwnerID:     actor.ID,
		Name:        name,
		MuscleGroup: strings.TrimSpace(input.MuscleGroup),
		Equipment:   strings.TrimSpace(input.Equipment),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.exercises.Create(ctx, exercise); err != nil {
		return models.Exercise{}, fmt.Errorf("save exercise: %w", err)
	}

	s.emit(ctx, events.ExerciseCreated, exercise.ID, actor.ID)
	return exercise, nil
}

type MediaInput struct {
	ExerciseID   string
	File         io.Reader
	DeclaredMIME string
}

type MediaResult struct {
	Exercise models.Exercise
	URL      string
}

// AttachMedia sniffs, sanitises and stores an image for an exercise.
func (s *ExerciseService) AttachMedia(ctx context.Context, actor models.User, input MediaInput) (MediaResult, error) {
	if s.media == nil {
		return MediaResult{}, ErrMediaUnavailable
	}
	if input.File == nil {
		return MediaResult{}, fmt.Errorf("%w: file required", ErrInvalidInput)
	}

	exercise, err := s.exercises.GetByID(ctx, input.ExerciseID)
	if err != nil {
		return MediaResult{}, err
	}
	if exercise.OwnerID != actor.ID && !actor.HasAnyRole(models.UserRoleAdmin) {
		return MediaResult{}, ErrForbidden
	}

	data, err := io.ReadAll(io.LimitReader(input.File, maxMediaBytes+1))
	if err != nil {
		return MediaResult{}, fmt.Errorf("read file: %w", err)
	}
	if len(data) == 0 {
		return MediaResult{}, fmt.Errorf("%w: empty file", ErrInvalidInput)
	}
	if len(data) > maxMediaBytes {
		return MediaResult{}, ErrMediaTooLarge
	}

	detected, err := sniffer.Sniff(data)
	if err != nil {
		return MediaResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if input.DeclaredMIME != "" && input.DeclaredMIME != detected.MIME {
		return MediaResult{}, fmt.Errorf("%w: content type mismatch: declared %s, actual %s", ErrInvalidInput, input.DeclaredMIME, detected.MIME)
	}

	if detected.Type == sniffer.TypeSVG {
		clean, err := svg.Sanitize(data)
		if err != nil {
			return MediaResult{}, fmt.Errorf("sanitize svg: %w", err)
		}
		data = clean
	}

	objectKey := path.Join("exercises", exercise.ID, fmt.Sprintf("%s.%s", ids.New(), detected.Type))
	if _, err := s.media.Put(ctx, objectKey, bytes.NewReader(data), int64(len(data)), detected.MIME); err != nil {
		return MediaResult{}, fmt.Errorf("put object: %w", err)
	}

	signature := security.SignResource(s.cfg.Security.SignatureSecret, exercise.ID, objectKey)
	now := time.Now().UTC()
	if err := s.exercises.UpdateMedia(ctx, exercise.ID, objectKey, string(detected.Type), signature, now); err != nil {
		return MediaResult{}, fmt.Errorf("save media metadata: %w", err)
	}

	format := string(detected.Type)
	exercise.MediaObjectKey = &objectKey
	exercise.MediaFormat = &format
	exercise.MediaSignature = signature
	exercise.UpdatedAt = now

	s.emit(ctx, events.ExerciseUpdated, exercise.ID, actor.ID)
	return MediaResult{Exercise: exercise, URL: s.media.URL(objectKey)}, nil
}

// MediaURL returns the public URL of an exercise's media, or "" when none is
// attached or its signature no longer matches.
func (s *ExerciseService) MediaURL(exercise models.Exercise) string {
	if s.media == nil || exercise.MediaObjectKey == nil {
		return ""
	}
	if !security.VerifyResource(s.cfg.Security.SignatureSecret, exercise.MediaSignature, exercise.ID, *exercise.MediaObjectKey) {
		return ""
	}
	return s.media.URL(*exercise.MediaObjectKey)
}
