package services

import (
	"context"
	stderrors "errors"
	"strings"

	"places-server/logger"
	"places-server/models"
	"places-server/repository"
	"places-server/utils/errors"
)

const maxRating = 5

var (
	ErrPlaceNotFound = errors.ErrNotFound.WithMessage("Place not found")
	ErrNotPlaceOwner = errors.ErrForbidden.WithMessage("You can only modify your own places")
)

type PlaceService struct {
	places repository.PlaceRepository
}

func NewPlaceService(places repository.PlaceRepository) *PlaceService {
	return &PlaceService{places: places}
}

func (s *PlaceService) List(ctx context.Context) ([]models.Place, error) {
	places, err := s.places.List(ctx)
	if err != nil {
		return nil, errors.Internal(err, "Failed to load places")
	}
	return places, nil
}

func (s *PlaceService) Get(ctx context.Context, id string) (*models.Place, error) {
	place, err := s.places.FindByID(ctx, id)
	if err != nil {
		return nil, placeLookupError(err)
	}
	return place, nil
}

func (s *PlaceService) ListByOwner(ctx context.Context, userID string) ([]models.Place, error) {
	places, err := s.places.ListByOwner(ctx, userID)
	if err != nil {
		return nil, errors.Internal(err, "Failed to load places")
	}
	return places, nil
}

// Create stores a new place owned by ownerID. Every field is required; a
// userId in the input is ignored.
func (s *PlaceService) Create(ctx context.Context, ownerID string, in models.PlaceInput) (*models.Place, error) {
	in = trimPlaceInput(in)
	fields := errors.Collect(
		errors.Required("name", in.Name),
		errors.Required("description", in.Description),
		errors.Required("location", in.Location),
		errors.Required("image", in.Image),
	)
	if in.Rating == 0 {
		fields = append(fields, errors.FieldError{Field: "rating", Msg: "required"})
	}
	if len(fields) > 0 {
		return nil, errors.Validation("All fields are required", fields...)
	}
	if err := validateRating(in.Rating); err != nil {
		return nil, err
	}

	place := &models.Place{
		Name:        in.Name,
		Description: in.Description,
		Location:    in.Location,
		Rating:      in.Rating,
		Image:       in.Image,
		UserID:      ownerID,
	}
	if err := s.places.Create(ctx, place); err != nil {
		return nil, errors.Internal(err, "Failed to create place")
	}
	logger.Log.Infow("place created", "placeId", place.ID, "userId", ownerID)
	return place, nil
}

// Update overwrites the non-empty fields of the place when actorID owns it.
func (s *PlaceService) Update(ctx context.Context, actorID, id string, in models.PlaceInput) (*models.Place, error) {
	in = trimPlaceInput(in)
	if in.Rating != 0 {
		if err := validateRating(in.Rating); err != nil {
			return nil, err
		}
	}
	if err := s.checkOwner(ctx, actorID, id); err != nil {
		return nil, err
	}

	place, err := s.places.Update(ctx, id, in)
	if err != nil {
		return nil, placeLookupError(err)
	}
	return place, nil
}

// Delete removes the place when actorID owns it.
func (s *PlaceService) Delete(ctx context.Context, actorID, id string) error {
	if err := s.checkOwner(ctx, actorID, id); err != nil {
		return err
	}
	if err := s.places.Delete(ctx, id); err != nil {
		return placeLookupError(err)
	}
	logger.Log.Infow("place deleted", "placeId", id, "userId", actorID)
	return nil
}

func (s *PlaceService) checkOwner(ctx context.Context, actorID, id string) error {
	place, err := s.places.FindByID(ctx, id)
	if err != nil {
		return placeLookupError(err)
	}
	if place.UserID != actorID {
		logger.Log.Warnw("place ownership check failed", "placeId", id, "owner", place.UserID, "actor", actorID)
		return ErrNotPlaceOwner
	}
	return nil
}

func validateRating(r float64) error {
	if r <= 0 || r > maxRating {
		return errors.Validation("Rating must be greater than 0 and at most 5",
			errors.FieldError{Field: "rating", Msg: "out of range"})
	}
	return nil
}

func trimPlaceInput(in models.PlaceInput) models.PlaceInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Location = strings.TrimSpace(in.Location)
	in.Image = strings.TrimSpace(in.Image)
	return in
}

func placeLookupError(err error) error {
	if stderrors.Is(err, repository.ErrNotFound) {
		return ErrPlaceNotFound
	}
	return errors.Internal(err, "Failed to load place")
}
