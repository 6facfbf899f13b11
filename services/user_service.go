package services

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"

	"places-server/logger"
	"places-server/models"
	"places-server/repository"
	"places-server/utils/errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound       = errors.ErrNotFound.WithMessage("User not found")
	ErrFriendNotFound     = errors.ErrNotFound.WithMessage("Friend not found")
	ErrUsernameTaken      = errors.ErrConflict.WithMessage("A user with this username already exists")
	ErrSelfFriend         = errors.ErrConflict.WithMessage("You cannot add yourself as a friend")
	ErrAlreadyFriends     = errors.ErrConflict.WithMessage("This user is already your friend")
	ErrInvalidCredentials = errors.NewAPIError("INVALID_CREDENTIALS", "Invalid username or password", http.StatusUnauthorized)
	ErrNotProfileOwner    = errors.ErrForbidden.WithMessage("You can only modify your own profile")
)

type RegisterInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

// AddedFriend is the result of adding a friend by username.
type AddedFriend struct {
	User        *models.User         `json:"user"`
	AddedFriend models.FriendSummary `json:"addedFriend"`
}

type UserService struct {
	users      repository.UserRepository
	bcryptCost int
}

func NewUserService(users repository.UserRepository) *UserService {
	return &UserService{users: users, bcryptCost: bcrypt.DefaultCost}
}

// Register creates a new user with defaults applied. The returned user never
// carries the password hash.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if fields := errors.Collect(
		errors.Required("username", in.Username),
		errors.Required("password", in.Password),
	); len(fields) > 0 {
		return nil, errors.Validation("Username and password are required", fields...)
	}

	if _, err := s.users.FindByUsername(ctx, in.Username); err == nil {
		return nil, ErrUsernameTaken
	} else if !stderrors.Is(err, repository.ErrNotFound) {
		return nil, errors.Internal(err, "Failed to create user")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, errors.Internal(err, "Failed to create user")
	}

	user := &models.User{
		Username: in.Username,
		Name:     in.Name,
		Email:    in.Email,
		Password: string(hash),
	}
	user.ApplyDefaults()

	if err := s.users.Create(ctx, user); err != nil {
		// lost a race with a concurrent registration
		if stderrors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUsernameTaken
		}
		return nil, errors.Internal(err, "Failed to create user")
	}
	logger.Log.Infow("user registered", "userId", user.ID, "username", user.Username)

	user.Password = ""
	return user, nil
}

// Authenticate checks the username and password. Unknown usernames and wrong
// passwords are indistinguishable to the caller.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	if fields := errors.Collect(
		errors.Required("username", username),
		errors.Required("password", password),
	); len(fields) > 0 {
		return nil, errors.Validation("Username and password are required", fields...)
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Internal(err, "Failed to log in")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	user.Password = ""
	return user, nil
}

func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, errors.Internal(err, "Failed to load users")
	}
	return users, nil
}

// Search returns users whose username or name contains query, ignoring case.
func (s *UserService) Search(ctx context.Context, query string) ([]models.User, error) {
	users, err := s.users.Search(ctx, query)
	if err != nil {
		return nil, errors.Internal(err, "Failed to search users")
	}
	return users, nil
}

func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, userLookupError(err, ErrUserNotFound)
	}
	user.Password = ""
	return user, nil
}

// UpdateProfile changes the non-empty profile fields of the acting user.
func (s *UserService) UpdateProfile(ctx context.Context, actorID, id string, upd models.ProfileUpdate) (*models.User, error) {
	if err := s.checkSelf(ctx, actorID, id); err != nil {
		return nil, err
	}
	user, err := s.users.UpdateProfile(ctx, id, upd)
	if err != nil {
		return nil, userLookupError(err, ErrUserNotFound)
	}
	user.Password = ""
	return user, nil
}

// AddFriend adds friendID to the friend set of id. Adding an existing friend
// again leaves the set unchanged.
func (s *UserService) AddFriend(ctx context.Context, actorID, id, friendID string) (*models.User, error) {
	if friendID == "" {
		return nil, errors.Validation("Friend id is required",
			errors.FieldError{Field: "friendId", Msg: "required"})
	}
	if err := s.checkSelf(ctx, actorID, id); err != nil {
		return nil, err
	}
	if friendID == id {
		return nil, ErrSelfFriend
	}
	if _, err := s.users.FindByID(ctx, friendID); err != nil {
		return nil, userLookupError(err, ErrFriendNotFound)
	}

	user, err := s.users.AddFriend(ctx, id, friendID)
	if err != nil {
		return nil, userLookupError(err, ErrUserNotFound)
	}
	user.Password = ""
	return user, nil
}

// AddFriendByUsername looks the friend up by username and adds them. Unlike
// AddFriend it reports an existing friendship as a conflict.
func (s *UserService) AddFriendByUsername(ctx context.Context, actorID, id, username string) (*AddedFriend, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.Validation("Username is required",
			errors.FieldError{Field: "username", Msg: "required"})
	}
	if err := s.checkSelf(ctx, actorID, id); err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, userLookupError(err, ErrUserNotFound)
	}
	friend, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, userLookupError(err, ErrFriendNotFound)
	}
	if friend.ID == user.ID {
		return nil, ErrSelfFriend
	}
	if user.HasFriend(friend.ID) {
		return nil, ErrAlreadyFriends
	}

	user, err = s.users.AddFriend(ctx, id, friend.ID)
	if err != nil {
		return nil, userLookupError(err, ErrUserNotFound)
	}
	user.Password = ""
	logger.Log.Infow("friend added", "userId", id, "friendId", friend.ID)
	return &AddedFriend{User: user, AddedFriend: friend.Summary()}, nil
}

// RemoveFriend drops friendID from the friend set of id. Removing someone who
// is not a friend is not an error.
func (s *UserService) RemoveFriend(ctx context.Context, actorID, id, friendID string) (*models.User, error) {
	if err := s.checkSelf(ctx, actorID, id); err != nil {
		return nil, err
	}
	user, err := s.users.RemoveFriend(ctx, id, friendID)
	if err != nil {
		return nil, userLookupError(err, ErrUserNotFound)
	}
	user.Password = ""
	return user, nil
}

// checkSelf allows a user to modify only their own record. A missing target
// is reported before the ownership check so unknown ids stay 404.
func (s *UserService) checkSelf(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return nil
	}
	if _, err := s.users.FindByID(ctx, id); err != nil {
		return userLookupError(err, ErrUserNotFound)
	}
	return ErrNotProfileOwner
}

func userLookupError(err error, notFound *errors.APIError) error {
	if stderrors.Is(err, repository.ErrNotFound) {
		return notFound
	}
	return errors.Internal(err, "Failed to load user")
}
