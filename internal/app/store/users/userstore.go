// internal/app/store/users/userstore.go
package userstore

// Terminology: User Identifiers
//   - UserID / userID / user_id: the hex ObjectID (_id) of a directory user
//   - Email: the human-readable string users type to log in (stored lowercase)

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/carexps/internal/app/system/normalize"
	"github.com/dalemusser/carexps/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store is the user directory backed by the "users" collection.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

var (
	// ErrNotFound is returned when no user matches.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned when attempting to create a user with an email that already exists.
	ErrDuplicateEmail = errors.New("a user with this email already exists")
	errBadRole        = errors.New("invalid role")
)

// GetByID loads a user by hex id. Ids that are not ObjectIDs return ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

// GetByEmail looks up a user by case/diacritic-insensitive email.
func (s *Store) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"email_ci": text.Fold(normalize.Email(email))})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// ExistsByEmail checks if a user with the given email exists.
func (s *Store) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	count, err := s.c.CountDocuments(ctx, bson.M{
		"email_ci": text.Fold(normalize.Email(email)),
	})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateInput holds the fields for creating a new user.
type CreateInput struct {
	Name     string
	Email    string
	Role     string
	IsActive bool
}

// Create inserts a new user after normalizing & validating fields.
func (s *Store) Create(ctx context.Context, in CreateInput) (models.User, error) {
	now := time.Now().UTC()
	email := normalize.Email(in.Email)
	u := models.User{
		ID:        primitive.NewObjectID(),
		Name:      normalize.Name(in.Name),
		Email:     email,
		EmailCI:   text.Fold(email),
		Role:      normalize.Role(in.Role),
		IsActive:  in.IsActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if !models.IsValidRole(u.Role) {
		return models.User{}, errBadRole
	}

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, ErrDuplicateEmail
		}
		return models.User{}, err
	}
	return u, nil
}

// UpdateInput holds the optional fields for updating a user.
// All fields are pointers - nil means "don't update this field".
type UpdateInput struct {
	Name     *string
	Email    *string
	Role     *string
	IsActive *bool
}

// Update updates a user using optional fields.
// Returns ErrDuplicateEmail if the email already belongs to another user.
func (s *Store) Update(ctx context.Context, id string, in UpdateInput) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	set := bson.M{
		"updated_at": time.Now().UTC(),
	}
	if in.Name != nil {
		set["name"] = normalize.Name(*in.Name)
	}
	if in.Email != nil {
		email := normalize.Email(*in.Email)
		set["email"] = email
		set["email_ci"] = text.Fold(email)
	}
	if in.Role != nil {
		role := normalize.Role(*in.Role)
		if !models.IsValidRole(role) {
			return errBadRole
		}
		set["role"] = role
	}
	if in.IsActive != nil {
		set["is_active"] = *in.IsActive
	}

	res, err := s.c.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		if wafflemongo.IsDup(err) {
			return ErrDuplicateEmail
		}
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastLogin records a successful login time.
func (s *Store) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	_, err = s.c.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{"last_login": at.UTC()}})
	return err
}

// Delete deletes a user by ID.
// Returns the number of documents deleted (0 or 1).
func (s *Store) Delete(ctx context.Context, id string) (int64, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return 0, nil
	}
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// List returns all users sorted by name.
func (s *Store) List(ctx context.Context) ([]models.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}
