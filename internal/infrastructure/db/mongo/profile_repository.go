package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/enterprise-hub/account-service/internal/core/domain"
	"github.com/enterprise-hub/account-service/internal/core/ports"
)

const (
	collectionProfiles    = "user_profiles"
	collectionMemberships = "memberships"
	collectionRoles       = "roles"
)

var _ ports.ProfileRepository = (*ProfileRepository)(nil)

// ProfileRepository is the document-store alternative to the Postgres
// profile store.
type ProfileRepository struct {
	db          *mongo.Database
	profiles    *mongo.Collection
	memberships *mongo.Collection
	roles       *mongo.Collection
}

func NewProfileRepository(db *mongo.Database) *ProfileRepository {
	return &ProfileRepository{
		db:          db,
		profiles:    db.Collection(collectionProfiles),
		memberships: db.Collection(collectionMemberships),
		roles:       db.Collection(collectionRoles),
	}
}

type profileDoc struct {
	ID            string    `bson:"_id"`
	Email         string    `bson:"email"`
	EmailLower    string    `bson:"email_lower"`
	FullName      string    `bson:"full_name,omitempty"`
	OrgID         string    `bson:"org_id,omitempty"`
	AccountStatus string    `bson:"account_status"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

type membershipDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	OrgID     string    `bson:"org_id,omitempty"`
	Role      string    `bson:"role"`
	IsPrimary bool      `bson:"is_primary"`
	CreatedAt time.Time `bson:"created_at"`
}

type roleDoc struct {
	Key  string `bson:"_id"`
	Name string `bson:"role_name"`
}

func (d profileDoc) toDomain() *domain.Profile {
	return &domain.Profile{
		ID:            d.ID,
		Email:         d.Email,
		FullName:      d.FullName,
		OrgID:         d.OrgID,
		AccountStatus: domain.AccountStatus(d.AccountStatus),
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func (r *ProfileRepository) FindWithMemberships(ctx context.Context, id string) (*domain.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	p, err := r.findOne(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "is_primary", Value: -1}, {Key: "created_at", Value: 1}})
	cur, err := r.memberships.Find(ctx, bson.M{"user_id": id}, opts)
	if err != nil {
		return nil, fmt.Errorf("find memberships: %w", err)
	}
	var docs []membershipDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode memberships: %w", err)
	}
	if len(docs) == 0 {
		return p, nil
	}

	names, err := r.roleNames(ctx, docs)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		p.Memberships = append(p.Memberships, domain.Membership{
			ID:        d.ID,
			UserID:    d.UserID,
			OrgID:     d.OrgID,
			Role:      d.Role,
			RoleName:  names[d.Role],
			IsPrimary: d.IsPrimary,
			CreatedAt: d.CreatedAt,
		})
	}
	return p, nil
}

func (r *ProfileRepository) roleNames(ctx context.Context, docs []membershipDoc) (map[string]string, error) {
	keys := make([]string, 0, len(docs))
	for _, d := range docs {
		keys = append(keys, d.Role)
	}
	cur, err := r.roles.Find(ctx, bson.M{"_id": bson.M{"$in": keys}})
	if err != nil {
		return nil, fmt.Errorf("find roles: %w", err)
	}
	var roles []roleDoc
	if err := cur.All(ctx, &roles); err != nil {
		return nil, fmt.Errorf("decode roles: %w", err)
	}
	names := make(map[string]string, len(roles))
	for _, role := range roles {
		names[role.Key] = role.Name
	}
	return names, nil
}

func (r *ProfileRepository) FindByEmail(ctx context.Context, email string) (*domain.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	return r.findOne(ctx, bson.M{"email_lower": strings.ToLower(strings.TrimSpace(email))})
}

func (r *ProfileRepository) findOne(ctx context.Context, filter bson.M) (*domain.Profile, error) {
	var d profileDoc
	if err := r.profiles.FindOne(ctx, filter).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return d.toDomain(), nil
}

func (r *ProfileRepository) CreateProfile(ctx context.Context, p *domain.Profile) (*domain.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	d := profileDoc{
		ID:            p.ID,
		Email:         p.Email,
		EmailLower:    strings.ToLower(p.Email),
		FullName:      p.FullName,
		OrgID:         p.OrgID,
		AccountStatus: string(p.AccountStatus),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := r.profiles.InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("insert profile: %w", err)
	}
	return d.toDomain(), nil
}

func (r *ProfileRepository) CreateMembership(ctx context.Context, m *domain.Membership) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := r.memberships.InsertOne(ctx, membershipDoc{
		ID:        m.ID,
		UserID:    m.UserID,
		OrgID:     m.OrgID,
		Role:      m.Role,
		IsPrimary: m.IsPrimary,
		CreatedAt: m.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

// DeleteProfile removes the profile and its memberships.
func (r *ProfileRepository) DeleteProfile(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.memberships.DeleteMany(ctx, bson.M{"user_id": id}); err != nil {
		return fmt.Errorf("delete memberships: %w", err)
	}
	if _, err := r.profiles.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return nil
}

func (r *ProfileRepository) UpdateAccountStatus(ctx context.Context, id string, status domain.AccountStatus) (*domain.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.profiles.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"account_status": string(status),
		"updated_at":     time.Now().UTC(),
	}})
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, domain.ErrProfileNotFound
	}
	return r.FindWithMemberships(ctx, id)
}

func (r *ProfileRepository) Ping(ctx context.Context) error {
	return r.db.Client().Ping(ctx, nil)
}

// EnsureIndexes creates the unique email index and the membership lookup
// index, and seeds the role catalogue.
func (r *ProfileRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := r.profiles.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email_lower", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("profile indexes: %w", err)
	}
	if _, err := r.memberships.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "is_primary", Value: -1}, {Key: "created_at", Value: 1}},
	}); err != nil {
		return fmt.Errorf("membership indexes: %w", err)
	}

	for _, role := range []roleDoc{
		{Key: domain.RoleAdmin, Name: "Administrator"},
		{Key: domain.RoleStudentL1, Name: "Student (Level 1)"},
	} {
		_, err := r.roles.UpdateOne(ctx,
			bson.M{"_id": role.Key},
			bson.M{"$setOnInsert": bson.M{"role_name": role.Name}},
			options.Update().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("seed role %s: %w", role.Key, err)
		}
	}
	return nil
}
