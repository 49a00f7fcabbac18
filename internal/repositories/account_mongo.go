package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/arcadia/internal/database"
	"github.com/BradenHooton/arcadia/internal/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const accountsCollection = "accounts"

// usernames compare case-insensitively
var usernameCollation = &options.Collation{Locale: "en", Strength: 2}

// MongoAccountRepository stores one document per account. Counter and
// challenge updates are single-document atomic operations.
type MongoAccountRepository struct {
	col *mongo.Collection
}

func NewMongoAccountRepository(db *database.MongoDB) *MongoAccountRepository {
	return &MongoAccountRepository{col: db.Database.Collection(accountsCollection)}
}

// EnsureIndexes creates the unique email and username indexes
func (r *MongoAccountRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetCollation(usernameCollation),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create account indexes: %w", err)
	}
	return nil
}

func (r *MongoAccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	doc := account.Clone()
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	doc.Email = strings.ToLower(doc.Email)

	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return nil, wrapMongoError(err)
	}
	return doc, nil
}

func (r *MongoAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (r *MongoAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: strings.ToLower(email)}})
}

func (r *MongoAccountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	return r.findOne(ctx, bson.D{{Key: "username", Value: username}},
		options.FindOne().SetCollation(usernameCollation))
}

func (r *MongoAccountRepository) RecordLoginOutcome(ctx context.Context, id string, outcome models.LoginOutcome) (*models.Account, error) {
	var update any
	if outcome.Success {
		update = bson.D{
			{Key: "$set", Value: bson.D{
				{Key: "failed_login_attempts", Value: 0},
				{Key: "last_login", Value: outcome.At},
				{Key: "last_login_ip", Value: outcome.IPAddress},
				{Key: "updated_at", Value: outcome.At},
			}},
			{Key: "$unset", Value: bson.D{{Key: "lock_until", Value: ""}}},
		}
	} else {
		update = failurePipeline(outcome)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var account models.Account
	err := r.col.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: id}}, update, opts).Decode(&account)
	if err != nil {
		return nil, wrapMongoError(err)
	}
	return &account, nil
}

// failurePipeline increments the counter, restarting the window when a
// previous lock has run out, and sets lock_until when the threshold is
// reached on an unlocked account
func failurePipeline(outcome models.LoginOutcome) mongo.Pipeline {
	lockSet := bson.D{{Key: "$ne", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{"$lock_until", nil}}}, nil}}}
	stale := bson.D{{Key: "$and", Value: bson.A{
		lockSet,
		bson.D{{Key: "$lte", Value: bson.A{"$lock_until", outcome.At}}},
	}}}

	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "failed_login_attempts", Value: bson.D{{Key: "$cond", Value: bson.A{
				stale,
				1,
				bson.D{{Key: "$add", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{"$failed_login_attempts", 0}}}, 1}}},
			}}}},
			{Key: "lock_until", Value: bson.D{{Key: "$cond", Value: bson.A{stale, "$$REMOVE", "$lock_until"}}}},
			{Key: "updated_at", Value: outcome.At},
		}}},
	}

	if outcome.Threshold > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$set", Value: bson.D{
			{Key: "lock_until", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$and", Value: bson.A{
					bson.D{{Key: "$gte", Value: bson.A{"$failed_login_attempts", outcome.Threshold}}},
					bson.D{{Key: "$eq", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{"$lock_until", nil}}}, nil}}},
				}}},
				outcome.At.Add(outcome.LockDuration),
				bson.D{{Key: "$ifNull", Value: bson.A{"$lock_until", "$$REMOVE"}}},
			}}}},
		}}})
	}

	return pipeline
}

func (r *MongoAccountRepository) UpdatePassword(ctx context.Context, id string, change models.PasswordChange) error {
	return r.updateByID(ctx, id, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "password_hash", Value: change.Hash},
			{Key: "password_history", Value: change.History},
			{Key: "last_password_change", Value: change.ChangedAt},
			{Key: "password_expires_at", Value: change.ExpiresAt},
			{Key: "failed_login_attempts", Value: 0},
			{Key: "updated_at", Value: change.ChangedAt},
		}},
		{Key: "$unset", Value: bson.D{{Key: "lock_until", Value: ""}}},
	})
}

func (r *MongoAccountRepository) SetChallenge(ctx context.Context, id string, challenge models.OneTimeChallenge) error {
	return r.updateByID(ctx, id, bson.D{
		{Key: "$set", Value: bson.D{{Key: challengeField(challenge.Purpose), Value: challenge}}},
	})
}

func (r *MongoAccountRepository) RecordChallengeFailure(ctx context.Context, id string, purpose models.ChallengePurpose, challengeID string, maxAttempts int) (int, error) {
	field := challengeField(purpose)
	filter := bson.D{{Key: "_id", Value: id}, {Key: field + ".id", Value: challengeID}}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.D{{Key: field, Value: 1}})
	var doc struct {
		Challenges map[models.ChallengePurpose]models.OneTimeChallenge `bson:"challenges"`
	}
	err := r.col.FindOneAndUpdate(ctx, filter, bson.D{
		{Key: "$inc", Value: bson.D{{Key: field + ".attempts", Value: 1}}},
	}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, models.ErrChallengeExpired
		}
		return 0, wrapMongoError(err)
	}

	attempts := doc.Challenges[purpose].Attempts
	if maxAttempts > 0 && attempts >= maxAttempts {
		_, err := r.col.UpdateOne(ctx, filter, bson.D{{Key: "$unset", Value: bson.D{{Key: field, Value: ""}}}})
		if err != nil {
			return attempts, wrapMongoError(err)
		}
	}
	return attempts, nil
}

func (r *MongoAccountRepository) ConsumeChallenge(ctx context.Context, id string, purpose models.ChallengePurpose, challengeID string) (bool, error) {
	field := challengeField(purpose)
	res, err := r.col.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}, {Key: field + ".id", Value: challengeID}},
		bson.D{{Key: "$unset", Value: bson.D{{Key: field, Value: ""}}}},
	)
	if err != nil {
		return false, wrapMongoError(err)
	}
	return res.ModifiedCount == 1, nil
}

func (r *MongoAccountRepository) ClearChallenges(ctx context.Context, id string, purposes ...models.ChallengePurpose) error {
	if len(purposes) == 0 {
		return nil
	}
	unset := bson.D{}
	for _, p := range purposes {
		unset = append(unset, bson.E{Key: challengeField(p), Value: ""})
	}
	return r.updateByID(ctx, id, bson.D{{Key: "$unset", Value: unset}})
}

func (r *MongoAccountRepository) UpdateMFA(ctx context.Context, id string, settings models.MFASettings, at time.Time) error {
	set := bson.D{
		{Key: "mfa_enabled", Value: settings.Enabled},
		{Key: "updated_at", Value: at},
	}
	unset := bson.D{}

	if settings.Method != models.MFAMethodNone {
		set = append(set, bson.E{Key: "mfa_method", Value: settings.Method})
	} else {
		unset = append(unset, bson.E{Key: "mfa_method", Value: ""})
	}
	if len(settings.TOTPSecretEncrypted) > 0 {
		set = append(set,
			bson.E{Key: "totp_secret_encrypted", Value: settings.TOTPSecretEncrypted},
			bson.E{Key: "totp_secret_nonce", Value: settings.TOTPSecretNonce})
	} else {
		unset = append(unset,
			bson.E{Key: "totp_secret_encrypted", Value: ""},
			bson.E{Key: "totp_secret_nonce", Value: ""})
	}
	if len(settings.BackupCodeHashes) > 0 {
		set = append(set, bson.E{Key: "backup_code_hashes", Value: settings.BackupCodeHashes})
	} else {
		unset = append(unset, bson.E{Key: "backup_code_hashes", Value: ""})
	}

	update := bson.D{{Key: "$set", Value: set}}
	if len(unset) > 0 {
		update = append(update, bson.E{Key: "$unset", Value: unset})
	}
	return r.updateByID(ctx, id, update)
}

func (r *MongoAccountRepository) UpdateStanding(ctx context.Context, id string, update models.StandingUpdate) (*models.Account, error) {
	set := bson.D{{Key: "updated_at", Value: update.At}}
	unset := bson.D{}

	if update.Role != nil {
		set = append(set, bson.E{Key: "role", Value: *update.Role})
	}
	if update.IsBanned != nil {
		set = append(set, bson.E{Key: "is_banned", Value: *update.IsBanned})
		if *update.IsBanned {
			set = append(set,
				bson.E{Key: "ban_reason", Value: update.BanReason},
				bson.E{Key: "banned_by", Value: update.BannedBy},
				bson.E{Key: "banned_at", Value: update.At})
		} else {
			unset = append(unset,
				bson.E{Key: "ban_reason", Value: ""},
				bson.E{Key: "banned_by", Value: ""},
				bson.E{Key: "banned_at", Value: ""})
		}
	}
	if update.ClearLockout {
		set = append(set, bson.E{Key: "failed_login_attempts", Value: 0})
		unset = append(unset, bson.E{Key: "lock_until", Value: ""})
	}

	doc := bson.D{{Key: "$set", Value: set}}
	if len(unset) > 0 {
		doc = append(doc, bson.E{Key: "$unset", Value: unset})
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var account models.Account
	if err := r.col.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: id}}, doc, opts).Decode(&account); err != nil {
		return nil, wrapMongoError(err)
	}
	return &account, nil
}

func (r *MongoAccountRepository) findOne(ctx context.Context, filter bson.D, opts ...options.Lister[options.FindOneOptions]) (*models.Account, error) {
	var account models.Account
	if err := r.col.FindOne(ctx, filter, opts...).Decode(&account); err != nil {
		return nil, wrapMongoError(err)
	}
	return &account, nil
}

func (r *MongoAccountRepository) updateByID(ctx context.Context, id string, update bson.D) error {
	res, err := r.col.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, update)
	if err != nil {
		return wrapMongoError(err)
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func challengeField(purpose models.ChallengePurpose) string {
	return "challenges." + string(purpose)
}

// wrapMongoError maps driver errors onto the model's sentinel errors
func wrapMongoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return models.ErrConflict
	}
	return fmt.Errorf("%w: %v", models.ErrStorage, err)
}
