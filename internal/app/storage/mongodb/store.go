// Package mongodb implements the storage interfaces on MongoDB. Guarded
// writes are expressed as conditional FindOneAndUpdate calls so the database
// enforces the invariant; multi-document flows (matchmaking fees, settlement
// payouts, cancel refunds) run inside a session transaction.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/verse-social/verse/internal/app/domain/challenge"
	"github.com/verse-social/verse/internal/app/domain/message"
	"github.com/verse-social/verse/internal/app/domain/post"
	"github.com/verse-social/verse/internal/app/domain/user"
	"github.com/verse-social/verse/internal/app/storage"
	"github.com/verse-social/verse/pkg/logger"
)

// Store is a MongoDB-backed implementation of the storage interfaces.
type Store struct {
	client     *mongo.Client
	users      *mongo.Collection
	posts      *mongo.Collection
	messages   *mongo.Collection
	challenges *mongo.Collection
	log        *logger.Logger
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.PostStore = (*Store)(nil)
var _ storage.MessageStore = (*Store)(nil)
var _ storage.ChallengeStore = (*Store)(nil)

// Connect dials MongoDB and returns a store bound to the named database.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:     client,
		users:      db.Collection("users"),
		posts:      db.Collection("posts"),
		messages:   db.Collection("messages"),
		challenges: db.Collection("challenges"),
		log:        logger.NewDefault("storage.mongodb"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	_, err = s.challenges.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "kind", Value: 1}, {Key: "skill", Value: 1}, {Key: "status", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create challenge index: %w", err)
	}
	_, err = s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "sender", Value: 1}, {Key: "receiver", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create message index: %w", err)
	}
	_, err = s.posts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "postedBy", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create post index: %w", err)
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// classifyMiss turns a guarded-update miss into ErrNotFound or ErrConflict
// depending on whether the document exists at all.
func classifyMiss(ctx context.Context, coll *mongo.Collection, filter bson.M, entity, op string) error {
	n, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", entity, storage.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", entity, op, storage.ErrConflict)
}

var after = options.FindOneAndUpdate().SetReturnDocument(options.After)

// UserStore implementation ----------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.users.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.User{}, fmt.Errorf("user %s: %w", u.Email, storage.ErrConflict)
		}
		return user.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	u.UpdatedAt = time.Now().UTC()
	res, err := s.users.ReplaceOne(ctx, bson.M{"_id": u.ID}, u)
	if err != nil {
		return user.User{}, fmt.Errorf("update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return user.User{}, fmt.Errorf("user %s: %w", u.ID, storage.ErrNotFound)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	return s.findUser(ctx, bson.M{"_id": id}, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return s.findUser(ctx, bson.M{"email": email}, email)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	return s.findUser(ctx, bson.M{"username": username}, username)
}

func (s *Store) findUser(ctx context.Context, filter bson.M, key string) (user.User, error) {
	var u user.User
	err := s.users.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return user.User{}, fmt.Errorf("user %s: %w", key, storage.ErrNotFound)
	}
	if err != nil {
		return user.User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]user.User, error) {
	cursor, err := s.users.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	var result []user.User
	if err := cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return result, nil
}

func (s *Store) AdjustPoints(ctx context.Context, id string, delta int) (user.User, error) {
	return s.adjustPoints(ctx, s.users, id, delta)
}

// adjustPoints takes the collection handle so transactional callers route
// through their session context.
func (s *Store) adjustPoints(ctx context.Context, users *mongo.Collection, id string, delta int) (user.User, error) {
	filter := bson.M{"_id": id}
	if delta < 0 {
		filter["versePoints"] = bson.M{"$gte": -delta}
	}
	update := bson.M{
		"$inc": bson.M{"versePoints": delta},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	}

	var u user.User
	err := users.FindOneAndUpdate(ctx, filter, update, after).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return user.User{}, classifyMiss(ctx, users, bson.M{"_id": id}, "user "+id, "balance")
	}
	if err != nil {
		return user.User{}, fmt.Errorf("adjust points: %w", err)
	}
	return u, nil
}

func (s *Store) RecordVoteReward(ctx context.Context, id string, midnight time.Time, cap int) (bool, user.User, error) {
	now := time.Now().UTC()

	// Lazy reset when the last recorded vote predates today's midnight.
	_, err := s.users.UpdateOne(ctx,
		bson.M{"_id": id, "lastVoteDate": bson.M{"$lt": midnight}},
		bson.M{"$set": bson.M{"votePointsEarnedToday": 0}},
	)
	if err != nil {
		return false, user.User{}, fmt.Errorf("reset vote counter: %w", err)
	}

	var u user.User
	err = s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "votePointsEarnedToday": bson.M{"$lt": cap}},
		bson.M{
			"$inc": bson.M{"versePoints": 1, "votePointsEarnedToday": 1},
			"$set": bson.M{"lastVoteDate": now, "updatedAt": now},
		},
		after,
	).Decode(&u)
	if err == nil {
		return true, u, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return false, user.User{}, fmt.Errorf("record vote reward: %w", err)
	}

	// Cap reached; still stamp the vote date.
	err = s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"lastVoteDate": now, "updatedAt": now}},
		after,
	).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, user.User{}, fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return false, user.User{}, fmt.Errorf("record vote reward: %w", err)
	}
	return false, u, nil
}

func (s *Store) ToggleFollow(ctx context.Context, followerID, targetID string) (bool, error) {
	follower, err := s.GetUser(ctx, followerID)
	if err != nil {
		return false, err
	}
	if _, err := s.GetUser(ctx, targetID); err != nil {
		return false, err
	}

	following := follower.IsFollowing(targetID)
	err = s.withTx(ctx, func(sc mongo.SessionContext) error {
		now := time.Now().UTC()
		var followerUpdate, targetUpdate bson.M
		if following {
			followerUpdate = bson.M{"$pull": bson.M{"following": targetID}, "$set": bson.M{"updatedAt": now}}
			targetUpdate = bson.M{"$pull": bson.M{"followers": followerID}, "$set": bson.M{"updatedAt": now}}
		} else {
			followerUpdate = bson.M{"$addToSet": bson.M{"following": targetID}, "$set": bson.M{"updatedAt": now}}
			targetUpdate = bson.M{"$addToSet": bson.M{"followers": followerID}, "$set": bson.M{"updatedAt": now}}
		}
		if _, err := s.users.UpdateOne(sc, bson.M{"_id": followerID}, followerUpdate); err != nil {
			return err
		}
		if _, err := s.users.UpdateOne(sc, bson.M{"_id": targetID}, targetUpdate); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("toggle follow: %w", err)
	}
	return !following, nil
}

func (s *Store) AppendPostRef(ctx context.Context, userID, postID string) error {
	res, err := s.users.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$push": bson.M{"posts": postID}, "$set": bson.M{"updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("append post ref: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("user %s: %w", userID, storage.ErrNotFound)
	}
	return nil
}

// PostStore implementation ----------------------------------------------------

func (s *Store) CreatePost(ctx context.Context, p post.Post) (post.Post, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Likes == nil {
		p.Likes = []string{}
	}
	if p.Replies == nil {
		p.Replies = []post.Reply{}
	}

	if _, err := s.posts.InsertOne(ctx, p); err != nil {
		return post.Post{}, fmt.Errorf("insert post: %w", err)
	}
	return p, nil
}

func (s *Store) GetPost(ctx context.Context, id string) (post.Post, error) {
	var p post.Post
	err := s.posts.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return post.Post{}, fmt.Errorf("post %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return post.Post{}, fmt.Errorf("find post: %w", err)
	}
	return p, nil
}

func (s *Store) ListPostsByAuthors(ctx context.Context, authorIDs []string, include bool, skip, limit int) ([]post.Post, error) {
	op := "$in"
	if !include {
		op = "$nin"
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if skip > 0 {
		opts.SetSkip(int64(skip))
	}
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.posts.Find(ctx, bson.M{"postedBy": bson.M{op: authorIDs}}, opts)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	var result []post.Post
	if err := cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}
	return result, nil
}

func (s *Store) CountPostsByAuthors(ctx context.Context, authorIDs []string) (int, error) {
	n, err := s.posts.CountDocuments(ctx, bson.M{"postedBy": bson.M{"$in": authorIDs}})
	if err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return int(n), nil
}

func (s *Store) ToggleLike(ctx context.Context, postID, userID string) (post.Post, bool, error) {
	now := time.Now().UTC()

	var p post.Post
	err := s.posts.FindOneAndUpdate(ctx,
		bson.M{"_id": postID, "likes": userID},
		bson.M{"$pull": bson.M{"likes": userID}, "$set": bson.M{"updatedAt": now}},
		after,
	).Decode(&p)
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return post.Post{}, false, fmt.Errorf("toggle like: %w", err)
	}

	err = s.posts.FindOneAndUpdate(ctx,
		bson.M{"_id": postID},
		bson.M{"$addToSet": bson.M{"likes": userID}, "$set": bson.M{"updatedAt": now}},
		after,
	).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return post.Post{}, false, fmt.Errorf("post %s: %w", postID, storage.ErrNotFound)
	}
	if err != nil {
		return post.Post{}, false, fmt.Errorf("toggle like: %w", err)
	}
	return p, true, nil
}

func (s *Store) AddReply(ctx context.Context, postID string, r post.Reply) (post.Post, error) {
	var p post.Post
	err := s.posts.FindOneAndUpdate(ctx,
		bson.M{"_id": postID},
		bson.M{"$push": bson.M{"replies": r}, "$set": bson.M{"updatedAt": time.Now().UTC()}},
		after,
	).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return post.Post{}, fmt.Errorf("post %s: %w", postID, storage.ErrNotFound)
	}
	if err != nil {
		return post.Post{}, fmt.Errorf("add reply: %w", err)
	}
	return p, nil
}

// MessageStore implementation -------------------------------------------------

func (s *Store) CreateMessage(ctx context.Context, m message.Message) (message.Message, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	if _, err := s.messages.InsertOne(ctx, m); err != nil {
		return message.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

func conversationFilter(a, b string) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"sender": a, "receiver": b},
		bson.M{"sender": b, "receiver": a},
	}}
}

func (s *Store) ListConversation(ctx context.Context, a, b string, skip, limit int) ([]message.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	if skip > 0 {
		opts.SetSkip(int64(skip))
	}
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.messages.Find(ctx, conversationFilter(a, b), opts)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	var result []message.Message
	if err := cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return result, nil
}

func (s *Store) MarkConversationRead(ctx context.Context, senderID, receiverID string) (int, error) {
	res, err := s.messages.UpdateMany(ctx,
		bson.M{"sender": senderID, "receiver": receiverID, "read": false},
		bson.M{"$set": bson.M{"read": true, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	return int(res.ModifiedCount), nil
}

func (s *Store) ListMessagesForUser(ctx context.Context, userID string) ([]message.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	filter := bson.M{"$or": bson.A{bson.M{"sender": userID}, bson.M{"receiver": userID}}}

	cursor, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	var result []message.Message
	if err := cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return result, nil
}

func (s *Store) CountUnread(ctx context.Context, senderID, receiverID string) (int, error) {
	n, err := s.messages.CountDocuments(ctx, bson.M{"sender": senderID, "receiver": receiverID, "read": false})
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return int(n), nil
}

// ChallengeStore implementation -----------------------------------------------

func (s *Store) GetChallenge(ctx context.Context, id string) (challenge.Challenge, error) {
	var c challenge.Challenge
	err := s.challenges.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return challenge.Challenge{}, fmt.Errorf("challenge %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return challenge.Challenge{}, fmt.Errorf("find challenge: %w", err)
	}
	return c, nil
}

func (s *Store) CountCreatedSince(ctx context.Context, kind challenge.Kind, challengerID string, since time.Time) (int, error) {
	n, err := s.challenges.CountDocuments(ctx, bson.M{
		"kind":       kind,
		"challenger": challengerID,
		"createdAt":  bson.M{"$gte": since},
	})
	if err != nil {
		return 0, fmt.Errorf("count challenges: %w", err)
	}
	return int(n), nil
}

func (s *Store) MatchOrCreate(ctx context.Context, p storage.MatchParams) (challenge.Challenge, bool, error) {
	var (
		result  challenge.Challenge
		matched bool
	)
	err := s.withTx(ctx, func(sc mongo.SessionContext) error {
		if _, err := s.adjustPoints(sc, s.users, p.ActorID, -p.Fee); err != nil {
			return err
		}

		now := time.Now().UTC()
		status := challenge.StatusOpen
		if p.Submission != "" {
			status = challenge.StatusClosed
		}

		// Claim the oldest matchable pending entry in one conditional update.
		err := s.challenges.FindOneAndUpdate(sc,
			bson.M{
				"kind":       p.Kind,
				"skill":      p.Skill,
				"status":     challenge.StatusPending,
				"challenger": bson.M{"$ne": p.ActorID},
				"createdAt":  bson.M{"$gte": p.Since},
			},
			bson.M{"$set": bson.M{
				"opponent":           p.ActorID,
				"opponentSubmission": p.Submission,
				"status":             status,
				"updatedAt":          now,
			}},
			options.FindOneAndUpdate().
				SetSort(bson.D{{Key: "createdAt", Value: 1}}).
				SetReturnDocument(options.After),
		).Decode(&result)
		if err == nil {
			matched = true
			// The waiting challenger pays the match fee too; skip when the
			// balance can no longer cover it so it never goes negative.
			if _, err := s.adjustPoints(sc, s.users, result.Challenger, -p.Fee); err != nil && !errors.Is(err, storage.ErrConflict) {
				return err
			}
			return nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("claim pending challenge: %w", err)
		}

		// No match: this is a creation, so the per-day limit applies.
		// Re-counting inside the transaction keeps the check and the insert
		// on the same snapshot.
		if p.CreateLimit > 0 {
			n, err := s.challenges.CountDocuments(sc, bson.M{
				"kind":       p.Kind,
				"challenger": p.ActorID,
				"createdAt":  bson.M{"$gte": p.CreatedSince},
			})
			if err != nil {
				return fmt.Errorf("count challenges: %w", err)
			}
			if int(n) >= p.CreateLimit {
				return fmt.Errorf("create limit of %d reached: %w", p.CreateLimit, storage.ErrConflict)
			}
		}

		result = challenge.Challenge{
			ID:                   uuid.NewString(),
			Kind:                 p.Kind,
			Skill:                p.Skill,
			Challenger:           p.ActorID,
			ChallengerSubmission: p.Submission,
			Votes:                []challenge.Vote{},
			Status:               challenge.StatusPending,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if _, err := s.challenges.InsertOne(sc, result); err != nil {
			return fmt.Errorf("insert challenge: %w", err)
		}
		return nil
	})
	if err != nil {
		return challenge.Challenge{}, false, err
	}
	return result, matched, nil
}

func (s *Store) AttachOpponentSubmission(ctx context.Context, id, opponentID, submission string) (challenge.Challenge, error) {
	var c challenge.Challenge
	err := s.challenges.FindOneAndUpdate(ctx,
		bson.M{
			"_id":      id,
			"opponent": opponentID,
			"status":   bson.M{"$in": bson.A{challenge.StatusPending, challenge.StatusOpen}},
		},
		bson.M{"$set": bson.M{
			"opponentSubmission": submission,
			"status":             challenge.StatusClosed,
			"updatedAt":          time.Now().UTC(),
		}},
		after,
	).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return challenge.Challenge{}, classifyMiss(ctx, s.challenges, bson.M{"_id": id}, "challenge "+id, "submission")
	}
	if err != nil {
		return challenge.Challenge{}, fmt.Errorf("attach submission: %w", err)
	}
	return c, nil
}

func (s *Store) AddVote(ctx context.Context, id string, v challenge.Vote) (challenge.Challenge, error) {
	var c challenge.Challenge
	err := s.challenges.FindOneAndUpdate(ctx,
		bson.M{
			"_id":         id,
			"status":      challenge.StatusClosed,
			"challenger":  bson.M{"$ne": v.Voter},
			"opponent":    bson.M{"$ne": v.Voter},
			"votes.voter": bson.M{"$ne": v.Voter},
		},
		bson.M{
			"$push": bson.M{"votes": v},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		},
		after,
	).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return challenge.Challenge{}, classifyMiss(ctx, s.challenges, bson.M{"_id": id}, "challenge "+id, "vote")
	}
	if err != nil {
		return challenge.Challenge{}, fmt.Errorf("add vote: %w", err)
	}
	return c, nil
}

func (s *Store) SettleChallenge(ctx context.Context, id, winnerID string, bonus int) (challenge.Challenge, error) {
	var result challenge.Challenge
	err := s.withTx(ctx, func(sc mongo.SessionContext) error {
		err := s.challenges.FindOneAndUpdate(sc,
			bson.M{"_id": id, "status": challenge.StatusClosed, "finalized": false},
			bson.M{"$set": bson.M{"finalized": true, "updatedAt": time.Now().UTC()}},
			after,
		).Decode(&result)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return classifyMiss(sc, s.challenges, bson.M{"_id": id}, "challenge "+id, "settle")
		}
		if err != nil {
			return fmt.Errorf("settle challenge: %w", err)
		}
		if winnerID != "" {
			if _, err := s.adjustPoints(sc, s.users, winnerID, bonus); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return challenge.Challenge{}, err
	}
	return result, nil
}

func (s *Store) CancelPending(ctx context.Context, challengerID string, refund int) (challenge.Challenge, error) {
	var result challenge.Challenge
	err := s.withTx(ctx, func(sc mongo.SessionContext) error {
		err := s.challenges.FindOneAndDelete(sc,
			bson.M{"challenger": challengerID, "status": challenge.StatusPending},
			options.FindOneAndDelete().SetSort(bson.D{{Key: "createdAt", Value: 1}}),
		).Decode(&result)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("pending challenge for %s: %w", challengerID, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("cancel challenge: %w", err)
		}
		_, err = s.adjustPoints(sc, s.users, challengerID, refund)
		return err
	})
	if err != nil {
		return challenge.Challenge{}, err
	}
	return result, nil
}

func (s *Store) ListChallenges(ctx context.Context, kind challenge.Kind, f storage.ChallengeFilter) ([]challenge.Challenge, error) {
	filter := bson.M{"kind": kind}
	if len(f.Statuses) > 0 {
		filter["status"] = bson.M{"$in": f.Statuses}
	}
	if f.Participant != "" {
		filter["$or"] = bson.A{
			bson.M{"challenger": f.Participant},
			bson.M{"opponent": f.Participant},
		}
	}
	created := bson.M{}
	if !f.CreatedAfter.IsZero() {
		created["$gte"] = f.CreatedAfter
	}
	if !f.CreatedBefore.IsZero() {
		created["$lt"] = f.CreatedBefore
	}
	if len(created) > 0 {
		filter["createdAt"] = created
	}

	cursor, err := s.challenges.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	var result []challenge.Challenge
	if err := cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("decode challenges: %w", err)
	}
	return result, nil
}
