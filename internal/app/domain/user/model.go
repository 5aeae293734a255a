// Package user defines the account model shared by the services, the HTTP
// API and the stores.
package user

import "time"

// StartingPoints is the versePoints balance granted at signup.
const StartingPoints = 50

// User is a platform account. PasswordHash never serializes; the daily vote
// reward counters are internal bookkeeping and stay off the wire too.
type User struct {
	ID           string `bson:"_id" json:"_id"`
	Username     string `bson:"username" json:"username"`
	Email        string `bson:"email" json:"email"`
	PasswordHash string `bson:"password" json:"-"`

	ProfilePic   string   `bson:"profilePic" json:"profilePic"`
	Bio          string   `bson:"bio" json:"bio"`
	Organization string   `bson:"organization" json:"organization"`
	Skills       []string `bson:"skills" json:"skills"`

	Followers []string `bson:"followers" json:"followers"`
	Following []string `bson:"following" json:"following"`
	Posts     []string `bson:"posts" json:"posts"`

	VersePoints           int       `bson:"versePoints" json:"versePoints"`
	VotePointsEarnedToday int       `bson:"votePointsEarnedToday" json:"-"`
	LastVoteDate          time.Time `bson:"lastVoteDate" json:"-"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// IsFollowing reports whether the user follows the given account.
func (u User) IsFollowing(id string) bool {
	for _, f := range u.Following {
		if f == id {
			return true
		}
	}
	return false
}

// Summary is the trimmed projection embedded in feed and thread payloads.
type Summary struct {
	ID         string `json:"_id"`
	Username   string `json:"username"`
	ProfilePic string `json:"profilePic"`
}

// Summarize builds the trimmed projection of the user.
func (u User) Summarize() Summary {
	return Summary{ID: u.ID, Username: u.Username, ProfilePic: u.ProfilePic}
}
