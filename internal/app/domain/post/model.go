// Package post defines the feed post model.
package post

import "time"

// MaxTextLength bounds post body length.
const MaxTextLength = 500

// Reply is a comment embedded in a post. Author display fields are denormalized
// at write time so listings render without extra lookups.
type Reply struct {
	UserID         string `bson:"userId" json:"userId"`
	Text           string `bson:"text" json:"text"`
	Username       string `bson:"username" json:"username"`
	UserProfilePic string `bson:"userProfilePic" json:"userProfilePic"`
}

// Post is a feed entry.
type Post struct {
	ID       string   `bson:"_id" json:"_id"`
	PostedBy string   `bson:"postedBy" json:"postedBy"`
	Text     string   `bson:"text" json:"text"`
	Img      string   `bson:"img,omitempty" json:"img,omitempty"`
	Likes    []string `bson:"likes" json:"likes"`
	Replies  []Reply  `bson:"replies" json:"replies"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// LikedBy reports whether the user is in the like set.
func (p Post) LikedBy(userID string) bool {
	for _, id := range p.Likes {
		if id == userID {
			return true
		}
	}
	return false
}
