package models

import (
	"net/url"
	"time"
)

type User struct {
	ID        string    `json:"_id" bson:"_id,omitempty"`
	Username  string    `json:"username" bson:"username"`
	Name      string    `json:"name" bson:"name"`
	Email     string    `json:"email" bson:"email"`
	Password  string    `json:"-" bson:"password"`
	Avatar    string    `json:"avatar" bson:"avatar"`
	Friends   []string  `json:"friends" bson:"friends"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// HasFriend reports whether id is already in the friend set.
func (u *User) HasFriend(id string) bool {
	for _, f := range u.Friends {
		if f == id {
			return true
		}
	}
	return false
}

// ApplyDefaults fills name, email and avatar from the username when absent.
func (u *User) ApplyDefaults() {
	if u.Name == "" {
		u.Name = u.Username
	}
	if u.Email == "" {
		u.Email = u.Username + "@example.com"
	}
	if u.Avatar == "" {
		u.Avatar = "https://i.pravatar.cc/100?u=" + url.QueryEscape(u.Username)
	}
	if u.Friends == nil {
		u.Friends = []string{}
	}
}

// ProfileUpdate carries the editable profile fields. Empty fields are left
// untouched.
type ProfileUpdate struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar"`
}

func (p ProfileUpdate) IsEmpty() bool {
	return p.Name == "" && p.Email == "" && p.Avatar == ""
}

// FriendSummary is the short form of a user returned when a friend is added
// by username.
type FriendSummary struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
}

func (u *User) Summary() FriendSummary {
	return FriendSummary{ID: u.ID, Username: u.Username, Name: u.Name, Avatar: u.Avatar}
}
