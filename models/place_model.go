package models

import "time"

type Place struct {
	ID          string    `json:"_id" bson:"_id,omitempty"`
	Name        string    `json:"name" bson:"name"`
	Description string    `json:"description" bson:"description"`
	Location    string    `json:"location" bson:"location"`
	Rating      float64   `json:"rating" bson:"rating"`
	Image       string    `json:"image" bson:"image"`
	UserID      string    `json:"userId" bson:"userId"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}

// PlaceInput is the request body for creating or editing a place. UserID is
// accepted for compatibility with older clients; ownership is always taken
// from the authenticated principal.
type PlaceInput struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Location    string  `json:"location"`
	Rating      float64 `json:"rating"`
	Image       string  `json:"image"`
	UserID      string  `json:"userId,omitempty"`
}
