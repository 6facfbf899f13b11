package client

import "places-server/models"

// The helpers below derive views from a places snapshot. They never modify
// their input.

// MyPlaces returns the places owned by user.
func MyPlaces(places []models.Place, user *models.User) []models.Place {
	if user == nil {
		return []models.Place{}
	}
	return FriendPlaces(places, user.ID)
}

// FriendPlaces returns the places owned by ownerID.
func FriendPlaces(places []models.Place, ownerID string) []models.Place {
	out := []models.Place{}
	for _, p := range places {
		if p.UserID == ownerID {
			out = append(out, p)
		}
	}
	return out
}

func PlaceCountByOwner(places []models.Place) map[string]int {
	counts := make(map[string]int)
	for _, p := range places {
		counts[p.UserID]++
	}
	return counts
}

// FriendsOf picks the friends of user out of the user directory, in
// directory order.
func FriendsOf(user *models.User, directory []models.User) []models.User {
	out := []models.User{}
	if user == nil {
		return out
	}
	for _, u := range directory {
		if user.HasFriend(u.ID) {
			out = append(out, u)
		}
	}
	return out
}
