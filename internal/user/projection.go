package user

import "time"

// Response is the authenticated projection of a user. It never carries
// the password hash, TFA secret or verification token.
type Response struct {
	ID              string      `json:"id"`
	Username        string      `json:"username"`
	Email           string      `json:"email"`
	FullName        *string     `json:"full_name"`
	AvatarURL       *string     `json:"avatar_url"`
	Bio             *string     `json:"bio"`
	Role            Role        `json:"role"`
	Status          Status      `json:"status"`
	IsEmailVerified bool        `json:"is_email_verified"`
	Country         *string     `json:"country,omitempty"`
	Timezone        *string     `json:"timezone,omitempty"`
	Preferences     Preferences `json:"preferences"`
	ChannelID       *string     `json:"channel_id"`
	ChannelName     *string     `json:"channel_name"`
	CreatedAt       time.Time   `json:"created_at"`
}

func NewResponse(u *User) Response {
	return Response{
		ID:              u.ID,
		Username:        u.Username,
		Email:           u.Email,
		FullName:        u.FullName,
		AvatarURL:       u.AvatarURL,
		Bio:             u.Bio,
		Role:            u.Role,
		Status:          u.Status,
		IsEmailVerified: u.IsEmailVerified,
		Country:         u.Country,
		Timezone:        u.Timezone,
		Preferences:     u.Preferences,
		ChannelID:       u.ChannelID,
		ChannelName:     u.ChannelName,
		CreatedAt:       u.CreatedAt,
	}
}

// PublicResponse is the projection safe to show to anyone.
type PublicResponse struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	FullName    *string `json:"full_name"`
	AvatarURL   *string `json:"avatar_url"`
	Bio         *string `json:"bio"`
	ChannelName *string `json:"channel_name"`
}

func NewPublicResponse(u *User) PublicResponse {
	return PublicResponse{
		ID:          u.ID,
		Username:    u.Username,
		FullName:    u.FullName,
		AvatarURL:   u.AvatarURL,
		Bio:         u.Bio,
		ChannelName: u.ChannelName,
	}
}
