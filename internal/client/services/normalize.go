package services

import (
	"net/url"
	"strings"

	"github.com/dmitrijs2005/stuffhappens/internal/client/client"
	"github.com/dmitrijs2005/stuffhappens/internal/client/models"
)

const placeholderAvatarURL = "https://api.dicebear.com/7.x/avataaars/svg?seed="

// NormalizeUser converts a backend user record into a models.User, applying
// the display name and avatar fallbacks. It returns nil for a nil record.
func NormalizeUser(r *client.UserRecord) *models.User {
	if r == nil {
		return nil
	}

	return &models.User{
		ID:        r.ID,
		Email:     r.Email,
		Name:      displayName(r),
		Avatar:    avatarURL(r),
		CreatedAt: r.CreatedAt,
	}
}

func displayName(r *client.UserRecord) string {
	if s := metaString(r.UserMetadata, models.MetaFullName); s != "" {
		return s
	}
	if s := metaString(r.UserMetadata, models.MetaName); s != "" {
		return s
	}
	if local, _, _ := strings.Cut(r.Email, "@"); local != "" {
		return local
	}
	return "User"
}

func avatarURL(r *client.UserRecord) string {
	if s := metaString(r.UserMetadata, models.MetaAvatarURL); s != "" {
		return s
	}
	if s := metaString(r.UserMetadata, models.MetaPicture); s != "" {
		return s
	}
	return placeholderAvatarURL + url.QueryEscape(r.ID)
}

// metaString returns md[key] when it is a non-empty string.
func metaString(md map[string]any, key string) string {
	s, _ := md[key].(string)
	return s
}
