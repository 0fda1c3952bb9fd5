package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAvatarURLNormalizesEmail(t *testing.T) {
	a := User{Email: "test@example.com"}.AvatarURL(100)
	b := User{Email: "  Test@Example.COM  "}.AvatarURL(100)

	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "https://www.gravatar.com/avatar/"))
	assert.Contains(t, a, "s=100")
	assert.Contains(t, a, "d=retro")
}

func TestAvatarURLHashShape(t *testing.T) {
	u := User{Email: "test@example.com"}
	url := u.AvatarURL(40)

	hash := strings.TrimPrefix(url, "https://www.gravatar.com/avatar/")
	hash = hash[:strings.Index(hash, "?")]
	assert.Len(t, hash, 32)
	assert.Equal(t, strings.ToLower(hash), hash)
}
