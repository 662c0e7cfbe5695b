package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	UserKeyPrefix     = "user:%d"
	PostKeyPrefix     = "post:%d"
	PostsListKey      = "posts:recent"
	TokenDenyPrefix   = "denylist:jti:%s"
	UserRevokedPrefix = "denylist:user:%d"
)

const (
	UserTTL = 5 * time.Minute
	PostTTL = 30 * time.Minute
	ListTTL = 30 * time.Second
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func PostKey(postID uint) string {
	return fmt.Sprintf(PostKeyPrefix, postID)
}

func TokenDenyKey(jti string) string {
	return fmt.Sprintf(TokenDenyPrefix, jti)
}

func UserRevokedKey(userID uint) string {
	return fmt.Sprintf(UserRevokedPrefix, userID)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID))
}

func InvalidatePost(ctx context.Context, postID uint) {
	Invalidate(ctx, PostKey(postID))
}

func InvalidatePostsList(ctx context.Context) {
	Invalidate(ctx, PostsListKey)
}
