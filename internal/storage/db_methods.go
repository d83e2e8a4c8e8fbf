package storage

import (
	"context"
	"fmt"
)

// onlineUsersKey is the Redis set mirroring the in-process presence registry.
// It is advisory: the registry stays the source of truth for routing.
const onlineUsersKey = "presence:online"

// SetUserOnline adds the user to the online set in Redis.
func (s *Service) SetUserOnline(ctx context.Context, userID string) error {
	if s.Redis == nil {
		return nil
	}
	return s.Redis.SAdd(ctx, onlineUsersKey, userID).Err()
}

// SetUserOffline removes the user from the online set in Redis.
func (s *Service) SetUserOffline(ctx context.Context, userID string) error {
	if s.Redis == nil {
		return nil
	}
	return s.Redis.SRem(ctx, onlineUsersKey, userID).Err()
}

// AreUsersOnline answers membership for a batch of users in one round-trip.
func (s *Service) AreUsersOnline(ctx context.Context, userIDs []string) (map[string]bool, error) {
	online := make(map[string]bool, len(userIDs))
	if s.Redis == nil || len(userIDs) == 0 {
		return online, nil
	}

	members := make([]interface{}, len(userIDs))
	for i, id := range userIDs {
		members[i] = id
	}
	flags, err := s.Redis.SMIsMember(ctx, onlineUsersKey, members...).Result()
	if err != nil {
		return nil, fmt.Errorf("presence lookup: %w", err)
	}
	for i, id := range userIDs {
		online[id] = flags[i]
	}
	return online, nil
}

// ClearOnlineUsers drops the whole mirror. The server calls it on start-up
// because presence does not survive a restart.
func (s *Service) ClearOnlineUsers(ctx context.Context) error {
	if s.Redis == nil {
		return nil
	}
	return s.Redis.Del(ctx, onlineUsersKey).Err()
}
