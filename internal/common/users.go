package common

import (
	"context"
	"fmt"

	"provider-integrity-go/internal/models"

	"go.uber.org/zap"
)

// UserLister is the part of the user store the CLIs need.
type UserLister interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUsers(ctx context.Context) ([]models.User, error)
}

// UserInfo represents simplified user information for command-line utilities
type UserInfo struct {
	Id       string
	Name     string
	Email    string
	Currency string
	Locked   bool
}

func toUserInfo(u models.User) UserInfo {
	return UserInfo{Id: u.Id, Name: u.Name, Email: u.Email, Currency: u.Currency, Locked: u.Locked}
}

// InitializeUsers retrieves users based on an optional email filter.
// If emailFilter is empty, returns all users.
func InitializeUsers(ctx context.Context, users UserLister, emailFilter string, logger *zap.Logger) ([]UserInfo, error) {
	var result []UserInfo

	if emailFilter != "" {
		logger.Info("Looking up user by email", zap.String("email", emailFilter))
		user, err := users.GetUserByEmail(ctx, emailFilter)
		if err != nil {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		result = append(result, toUserInfo(*user))
	} else {
		allUsers, err := users.GetUsers(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get users: %w", err)
		}
		for _, u := range allUsers {
			result = append(result, toUserInfo(u))
		}
	}

	logger.Info("Retrieved users", zap.Int("count", len(result)))
	return result, nil
}
