// Package cognito provides an Amazon Cognito user pool implementation of
// entitlement.AttributeStore. Entitlement attributes live as custom user
// attributes on the pool.
//
// Cognito has no server-side increment, so the store does not implement
// entitlement.Incrementer and usage updates are read-modify-write.
package cognito

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"

	"github.com/mihaimyh/arcana/pkg/entitlement"
)

// API is the subset of the Cognito client the store uses.
type API interface {
	AdminGetUser(ctx context.Context, params *cip.AdminGetUserInput, optFns ...func(*cip.Options)) (*cip.AdminGetUserOutput, error)
	AdminUpdateUserAttributes(ctx context.Context, params *cip.AdminUpdateUserAttributesInput, optFns ...func(*cip.Options)) (*cip.AdminUpdateUserAttributesOutput, error)
}

// Config holds Cognito storage configuration
type Config struct {
	// UserPoolID is the pool holding the users. Required.
	UserPoolID string
}

// Store implements entitlement.AttributeStore on a Cognito user pool
type Store struct {
	api    API
	poolID string
}

// New creates a new Cognito storage adapter
func New(api API, config Config) (*Store, error) {
	if api == nil {
		return nil, fmt.Errorf("cognito client is required")
	}
	if config.UserPoolID == "" {
		return nil, fmt.Errorf("user pool id is required")
	}
	return &Store{api: api, poolID: config.UserPoolID}, nil
}

// GetAttributes implements entitlement.AttributeStore. Users are created by
// sign-up, so an unknown user is entitlement.ErrUserNotFound.
func (s *Store) GetAttributes(ctx context.Context, userID string) (entitlement.Attributes, error) {
	if userID == "" {
		return nil, entitlement.ErrInvalidUserID
	}

	out, err := s.api.AdminGetUser(ctx, &cip.AdminGetUserInput{
		UserPoolId: aws.String(s.poolID),
		Username:   aws.String(userID),
	})
	if err != nil {
		return nil, mapError("get user", err)
	}

	attrs := make(entitlement.Attributes, len(out.UserAttributes))
	for _, a := range out.UserAttributes {
		attrs[aws.ToString(a.Name)] = aws.ToString(a.Value)
	}
	return attrs, nil
}

// SetAttributes implements entitlement.AttributeStore
func (s *Store) SetAttributes(ctx context.Context, userID string, attrs entitlement.Attributes) error {
	if userID == "" {
		return entitlement.ErrInvalidUserID
	}
	if len(attrs) == 0 {
		return nil
	}

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	update := make([]types.AttributeType, 0, len(names))
	for _, name := range names {
		update = append(update, types.AttributeType{
			Name:  aws.String(name),
			Value: aws.String(attrs[name]),
		})
	}

	_, err := s.api.AdminUpdateUserAttributes(ctx, &cip.AdminUpdateUserAttributesInput{
		UserPoolId:     aws.String(s.poolID),
		Username:       aws.String(userID),
		UserAttributes: update,
	})
	if err != nil {
		return mapError("update attributes", err)
	}
	return nil
}

func mapError(op string, err error) error {
	var notFound *types.UserNotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s", entitlement.ErrUserNotFound, op)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
