package cognito

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/arcana/pkg/entitlement"
)

// fakePool is an in-memory user pool
type fakePool struct {
	mu      sync.Mutex
	users   map[string]map[string]string
	updates []*cip.AdminUpdateUserAttributesInput
	err     error
}

func newFakePool(users ...string) *fakePool {
	p := &fakePool{users: map[string]map[string]string{}}
	for _, u := range users {
		p.users[u] = map[string]string{"sub": u}
	}
	return p
}

func (p *fakePool) AdminGetUser(_ context.Context, in *cip.AdminGetUserInput, _ ...func(*cip.Options)) (*cip.AdminGetUserOutput, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	attrs, ok := p.users[aws.ToString(in.Username)]
	if !ok {
		return nil, &types.UserNotFoundException{Message: aws.String("User does not exist.")}
	}
	out := &cip.AdminGetUserOutput{Username: in.Username}
	for k, v := range attrs {
		out.UserAttributes = append(out.UserAttributes, types.AttributeType{Name: aws.String(k), Value: aws.String(v)})
	}
	return out, nil
}

func (p *fakePool) AdminUpdateUserAttributes(_ context.Context, in *cip.AdminUpdateUserAttributesInput, _ ...func(*cip.Options)) (*cip.AdminUpdateUserAttributesOutput, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	attrs, ok := p.users[aws.ToString(in.Username)]
	if !ok {
		return nil, &types.UserNotFoundException{Message: aws.String("User does not exist.")}
	}
	p.updates = append(p.updates, in)
	for _, a := range in.UserAttributes {
		attrs[aws.ToString(a.Name)] = aws.ToString(a.Value)
	}
	return &cip.AdminUpdateUserAttributesOutput{}, nil
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		api     API
		config  Config
		wantErr bool
	}{
		{name: "valid", api: newFakePool(), config: Config{UserPoolID: "us-east-1_abc"}},
		{name: "nil client", config: Config{UserPoolID: "us-east-1_abc"}, wantErr: true},
		{name: "missing pool", api: newFakePool(), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.api, tt.config)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestStore_Attributes(t *testing.T) {
	ctx := context.Background()
	pool := newFakePool("user1")
	store, err := New(pool, Config{UserPoolID: "pool"})
	require.NoError(t, err)

	require.NoError(t, store.SetAttributes(ctx, "user1", entitlement.Attributes{
		entitlement.AttrTier:         "basic",
		entitlement.AttrReadingsUsed: "2",
	}))

	attrs, err := store.GetAttributes(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, "basic", attrs[entitlement.AttrTier])
	assert.Equal(t, "2", attrs[entitlement.AttrReadingsUsed])
	assert.Equal(t, "user1", attrs["sub"])

	require.Len(t, pool.updates, 1)
	in := pool.updates[0]
	assert.Equal(t, "pool", aws.ToString(in.UserPoolId))
	require.Len(t, in.UserAttributes, 2)
	assert.Equal(t, entitlement.AttrReadingsUsed, aws.ToString(in.UserAttributes[0].Name), "attributes are sent sorted")

	require.NoError(t, store.SetAttributes(ctx, "user1", nil))
	assert.Len(t, pool.updates, 1, "empty update is skipped")
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown user", func(t *testing.T) {
		store, _ := New(newFakePool(), Config{UserPoolID: "pool"})
		_, err := store.GetAttributes(ctx, "ghost")
		assert.ErrorIs(t, err, entitlement.ErrUserNotFound)

		err = store.SetAttributes(ctx, "ghost", entitlement.Attributes{entitlement.AttrTier: "basic"})
		assert.ErrorIs(t, err, entitlement.ErrUserNotFound)
	})

	t.Run("empty user id", func(t *testing.T) {
		store, _ := New(newFakePool(), Config{UserPoolID: "pool"})
		_, err := store.GetAttributes(ctx, "")
		assert.ErrorIs(t, err, entitlement.ErrInvalidUserID)
	})

	t.Run("api failure", func(t *testing.T) {
		pool := newFakePool("user1")
		boom := errors.New("throttled")
		pool.err = boom
		store, _ := New(pool, Config{UserPoolID: "pool"})

		_, err := store.GetAttributes(ctx, "user1")
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, entitlement.ErrUserNotFound)
	})
}

func TestStore_WithService(t *testing.T) {
	ctx := context.Background()
	pool := newFakePool("user1")
	store, _ := New(pool, Config{UserPoolID: "pool"})

	svc, err := entitlement.NewService(store, entitlement.Config{})
	require.NoError(t, err)

	_, err = svc.RecordUsage(ctx, "user1")
	require.NoError(t, err)
	_, err = svc.RecordUsage(ctx, "user1")
	require.NoError(t, err)

	ent, err := svc.Load(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, entitlement.TierFree, ent.Tier)
	assert.Equal(t, 2, ent.ReadingsUsed)
}
