package auth

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

func TestActorFromClaims(t *testing.T) {
	tests := []struct {
		name    string
		claims  *Claims
		want    models.Actor
		wantErr error
	}{
		{
			name:   "role claim",
			claims: &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}, Role: "analyst"},
			want:   models.Actor{ActorID: "u1", RoleID: "analyst"},
		},
		{
			name:   "roles list fallback",
			claims: &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}, Roles: []string{"viewer"}},
			want:   models.Actor{ActorID: "u1", RoleID: "viewer"},
		},
		{name: "nil claims", claims: nil, wantErr: ErrMissingSubject},
		{name: "no subject", claims: &Claims{Role: "analyst"}, wantErr: ErrMissingSubject},
		{
			name:    "no role",
			claims:  &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}},
			wantErr: ErrMissingRole,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ActorFromClaims(tt.claims)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequireActor(t *testing.T) {
	_, err := RequireActor(context.Background())
	assert.ErrorIs(t, err, ErrNoActor)

	_, err = RequireActor(WithActor(context.Background(), models.Actor{ActorID: "u1"}))
	assert.ErrorIs(t, err, ErrNoActor, "an actor without a role is not usable")

	actor := models.Actor{ActorID: "u1", RoleID: "r1"}
	got, err := RequireActor(WithActor(context.Background(), actor))
	require.NoError(t, err)
	assert.Equal(t, actor, got)
}
