package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
)

func TestResourcePath(t *testing.T) {
	cases := []struct {
		project, kind, name, want string
	}{
		{"proj", "topics", "orders", "projects/proj/topics/orders"},
		{"proj", "topics", "projects/other/topics/orders", "projects/other/topics/orders"},
		{"proj", "subscriptions", " orders-sub ", "projects/proj/subscriptions/orders-sub"},
		{"proj", "subscriptions", "projects/other/topics/orders", "projects/proj/subscriptions/projects/other/topics/orders"},
		{"proj", "topics", "", ""},
		{"", "topics", "orders", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, resourcePath(tc.project, tc.kind, tc.name), "%s/%s", tc.kind, tc.name)
	}
}

func TestClientOptions(t *testing.T) {
	require.Empty(t, clientOptions(config.GCPConfig{}))
	require.Len(t, clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`}), 1)
	require.Len(t, clientOptions(config.GCPConfig{ApplicationCredentials: "/secrets/sa.json"}), 1)
}

func TestLookupErr(t *testing.T) {
	require.NoError(t, lookupErr("topic", "orders", nil))
	require.EqualError(t, lookupErr("topic", "orders", status.Error(codes.NotFound, "gone")), `topic "orders" does not exist`)

	cause := status.Error(codes.PermissionDenied, "denied")
	err := lookupErr("subscription", "orders-sub", cause)
	require.ErrorIs(t, err, cause)
}

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	_, err := NewClient(ctx, config.GCPConfig{}, config.PubSubConfig{OrdersTopic: "orders"}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)
	_, err = NewClient(ctx, config.GCPConfig{ProjectID: "proj"}, config.PubSubConfig{}, nil)
	require.ErrorIs(t, err, errTopicRequired)
}

func TestNilClient(t *testing.T) {
	var c *Client
	require.Nil(t, c.Publisher("orders"))
	require.NoError(t, c.Close())
	require.True(t, errors.Is(c.Ping(context.Background()), errClosed))
}
