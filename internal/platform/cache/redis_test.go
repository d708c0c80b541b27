package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), Options{Addr: mr.Addr(), DB: 2})
	require.NoError(t, err)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(context.Background(), "inventory:levels:version", 7, 0).Err())
	mr.Select(2)
	require.True(t, mr.Exists("inventory:levels:version"))
}

func TestNewWithoutAddressDisablesCache(t *testing.T) {
	client, err := New(context.Background(), Options{})
	require.NoError(t, err)
	require.Nil(t, client)
}

func TestNewFailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := New(context.Background(), Options{Addr: addr})
	require.Error(t, err)
}

func TestAsynqOptionsMirrorCache(t *testing.T) {
	opt := Options{Addr: "redis:6379", Password: "s3cret", DB: 1}.Asynq()
	require.Equal(t, "redis:6379", opt.Addr)
	require.Equal(t, "s3cret", opt.Password)
	require.Equal(t, 1, opt.DB)
}
