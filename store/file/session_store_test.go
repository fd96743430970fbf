package filestore

import (
	"testing"
	"time"

	"github.com/bitcoinyieldbridge/go-sdk/types"
	"github.com/stretchr/testify/require"
)

func TestSessionStore(t *testing.T) {
	sessions, err := NewSessionStore(t.TempDir())
	require.NoError(t, err)

	t.Run("empty store yields no session", func(t *testing.T) {
		session, err := sessions.GetSession()
		require.NoError(t, err)
		require.Nil(t, session)
	})

	t.Run("round trip", func(t *testing.T) {
		saved := types.Session{
			WalletAddress:  "bc1qwallet",
			WalletPubKey:   "02pubkey",
			Network:        "mainnet",
			AccountAddress: "0xaccount",
			ConnectedAt:    time.Now().Truncate(time.Second),
		}
		require.NoError(t, sessions.SaveSession(saved))

		got, err := sessions.GetSession()
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, saved.WalletAddress, got.WalletAddress)
		require.Equal(t, saved.AccountAddress, got.AccountAddress)
		require.True(t, saved.ConnectedAt.Equal(got.ConnectedAt))
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, sessions.DeleteSession())
		require.NoError(t, sessions.DeleteSession())

		session, err := sessions.GetSession()
		require.NoError(t, err)
		require.Nil(t, session)
	})
}
