package anchor

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-copy-watcher/internal/solana"
	"wallet-copy-watcher/internal/solana/stub"
)

const (
	testProgram = solana.MetaplexProgramID
	testUser    = solana.WrappedSOLMint
)

func accountData(t *testing.T, user string, paid uint64, used, remaining uint8, rated bool) []byte {
	t.Helper()
	key, err := base58.Decode(user)
	require.NoError(t, err)

	data := make([]byte, userAccountSize)
	copy(data[:8], userAccountDiscriminator[:])
	copy(data[8:40], key)
	binary.LittleEndian.PutUint64(data[40:48], paid)
	data[48] = used
	data[49] = remaining
	if rated {
		data[50] = 1
	}
	return data
}

func TestDecodeUserAccount(t *testing.T) {
	acc, err := DecodeUserAccount(accountData(t, testUser, 50_000_000, 2, 3, true))
	require.NoError(t, err)

	assert.Equal(t, testUser, acc.User)
	assert.Equal(t, uint64(50_000_000), acc.TotalPaid)
	assert.Equal(t, uint8(2), acc.TasksUsed)
	assert.Equal(t, uint8(3), acc.TasksRemaining)
	assert.True(t, acc.HasRated)
}

func TestDecodeUserAccount_Invalid(t *testing.T) {
	_, err := DecodeUserAccount(make([]byte, 10))
	assert.ErrorIs(t, err, ErrInvalidAccount)

	data := accountData(t, testUser, 0, 0, 1, false)
	data[0] ^= 0xff
	_, err = DecodeUserAccount(data)
	assert.ErrorIs(t, err, ErrInvalidAccount)
}

func TestUserAddress_Deterministic(t *testing.T) {
	a, err := UserAddress(testProgram, testUser)
	require.NoError(t, err)
	b, err := UserAddress(testProgram, testUser)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, err := UserAddress(testProgram, solana.TokenProgramID)
	require.NoError(t, err)
	assert.NotEqual(t, a, other)

	_, err = UserAddress(testProgram, "short")
	assert.ErrorIs(t, err, ErrInvalidPubkey)
}

func newClient(t *testing.T, remaining uint8) (*Client, *stub.RPCClient) {
	t.Helper()
	rpc := stub.NewRPCClient()
	addr, err := UserAddress(testProgram, testUser)
	require.NoError(t, err)
	rpc.AddAccount(addr, &solana.AccountInfo{
		Owner: testProgram,
		Data:  base64.StdEncoding.EncodeToString(accountData(t, testUser, 1, 0, remaining, false)),
	})
	return NewClient(rpc, testProgram, 5), rpc
}

func TestClient_UserAccount(t *testing.T) {
	c, _ := newClient(t, 4)

	acc, err := c.UserAccount(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, uint8(4), acc.TasksRemaining)
	assert.NotEmpty(t, acc.Address)
}

func TestClient_Budget(t *testing.T) {
	tests := []struct {
		remaining uint8
		want      int
	}{
		{0, 0},
		{3, 3},
		{5, 5},
		{12, 5},
	}
	for _, tt := range tests {
		c, _ := newClient(t, tt.remaining)
		got, err := c.Budget(context.Background(), testUser)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "remaining=%d", tt.remaining)
	}
}

func TestClient_Missing(t *testing.T) {
	c := NewClient(stub.NewRPCClient(), testProgram, 5)
	_, err := c.Budget(context.Background(), testUser)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestClient_WrongOwner(t *testing.T) {
	c, rpc := newClient(t, 1)
	addr, _ := UserAddress(testProgram, testUser)
	rpc.AddAccount(addr, &solana.AccountInfo{Owner: solana.TokenProgramID, Data: ""})

	_, err := c.UserAccount(context.Background(), testUser)
	assert.ErrorIs(t, err, ErrInvalidAccount)
}

func TestClient_RPCError(t *testing.T) {
	c, rpc := newClient(t, 1)
	addr, _ := UserAddress(testProgram, testUser)
	boom := errors.New("boom")
	rpc.FailOn(addr, boom)

	_, err := c.UserAccount(context.Background(), testUser)
	assert.ErrorIs(t, err, boom)
}
