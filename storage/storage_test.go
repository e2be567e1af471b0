package storage

import (
	"context"
	"io/ioutil"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/account"
	logsvc "github.com/trezcool/academia/services/logger"
)

func TestOpen_memory(t *testing.T) {
	conf := core.NewTestConfig()
	conf.Database.Engine = core.EngineMemory

	st, err := Open(conf, logsvc.NewRollbarLogger(log.New(ioutil.Discard, "", 0), conf))
	require.NoError(t, err)
	defer func() { assert.NoError(t, st.Close()) }()

	ctx := context.Background()
	err = st.DB.WithinTx(ctx, func(ctx context.Context) error {
		_, err := st.AccountRepo.CreateAccount(ctx, account.Account{ID: "acc-1", Email: "mem@test.cd"})
		return err
	})
	require.NoError(t, err)

	got, err := st.AccountRepo.GetAccount(ctx, account.GetFilter{Email: "mem@test.cd"})
	require.NoError(t, err)
	assert.Equal(t, "acc-1", got.ID)
}
