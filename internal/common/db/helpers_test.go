package db

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSerializationConflict(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "deadlock", err: &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}, want: true},
		{name: "lock wait timeout", err: &mysql.MySQLError{Number: 1205}, want: true},
		{name: "wrapped deadlock", err: fmt.Errorf("transaction exec failed: %w", &mysql.MySQLError{Number: 1213}), want: true},
		{name: "duplicate entry", err: &mysql.MySQLError{Number: 1062}, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
		{name: "nil", err: nil, want: false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, IsSerializationConflict(tc.err))
		})
	}
}

func TestIsNoRows(t *testing.T) {
	t.Parallel()

	assert.True(t, IsNoRows(fmt.Errorf("scan failed: %w", sql.ErrNoRows)))
	assert.False(t, IsNoRows(errors.New("x")))
}

func TestConvertTxOptions(t *testing.T) {
	t.Parallel()

	assert.Nil(t, ConvertTxOptions(nil))
	opts := ConvertTxOptions(&TxOptions{Isolation: IsolationSerializable})
	require.NotNil(t, opts)
	assert.Equal(t, sql.LevelSerializable, opts.Isolation)
	assert.False(t, opts.ReadOnly)
}

func TestProviderQuerier(t *testing.T) {
	t.Parallel()

	_, err := GetProviderQuerier(nil, nil)
	assert.Error(t, err)

	_, err = GetProviderQuerier(NewStaticProvider(nil), nil)
	assert.Error(t, err)

	var unset *StaticProvider
	assert.Nil(t, unset.Current())
	_, err = CurrentDatabase(unset)
	assert.Error(t, err)
}
