package gormstore_test

import (
	"testing"

	"bookhaven/pkg/database"
	"bookhaven/pkg/store"
	"bookhaven/pkg/store/gormstore"
	"bookhaven/pkg/store/storetest"

	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) store.Store {
	db, err := database.OpenSQLiteMemory()
	require.NoError(t, err)
	s := gormstore.New(db)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, newSQLiteStore)
}
