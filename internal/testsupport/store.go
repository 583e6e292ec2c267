package testsupport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"colorflow/internal/config"
	"colorflow/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewFile registers a detected file for tests using the provided store.
func NewFile(t testing.TB, st *store.Store, site, sourcePath string) *store.File {
	t.Helper()

	sum := sha256.Sum256([]byte(site + "/" + sourcePath))
	file, err := st.CreateFile(context.Background(), store.NewFileParams{
		Filename:   sourcePath,
		SourceSite: site,
		SourcePath: "/watch/" + sourcePath,
		FileSize:   1 << 20,
		SHA256Hash: hex.EncodeToString(sum[:]),
	})
	if err != nil {
		t.Fatalf("store.CreateFile: %v", err)
	}
	return file
}

// NewColorist creates an active colorist account for tests.
func NewColorist(t testing.TB, st *store.Store, username string) *store.User {
	t.Helper()

	user, err := st.CreateUser(context.Background(), store.NewUserParams{
		Username:    username,
		DisplayName: username,
		Role:        store.RoleColorist,
	})
	if err != nil {
		t.Fatalf("store.CreateUser: %v", err)
	}
	return user
}
