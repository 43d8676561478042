package repository_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/storynotes/pkg/domain/interfaces"
	"github.com/secmon-lab/storynotes/pkg/domain/model"
	"github.com/secmon-lab/storynotes/pkg/repository/firestore"
	"github.com/secmon-lab/storynotes/pkg/repository/memory"
	"github.com/secmon-lab/storynotes/pkg/repository/postgres"
)

func newMemoryRepository(t *testing.T) interfaces.Repository {
	t.Helper()
	return memory.New()
}

func newFirestoreRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID not set")
	}

	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")
	if databaseID == "" {
		t.Skip("TEST_FIRESTORE_DATABASE_ID not set")
	}

	ctx := context.Background()
	// Use standard collection names (no prefix) to utilize existing Firestore indexes
	// Test data isolation is achieved through random IDs in test data
	repo, err := firestore.New(ctx, projectID, databaseID)
	gt.NoError(t, err).Required()
	t.Cleanup(func() {
		gt.NoError(t, repo.Close())
	})

	return repo
}

func newPostgresRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	repo, err := postgres.New(ctx, dsn)
	gt.NoError(t, err).Required()
	gt.NoError(t, repo.Migrate(ctx)).Required()
	t.Cleanup(func() {
		gt.NoError(t, repo.Close())
	})

	return repo
}

func newPrincipalID() model.PrincipalID {
	return model.PrincipalID(fmt.Sprintf("principal-%d-%s", time.Now().UnixNano(), model.NewUserID()))
}

func newToken(t *testing.T) model.SessionToken {
	t.Helper()
	token, err := model.NewSessionToken()
	gt.NoError(t, err).Required()
	return token
}

func createUser(t *testing.T, repo interfaces.Repository) *model.User {
	t.Helper()
	user, err := repo.User().Create(context.Background(), &model.User{
		PrincipalID:  newPrincipalID(),
		DisplayName:  "Test User",
		SessionToken: newToken(t),
	})
	gt.NoError(t, err).Required()
	return user
}
