//go:build integration

package documents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"document-backend/internal/shared/storage/db"
)

func TestPGRepoRoundTripAgainstPostgres(t *testing.T) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("documents_test"),
		postgres.WithUsername("documents"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	database, err := db.Connect(ctx, dsn, db.DefaultMigrateOptions())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	if err := db.RunMigrations(ctx, database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := &PGRepo{DB: database}
	doc := Document{
		ID:            uuid.NewString(),
		FileName:      "report q1.docx",
		StorageKey:    "1-report-q1.docx",
		MimeType:      "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		ExtractedText: "Quarterly report",
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
	if _, err := repo.Create(ctx, doc); err != nil {
		t.Fatalf("Create: %v", err)
	}

	doc.Status = StatusAnalyzed
	doc.AIMetadata = &AIMetadata{Summary: "Q1", Type: "report", Attributes: map[string]any{"quarter": "Q1"}}
	if _, err := repo.Save(ctx, doc); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := repo.FindByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Status != StatusAnalyzed || got.AIMetadata == nil || got.AIMetadata.Attributes["quarter"] != "Q1" {
		t.Fatalf("unexpected round trip %+v", got)
	}
	if !got.CreatedAt.Equal(doc.CreatedAt) {
		t.Fatalf("expected created_at %s, got %s", doc.CreatedAt, got.CreatedAt)
	}

	if _, err := repo.FindByID(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
