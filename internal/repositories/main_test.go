package repositories

import (
	"context"
	"flag"
	"os"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"fitpass/internal/database"
)

var testDB database.Service

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	container, err := mongodb.Run(ctx, "mongo:7")
	if err != nil {
		log.Fatal().Err(err).Msg("Could not start mongodb container")
	}
	uri, err := container.ConnectionString(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not read mongodb connection string")
	}
	testDB, err = database.New(ctx, uri, "fitpass_repositories_test")
	if err != nil {
		log.Fatal().Err(err).Msg("Could not connect to mongodb container")
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	if err := container.Terminate(ctx); err != nil {
		log.Error().Err(err).Msg("Could not teardown mongodb container")
	}
	os.Exit(code)
}

// freshDatabase returns an empty database unique to the calling test.
func freshDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping test in short mode.")
	}
	db := testDB.Client().Database("fitpass_test_" + primitive.NewObjectID().Hex())
	t.Cleanup(func() { _ = db.Drop(context.Background()) })
	return db
}
