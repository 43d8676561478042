package cli

import (
	"context"

	"github.com/m-mizutani/fireconf"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/storynotes/pkg/cli/config"
	"github.com/secmon-lab/storynotes/pkg/repository/firestore"
	"github.com/secmon-lab/storynotes/pkg/utils/logging"
	"github.com/secmon-lab/storynotes/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

func cmdMigrate() *cli.Command {
	var repoCfg config.Repository
	var derivationCfg config.Derivation
	var dryRun bool

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "dry-run",
			Usage:       "Preview Firestore index changes without applying",
			Destination: &dryRun,
		},
	}
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, derivationCfg.Flags()...)

	return &cli.Command{
		Name:    "migrate",
		Aliases: []string{"m"},
		Usage:   "Migrate Firestore indexes or PostgreSQL schema",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logging.Default().Info("Migrate configuration",
				"repository", repoCfg,
				"dryRun", dryRun)

			switch repoCfg.Backend() {
			case config.BackendFirestore:
				derivation, err := derivationCfg.Configure()
				if err != nil {
					return goerr.Wrap(err, "failed to load derivation configuration")
				}
				return migrateFirestore(ctx, &repoCfg, derivation.Dimension, dryRun)

			case config.BackendPostgres:
				if dryRun {
					return goerr.Wrap(config.ErrInvalidConfig, "--dry-run is supported only for firestore backend")
				}
				return migratePostgres(ctx, &repoCfg)

			default:
				return goerr.Wrap(config.ErrInvalidConfig, "backend has nothing to migrate",
					goerr.V("backend", repoCfg.Backend()))
			}
		},
	}
}

func migrateFirestore(ctx context.Context, repoCfg *config.Repository, dimension int, dryRun bool) error {
	logger := logging.Default()

	if repoCfg.ProjectID() == "" {
		return goerr.Wrap(config.ErrInvalidConfig, "firestore-project-id is required when using firestore backend")
	}

	client, err := fireconf.New(ctx, repoCfg.ProjectID(), repoCfg.DatabaseID(), getIndexConfig(dimension),
		fireconf.WithDryRun(dryRun),
		fireconf.WithLogger(logger),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to create fireconf client")
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close fireconf client", "error", err.Error())
		}
	}()

	if dryRun {
		logger.Info("Dry run mode - previewing changes")
	} else {
		logger.Info("Applying migrations")
	}
	if err := client.Migrate(ctx); err != nil {
		return goerr.Wrap(err, "failed to apply migrations", goerr.V("dry_run", dryRun))
	}
	if !dryRun {
		logger.Info("Migrations applied successfully")
	}
	return nil
}

func migratePostgres(ctx context.Context, repoCfg *config.Repository) error {
	repo, err := repoCfg.ConfigurePostgres(ctx)
	if err != nil {
		return err
	}
	defer safe.Close(ctx, repo)

	if err := repo.Migrate(ctx); err != nil {
		return goerr.Wrap(err, "failed to apply schema migrations")
	}
	logging.Default().Info("Schema migrations applied successfully")
	return nil
}

// getIndexConfig returns the Firestore index configuration
func getIndexConfig(dimension int) *fireconf.Config {
	return &fireconf.Config{
		Collections: []fireconf.Collection{
			{
				Name: firestore.StoriesCollection,
				Indexes: []fireconf.Index{
					// ListByUser: UserID ASC, CreatedAt ASC
					{
						Fields: []fireconf.IndexField{
							{Path: "UserID", Order: fireconf.OrderAscending},
							{Path: "CreatedAt", Order: fireconf.OrderAscending},
						},
					},
					{
						Fields: []fireconf.IndexField{
							{
								Path: "Embedding",
								Vector: &fireconf.VectorConfig{
									Dimension: dimension,
								},
							},
						},
					},
				},
			},
		},
	}
}
