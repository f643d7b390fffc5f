package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"go.mongodb.org/mongo-driver/bson"

	"fitpass/internal/config"
	"fitpass/internal/models"
	"fitpass/internal/server"
	"fitpass/internal/services"
	"fitpass/internal/utils"
)

type app struct {
	cfg  *config.Config
	out  io.Writer
	open func(ctx context.Context, cfg *config.Config) (*server.Stores, error)
	now  func() time.Time
}

func newApp(cfg *config.Config) *cli.Command {
	a := &app{cfg: cfg, out: os.Stdout, open: server.OpenStores, now: time.Now}
	return a.command()
}

func (a *app) command() *cli.Command {
	return &cli.Command{
		Name:  "fitctl",
		Usage: "fitpass account maintenance",
		Commands: []*cli.Command{
			{
				Name:  "seed-user",
				Usage: "create an account, optionally with an elevated role",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Usage: "display name", Required: true},
					&cli.StringFlag{Name: "email", Usage: "login email", Required: true},
					&cli.StringFlag{Name: "phone", Usage: "phone number for code delivery"},
					&cli.StringFlag{
						Name:     "password",
						Usage:    "initial password",
						Sources:  cli.EnvVars("FITCTL_PASSWORD"),
						Required: true,
					},
					&cli.StringFlag{Name: "role", Usage: "client, trainer or admin", Value: "client"},
				},
				Action: a.seedUser,
			},
			{
				Name:   "purge-resets",
				Usage:  "delete reset requests that are past the retention window",
				Action: a.purgeResets,
			},
		},
	}
}

func (a *app) withStores(ctx context.Context, fn func(*server.Stores) error) error {
	stores, err := a.open(ctx, a.cfg)
	if err != nil {
		return err
	}
	if stores.DB != nil {
		defer func() {
			if err := stores.DB.Close(context.Background()); err != nil {
				log.Warn().Err(err).Msg("Failed to disconnect from MongoDB")
			}
		}()
	}
	return fn(stores)
}

func (a *app) seedUser(ctx context.Context, c *cli.Command) error {
	role, err := models.ParseRole(c.String("role"))
	if err != nil {
		return err
	}

	return a.withStores(ctx, func(stores *server.Stores) error {
		users := services.NewUserService(stores.Users, utils.NewHasher(a.cfg.BcryptCost),
			services.TokenConfig{Secret: []byte(a.cfg.JWTSecret), TTL: a.cfg.JWTTTL}, a.cfg.PasswordMinLength)

		user, err := users.RegisterUser(ctx, &models.RegisterRequest{
			Username: c.String("username"),
			Email:    c.String("email"),
			Phone:    c.String("phone"),
			Password: c.String("password"),
		})
		if err != nil {
			return err
		}
		if role != models.RoleClient {
			if err := stores.Users.Update(ctx, user.ID, bson.M{"role": role}); err != nil {
				return fmt.Errorf("user created but role not set: %w", err)
			}
		}

		log.Info().Str("user_id", user.ID.Hex()).Str("role", role.String()).Msg("Seeded user")
		_, err = fmt.Fprintf(a.out, "created %s (%s) as %s\n", user.Email, user.ID.Hex(), role)
		return err
	})
}

func (a *app) purgeResets(ctx context.Context, _ *cli.Command) error {
	return a.withStores(ctx, func(stores *server.Stores) error {
		cutoff := a.now().UTC().Add(-a.cfg.ResetRetention)
		deleted, err := stores.Resets.DeleteDead(ctx, cutoff)
		if err != nil {
			return err
		}
		log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("Purged dead reset requests")
		_, err = fmt.Fprintf(a.out, "deleted %d reset requests\n", deleted)
		return err
	})
}
