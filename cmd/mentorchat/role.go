package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/SherClockHolmes/webpush-go"

	"github.com/devroad/mentorchat/internal/auth"
	"github.com/devroad/mentorchat/internal/db"
	"github.com/devroad/mentorchat/internal/models"
	"github.com/devroad/mentorchat/pkg/config"
)

type roleOptions struct {
	Create      bool
	Username    string
	Password    string
	Role        models.Role
	DisplayName string
}

func parseRoleArgs(args []string) (roleOptions, error) {
	opts := roleOptions{}
	if len(args) > 0 && args[0] == "--create" {
		opts.Create = true
		args = args[1:]
		if len(args) < 3 {
			return opts, fmt.Errorf("usage: role --create <username> <password> <role> [display name]")
		}
		opts.Username, opts.Password = args[0], args[1]
		opts.Role = models.Role(strings.ToLower(args[2]))
		opts.DisplayName = strings.Join(args[3:], " ")
	} else {
		if len(args) != 2 {
			return opts, fmt.Errorf("usage: role <username> <role>")
		}
		opts.Username = args[0]
		opts.Role = models.Role(strings.ToLower(args[1]))
	}

	if !opts.Role.Valid() {
		return opts, fmt.Errorf("unknown role %q (supported: learner, mentor, admin)", opts.Role)
	}
	return opts, nil
}

// runRole creates accounts or changes roles directly in the database. It is
// the only way to make the first admin.
func runRole(cfg *config.Config, out io.Writer, args []string) error {
	opts, err := parseRoleArgs(args)
	if err != nil {
		return err
	}

	database, err := db.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()
	svc := auth.New(database.GetConn(), cfg.JWTSecret)

	var user *models.User
	if opts.Create {
		user, err = svc.CreateUser(opts.Username, opts.Password, opts.DisplayName, opts.Role)
	} else {
		user, err = svc.FindByUsername(opts.Username)
		if err == nil {
			user, err = svc.SetRole(user.ID, opts.Role)
		}
	}
	if err != nil {
		return fmt.Errorf("%s: %w", opts.Username, err)
	}

	fmt.Fprintf(out, "%s (id %d) is now %s\n", user.Username, user.ID, user.Role)
	return nil
}

func runVAPID(out io.Writer) error {
	private, public, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return fmt.Errorf("failed to generate vapid keys: %w", err)
	}
	fmt.Fprintf(out, "VAPID_PUBLIC_KEY=%s\n", public)
	fmt.Fprintf(out, "VAPID_PRIVATE_KEY=%s\n", private)
	return nil
}
