package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/example/fleet-tracker/internal/dashboard"
	"github.com/example/fleet-tracker/internal/models"
)

var loginCommand = command{
	summary: "sign in and store the session token",
	flags: func(fs *pflag.FlagSet) {
		fs.String("email", "", "account email")
		fs.String("password", "", "account password")
	},
	run: func(ctx context.Context, a *app, fs *pflag.FlagSet) error {
		email, _ := fs.GetString("email")
		password, _ := fs.GetString("password")
		if email == "" || password == "" {
			return fmt.Errorf("%w: --email and --password are required", errUsage)
		}
		u, err := a.session.SignIn(ctx, email, password)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Signed in as %s (%s)\n", u.Name, u.Role)
		return nil
	},
}

var registerCommand = command{
	summary: "create a driver account and sign in",
	flags: func(fs *pflag.FlagSet) {
		fs.String("name", "", "display name")
		fs.String("email", "", "account email")
		fs.String("password", "", "account password")
	},
	run: func(ctx context.Context, a *app, fs *pflag.FlagSet) error {
		name, _ := fs.GetString("name")
		email, _ := fs.GetString("email")
		password, _ := fs.GetString("password")
		if name == "" || email == "" || password == "" {
			return fmt.Errorf("%w: --name, --email and --password are required", errUsage)
		}
		u, err := a.session.SignUp(ctx, name, email, password)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Registered %s (%s)\n", u.Email, u.Role)
		return nil
	},
}

var logoutCommand = command{
	summary: "sign out and forget the session token",
	run: func(ctx context.Context, a *app, _ *pflag.FlagSet) error {
		a.session.Start(ctx)
		if err := a.session.SignOut(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Signed out")
		return nil
	},
}

var whoamiCommand = command{
	summary: "show the signed-in profile",
	run: func(ctx context.Context, a *app, _ *pflag.FlagSet) error {
		a.session.Start(ctx)
		return dashboard.RenderProfile(a.out, a.session)
	},
}

var statusCommand = command{
	summary: "change the driver's availability: status <available|busy|offline>",
	run: func(ctx context.Context, a *app, fs *pflag.FlagSet) error {
		if fs.NArg() != 1 {
			return fmt.Errorf("%w: expected exactly one status", errUsage)
		}
		st, err := models.ParseStatus(fs.Arg(0))
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		a.session.Start(ctx)
		return a.session.Guard(ctx, func(u models.User) error {
			if u.Role != models.RoleDriver {
				return fmt.Errorf("status is only available to drivers")
			}
			w := dashboard.NewStatusWidget(a.gw, a.session, u.Status, a.log)
			if err := w.Change(ctx, st); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Status: %s\n", w.Status())
			return nil
		})
	},
}
