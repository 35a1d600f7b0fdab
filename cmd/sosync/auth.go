// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/ManuGH/sosync/internal/config"
	"github.com/ManuGH/sosync/internal/credentials"
	"github.com/spf13/cobra"
)

func newAuthCmds(opts *rootOptions) []*cobra.Command {
	var username, password string
	login := &cobra.Command{
		Use:   "login",
		Short: "Authenticate against the backend and store the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv(config.EnvPassword)
			}
			if username == "" || password == "" {
				return fmt.Errorf("%w: --username and --password (or %s) are required", errUsage, config.EnvPassword)
			}
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			client, err := a.requireAPI()
			if err != nil {
				return err
			}
			p, err := client.Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			printProfile(cmd.OutOrStdout(), "logged in as", p)
			return nil
		},
	}
	login.Flags().StringVarP(&username, "username", "u", "", "account username")
	login.Flags().StringVarP(&password, "password", "p", "", "account password")

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Invalidate the token and clear local credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			client, err := a.apiClient()
			if err != nil {
				return err
			}
			if client == nil {
				err = a.creds.Clear(cmd.Context())
			} else {
				err = client.Logout(cmd.Context())
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}

	var refresh bool
	whoami := &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if refresh {
				client, err := a.requireAPI()
				if err != nil {
					return err
				}
				p, err := client.Me(ctx)
				if err != nil {
					return err
				}
				printProfile(cmd.OutOrStdout(), "", p)
				return nil
			}
			p, err := a.creds.Profile(ctx)
			if err != nil {
				return err
			}
			if p == nil || !a.creds.Authenticated(ctx) {
				fmt.Fprintln(cmd.OutOrStdout(), "not logged in")
				return nil
			}
			printProfile(cmd.OutOrStdout(), "", *p)
			return nil
		},
	}
	whoami.Flags().BoolVar(&refresh, "refresh", false, "fetch the profile from the backend")

	return []*cobra.Command{login, logout, whoami}
}

func printProfile(w io.Writer, prefix string, p credentials.Profile) {
	if prefix != "" {
		fmt.Fprint(w, prefix, " ")
	}
	fmt.Fprintf(w, "%s <%s>", p.Username, p.Email)
	if name := p.FirstName + " " + p.LastName; name != " " {
		fmt.Fprintf(w, " %s", name)
	}
	fmt.Fprintln(w)
}
