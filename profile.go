package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloudo-app/cloudo-go/internal/api"
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or edit your account profile",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the account profile",
		Args:  cobra.NoArgs,
		RunE:  runProfileShow,
	})

	set := &cobra.Command{
		Use:   "set",
		Short: "Update profile fields",
		Long: `Update one or more profile fields. Fields whose flag is not given keep
their current value.`,
		Example: `  cloudo profile set --location Berlin
  cloudo profile set --name "Alice Liddell" --email alice@example.com`,
		Args: cobra.NoArgs,
		RunE: runProfileSet,
	}

	set.Flags().String("name", "", "display name")
	set.Flags().String("email", "", "email address")
	set.Flags().String("location", "", "location")
	set.Flags().String("bio", "", "short biography")
	cmd.AddCommand(set)

	return cmd
}

func runProfileShow(cmd *cobra.Command, _ []string) error {
	cc, svc, err := authedServices(cmd)
	if err != nil {
		return err
	}

	user, err := svc.client.Profile(cmd.Context())
	if err != nil {
		return explainAuth(err)
	}

	return printProfile(cc, user)
}

func runProfileSet(cmd *cobra.Command, _ []string) error {
	cc, svc, err := authedServices(cmd)
	if err != nil {
		return err
	}

	fields := map[string]func(*api.User, string){
		"name":     func(u *api.User, v string) { u.Name = v },
		"email":    func(u *api.User, v string) { u.Email = v },
		"location": func(u *api.User, v string) { u.Location = v },
		"bio":      func(u *api.User, v string) { u.Bio = v },
	}

	changed := false

	for flag := range fields {
		if cmd.Flags().Changed(flag) {
			changed = true
		}
	}

	if !changed {
		return fmt.Errorf("nothing to update (use --name, --email, --location or --bio)")
	}

	ctx := cmd.Context()

	current, err := svc.client.Profile(ctx)
	if err != nil {
		return explainAuth(err)
	}

	for flag, apply := range fields {
		if cmd.Flags().Changed(flag) {
			v, _ := cmd.Flags().GetString(flag)
			apply(current, v)
		}
	}

	updated, err := svc.client.UpdateProfile(ctx, current)
	if err != nil {
		return explainAuth(err)
	}

	cc.Statusf("Profile updated.\n")

	return printProfile(cc, updated)
}

func printProfile(cc *CLIContext, u *api.User) error {
	if cc.Flags.JSON {
		return printJSON(cc.Stdout, u)
	}

	rows := [][]string{
		{"Username", u.Username},
		{"Name", u.Name},
		{"Email", u.Email},
		{"Location", u.Location},
		{"Bio", u.Bio},
		{"Joined", u.JoinDate},
	}

	for _, r := range rows {
		if r[1] != "" {
			fmt.Fprintf(cc.Stdout, "%-9s %s\n", r[0]+":", r[1])
		}
	}

	return nil
}
