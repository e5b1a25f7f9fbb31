package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/AMS/ams/types"
	"github.com/teranos/AMS/errors"
)

// UserCmd manages the identities that submit batches and destroy assets
var UserCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage AMS users and their roles",
}

var userAddCmd = &cobra.Command{
	Use:   "add <email>",
	Short: "Create or update a user",
	Long: `Create a user, or replace the roles of an existing one.

Examples:
  ams user add ingester@example.org --role aapb-admin`,
	Args: cobra.ExactArgs(1),
	RunE: runUserAdd,
}

var userShowCmd = &cobra.Command{
	Use:   "show <email>",
	Short: "Show a user's roles",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserShow,
}

var userRoles []string

func init() {
	userAddCmd.Flags().StringSliceVar(&userRoles, "role", nil, "Role to grant (repeatable)")

	UserCmd.AddCommand(userAddCmd)
	UserCmd.AddCommand(userShowCmd)
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	if args[0] == "" {
		return errors.NewInvalidRequestError("email is required")
	}
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.deps.Users.Save(ctx, types.Identity{Email: args[0], Roles: userRoles}); err != nil {
		return err
	}
	pterm.Success.Printf("Saved %s with roles %v\n", args[0], userRoles)
	return nil
}

func runUserShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	identity, err := a.deps.Users.Get(ctx, args[0])
	if err != nil {
		return err
	}
	pterm.Info.Printf("%s: %v\n", identity.Email, identity.Roles)
	return nil
}
