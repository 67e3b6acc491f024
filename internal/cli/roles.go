package cli

import (
	"strings"

	"github.com/spf13/cobra"

	authclient "github.com/goliatone/go-auth-client"
)

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "List or switch the active role",
}

var rolesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the roles the user can switch to",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(rt *runtime) error {
			if err := rt.restore(cmd.Context()); err != nil {
				return err
			}
			roles, err := rt.roles.AvailableRoles(cmd.Context())
			if err != nil {
				return err
			}

			active := rt.roles.ActiveRole()
			render(map[string]any{"active_role": active, "available_roles": roles}, func() {
				for _, role := range roles {
					marker := " "
					if role == active {
						marker = "*"
					}
					printf("%s %s\n", marker, role)
				}
			})
			return nil
		})
	},
}

var rolesSwitchCmd = &cobra.Command{
	Use:   "switch ROLE",
	Short: "Ask the server to switch the active role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		requested := authclient.NormalizeRole(args[0])

		return withRuntime(cmd.Context(), func(rt *runtime) error {
			if err := rt.restore(cmd.Context()); err != nil {
				return err
			}
			active, err := rt.roles.ChangeRole(cmd.Context(), requested)
			if err != nil {
				return err
			}

			perms := rt.roles.Permissions()
			render(map[string]any{"active_role": active, "permissions": perms}, func() {
				if active != requested {
					printf("Server kept role %s (requested %s)\n", active, requested)
				} else {
					printf("Active role: %s\n", active)
				}
				printf("Allowed: %s\n", allowedCapabilities(perms))
			})
			return nil
		})
	},
}

var rolesCanCmd = &cobra.Command{
	Use:   "can CAPABILITY",
	Short: "Check a capability against the active role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		capability := strings.ToLower(strings.TrimSpace(args[0]))

		return withRuntime(cmd.Context(), func(rt *runtime) error {
			if err := rt.restore(cmd.Context()); err != nil {
				return err
			}
			ctx := authclient.WithSession(cmd.Context(), rt.session.Snapshot())
			allowed := authclient.Can(ctx, capability)
			render(map[string]any{"capability": capability, "allowed": allowed}, func() {
				if allowed {
					printf("%s: allowed\n", capability)
				} else {
					printf("%s: denied\n", capability)
				}
			})
			return nil
		})
	},
}

func init() {
	rolesCmd.AddCommand(rolesListCmd)
	rolesCmd.AddCommand(rolesSwitchCmd)
	rolesCmd.AddCommand(rolesCanCmd)
}
