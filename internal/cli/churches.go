package cli

import (
	"github.com/spf13/cobra"

	authclient "github.com/goliatone/go-auth-client"
)

var churchesCmd = &cobra.Command{
	Use:   "churches",
	Short: "List churches or change the selected church",
}

var churchesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List churches and show the resolved selection",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(rt *runtime) error {
			if err := rt.restore(cmd.Context()); err != nil {
				return err
			}
			selection, err := rt.churches.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			churches := rt.churches.Churches()

			render(map[string]any{"selection": selection, "churches": churches}, func() {
				for _, church := range churches {
					marker := " "
					if church.ID == selection.ID() {
						marker = "*"
					}
					printf("%s %-24s %s\n", marker, church.ID, church.Name)
				}
				printSelection(selection)
			})
			return nil
		})
	},
}

var churchesSelectCmd = &cobra.Command{
	Use:   "select [ID]",
	Short: "Select a church, or clear the selection when no id is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := ""
		if len(args) == 1 {
			id = args[0]
		}

		return withRuntime(cmd.Context(), func(rt *runtime) error {
			if err := rt.restore(cmd.Context()); err != nil {
				return err
			}
			if !rt.roles.Permissions().CanSelectChurch {
				rt.logger.Info("role %s cannot select churches, selection is stored anyway", rt.roles.ActiveRole())
			}
			// load names so the selection carries one
			if _, err := rt.churches.Refresh(cmd.Context()); err != nil {
				rt.logger.Warn("church list unavailable: %v", err)
			}
			selection := rt.churches.ChangeSelection(cmd.Context(), id)
			render(selection, func() {
				printSelection(selection)
			})
			return nil
		})
	},
}

func init() {
	churchesCmd.AddCommand(churchesListCmd)
	churchesCmd.AddCommand(churchesSelectCmd)
}

func printSelection(selection authclient.Selection) {
	if selection.IsNone() {
		printf("Selected: none\n")
		return
	}
	name := selection.Church.Name
	if name == "" {
		name = "(unknown)"
	}
	printf("Selected: %s %s [%s]\n", selection.ID(), name, selection.Source)
}
