package cli

import (
	"sort"
	"strings"

	"github.com/spf13/cobra"

	authclient "github.com/goliatone/go-auth-client"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the bearer token",
	Long: `Sign in with an email or phone identifier and a secret. The token is
stored in the credential database and the full profile is fetched.

Examples:
  authctl login --identifier ana@example.org --secret s3cret`,
	RunE: func(cmd *cobra.Command, args []string) error {
		identifier, _ := cmd.Flags().GetString("identifier")
		secret, _ := cmd.Flags().GetString("secret")

		return withRuntime(cmd.Context(), func(rt *runtime) error {
			if err := rt.session.SignIn(cmd.Context(), authclient.Credentials{
				Identifier: identifier,
				Secret:     secret,
			}); err != nil {
				return err
			}
			printSession(rt.session.Snapshot())
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and clear stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(rt *runtime) error {
			rt.session.Logout(cmd.Context())
			rt.session.Wait()
			printf("Logged out.\n")
			return nil
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Restore the stored session and show the current user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(rt *runtime) error {
			if err := rt.restore(cmd.Context()); err != nil {
				return err
			}
			printSession(rt.session.Snapshot())
			return nil
		})
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or update the profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Fetch the full profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(rt *runtime) error {
			if err := rt.restore(cmd.Context()); err != nil {
				return err
			}
			if err := rt.session.FetchProfile(cmd.Context()); err != nil {
				return err
			}
			printSession(rt.session.Snapshot())
			return nil
		})
	},
}

var profileUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update profile fields",
	Long: `Update one or more profile fields. Fields that are not given keep their
current value.

Examples:
  authctl profile update --name Ana --phone "+1 415 555 0100"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var update authclient.ProfileUpdate
		update.Name, _ = cmd.Flags().GetString("name")
		update.LastName, _ = cmd.Flags().GetString("last-name")
		update.Email, _ = cmd.Flags().GetString("email")
		update.Phone, _ = cmd.Flags().GetString("phone")
		update.ProfileImage, _ = cmd.Flags().GetString("image")

		return withRuntime(cmd.Context(), func(rt *runtime) error {
			if err := rt.restore(cmd.Context()); err != nil {
				return err
			}
			if err := rt.session.UpdateProfile(cmd.Context(), update); err != nil {
				return err
			}
			printSession(rt.session.Snapshot())
			return nil
		})
	},
}

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Change the account secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		current, _ := cmd.Flags().GetString("current")
		next, _ := cmd.Flags().GetString("new")

		return withRuntime(cmd.Context(), func(rt *runtime) error {
			if err := rt.restore(cmd.Context()); err != nil {
				return err
			}
			err := rt.password.Execute(cmd.Context(), authclient.ChangePasswordMessage{
				CurrentSecret: current,
				NewSecret:     next,
			})
			if err != nil {
				return err
			}
			printf("Password updated.\n")
			return nil
		})
	},
}

func init() {
	loginCmd.Flags().String("identifier", "", "email or phone number")
	loginCmd.Flags().String("secret", "", "account secret")
	_ = loginCmd.MarkFlagRequired("identifier")
	_ = loginCmd.MarkFlagRequired("secret")

	profileUpdateCmd.Flags().String("name", "", "first name")
	profileUpdateCmd.Flags().String("last-name", "", "last name")
	profileUpdateCmd.Flags().String("email", "", "email address")
	profileUpdateCmd.Flags().String("phone", "", "phone number")
	profileUpdateCmd.Flags().String("image", "", "profile image URL")
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileUpdateCmd)

	passwordCmd.Flags().String("current", "", "current secret")
	passwordCmd.Flags().String("new", "", "new secret")
	_ = passwordCmd.MarkFlagRequired("current")
	_ = passwordCmd.MarkFlagRequired("new")
}

type sessionView struct {
	Status      authclient.Status      `json:"status"`
	User        *authclient.User       `json:"user,omitempty"`
	ActiveRole  authclient.Role        `json:"active_role"`
	Permissions authclient.Permissions `json:"permissions"`
	Token       *authclient.TokenInfo  `json:"token,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

func printSession(snap authclient.Snapshot) {
	view := sessionView{
		Status:      snap.Status,
		User:        snap.User,
		ActiveRole:  snap.ActiveRole(),
		Permissions: snap.Permissions(),
		Token:       snap.TokenInfo,
		Error:       snap.Error,
	}

	render(view, func() {
		printf("Status:  %s\n", view.Status)
		if u := view.User; u != nil {
			name := strings.TrimSpace(u.Name + " " + u.LastName)
			printf("User:    %s (%s)\n", name, u.ID)
			if u.Email != "" {
				printf("Email:   %s\n", u.Email)
			}
			if u.Phone != "" {
				printf("Phone:   %s\n", u.Phone)
			}
		}
		printf("Role:    %s\n", view.ActiveRole)
		printf("Allowed: %s\n", allowedCapabilities(view.Permissions))
		if view.Token != nil && view.Token.ExpiresAt != nil {
			printf("Expires: %s\n", view.Token.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
		}
		if view.Error != "" {
			printf("Error:   %s\n", view.Error)
		}
	})
}

func allowedCapabilities(p authclient.Permissions) string {
	var out []string
	for name, ok := range p.Flags() {
		if ok {
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return "-"
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}
