package cli

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	authclient "github.com/goliatone/go-auth-client"
	"github.com/goliatone/go-auth-client/internal/mockbackend"
	"github.com/goliatone/go-auth-client/middleware/csrf"
)

var mockServerCmd = &cobra.Command{
	Use:   "mock-server",
	Short: "Serve an in-memory church API for local testing",
	Long: `Serve the auth, profile, role and church endpoints from memory with one
seeded account. Point AUTHCLIENT_BASE_URL at the listen address.

Examples:
  authctl mock-server --addr :3000 --identifier ana@example.org --secret s3cret --roles MEMBER,MANAGER`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		identifier, _ := cmd.Flags().GetString("identifier")
		secret, _ := cmd.Flags().GetString("secret")
		roleList, _ := cmd.Flags().GetStringSlice("roles")
		csrfKey, _ := cmd.Flags().GetString("csrf-key")
		ttl, _ := cmd.Flags().GetDuration("token-ttl")

		logger := authclient.NopLogger()
		if verbose {
			logger = authclient.DefaultLogger()
		}

		opts := []mockbackend.Option{
			mockbackend.WithLogger(logger),
			mockbackend.WithTokenTTL(ttl),
			mockbackend.WithChurches(
				authclient.Church{ID: "church-central", Name: "Central"},
				authclient.Church{ID: "church-north", Name: "North Campus"},
				authclient.Church{ID: "church-south", Name: "South Campus"},
			),
		}
		if csrfKey != "" {
			signer, err := csrf.NewSigner([]byte(csrfKey), time.Hour)
			if err != nil {
				return err
			}
			opts = append(opts, mockbackend.WithCSRF(signer))
		}
		server := mockbackend.New(opts...)

		roles := make([]authclient.Role, 0, len(roleList))
		for _, r := range roleList {
			if role := authclient.NormalizeRole(r); role != "" {
				roles = append(roles, role)
			}
		}
		if len(roles) == 0 {
			roles = []authclient.Role{authclient.DefaultRole}
		}

		user, err := server.AddAccount(identifier, secret, authclient.User{
			Name:           strings.Split(identifier, "@")[0],
			Role:           roles[0],
			AvailableRoles: roles,
			ChurchID:       "church-central",
		})
		if err != nil {
			return err
		}

		go func() {
			<-cmd.Context().Done()
			_ = server.Shutdown()
		}()

		printf("Mock API on %s, account %s (%s) roles %v\n", addr, identifier, user.ID, roles)
		return server.Listen(addr)
	},
}

func init() {
	mockServerCmd.Flags().String("addr", ":3000", "listen address")
	mockServerCmd.Flags().String("identifier", "member@example.org", "seeded account identifier")
	mockServerCmd.Flags().String("secret", "secret123", "seeded account secret")
	mockServerCmd.Flags().StringSlice("roles", []string{"MEMBER"}, "roles of the seeded account, first is active")
	mockServerCmd.Flags().String("csrf-key", "", "enable CSRF checks with this key (32+ bytes)")
	mockServerCmd.Flags().Duration("token-ttl", time.Hour, "lifetime of issued tokens")
}
