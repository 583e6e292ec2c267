package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"colorflow/internal/api"
	"colorflow/internal/store"
)

func newSitesCommand(ctx *commandContext) *cobra.Command {
	sitesCmd := &cobra.Command{
		Use:   "sites",
		Short: "Manage facility sites",
	}

	sitesCmd.AddCommand(newSitesListCommand(ctx))
	sitesCmd.AddCommand(newSitesAddCommand(ctx))

	return sitesCmd
}

func newSitesListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sites and their liveness",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			sites, err := client.Sites(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, sites)
			}

			out := cmd.OutOrStdout()
			if len(sites) == 0 {
				fmt.Fprintln(out, "No sites registered")
				return nil
			}
			rows := make([][]string, 0, len(sites))
			for _, site := range sites {
				heartbeat := "-"
				if site.LastHeartbeat != nil {
					heartbeat = formatAge(*site.LastHeartbeat)
				}
				rows = append(rows, []string{
					site.Name,
					dash(site.ExportPath),
					yesNo(site.Active),
					yesNo(site.Online),
					heartbeat,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Name", "Export Path", "Active", "Online", "Last Heartbeat"},
				rows,
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newSitesAddCommand(ctx *commandContext) *cobra.Command {
	var exportPath string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			site, err := client.CreateSite(cmd.Context(), api.CreateSiteRequest{
				Name:       args[0],
				ExportPath: exportPath,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered site %s\n", site.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&exportPath, "export-path", "", "Site-local export directory")
	return cmd
}

func newUsersCommand(ctx *commandContext) *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage colorist and admin accounts",
	}

	usersCmd.AddCommand(newUsersListCommand(ctx))
	usersCmd.AddCommand(newUsersAddCommand(ctx))

	return usersCmd
}

func newUsersListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List user accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			users, err := client.Users(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, users)
			}

			out := cmd.OutOrStdout()
			if len(users) == 0 {
				fmt.Fprintln(out, "No users registered")
				return nil
			}
			rows := make([][]string, 0, len(users))
			for _, user := range users {
				rows = append(rows, []string{
					shortID(user.ID),
					user.Username,
					dash(user.DisplayName),
					user.Role,
					yesNo(user.Active),
					formatAge(user.CreatedAt),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Username", "Name", "Role", "Active", "Created"},
				rows,
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newUsersAddCommand(ctx *commandContext) *cobra.Command {
	var displayName string
	var email string
	var role string

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Register a user account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			user, err := client.CreateUser(cmd.Context(), api.CreateUserRequest{
				Username:    args[0],
				DisplayName: displayName,
				Email:       email,
				Role:        role,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s %s (%s)\n", user.Role, user.Username, shortID(user.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&displayName, "name", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Contact email")
	cmd.Flags().StringVar(&role, "role", "", "Account role (colorist, admin, operator)")
	return cmd
}

func newAuditCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent audit trail entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			entries, err := client.RecentAudit(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, entries)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "Audit trail is empty")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				transition := dash(entry.NewState)
				if entry.PreviousState != "" {
					transition = entry.PreviousState + " -> " + entry.NewState
				}
				rows = append(rows, []string{
					formatAge(entry.CreatedAt),
					shortID(entry.FileID),
					entry.Action,
					transition,
					dash(entry.PerformedBy),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"When", "File", "Action", "Transition", "By"},
				rows,
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of entries")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show file counts by lifecycle state",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			stats, err := client.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, stats)
			}

			out := cmd.OutOrStdout()
			if stats.Total == 0 {
				fmt.Fprintln(out, "No files tracked")
				return nil
			}
			rows := make([][]string, 0, len(stats.States))
			for _, state := range orderedStates(stats.States) {
				rows = append(rows, []string{state, fmt.Sprintf("%d", stats.States[state])})
			}
			rows = append(rows, []string{"total", fmt.Sprintf("%d", stats.Total)})
			fmt.Fprintln(out, renderTable([]string{"State", "Count"}, rows, 1))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

// orderedStates lists known states in lifecycle order, then any stragglers
// alphabetically.
func orderedStates(counts map[string]int) []string {
	var states []string
	seen := make(map[string]struct{}, len(counts))
	for _, state := range store.AllStates() {
		if _, ok := counts[string(state)]; ok {
			states = append(states, string(state))
			seen[string(state)] = struct{}{}
		}
	}
	var rest []string
	for state := range counts {
		if _, ok := seen[state]; !ok {
			rest = append(rest, state)
		}
	}
	sort.Strings(rest)
	return append(states, rest...)
}
