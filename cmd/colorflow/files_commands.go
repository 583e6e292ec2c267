package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"colorflow/internal/api"
)

func newFilesCommand(ctx *commandContext) *cobra.Command {
	filesCmd := &cobra.Command{
		Use:   "files",
		Short: "Inspect and drive tracked files through the lifecycle",
	}

	filesCmd.AddCommand(newFilesListCommand(ctx))
	filesCmd.AddCommand(newFilesShowCommand(ctx))
	filesCmd.AddCommand(newFilesAddCommand(ctx))
	filesCmd.AddCommand(newSimpleOpCommand(ctx, "validate", "Validate detected files and lock them", "validate"))
	filesCmd.AddCommand(newSingleOpCommand(ctx, "queue <id>", "Queue a validated file for transfer", "queue"))
	filesCmd.AddCommand(newStartTransferCommand(ctx))
	filesCmd.AddCommand(newSingleOpCommand(ctx, "complete-transfer <id>", "Mark an in-flight transfer finished", "complete-transfer"))
	filesCmd.AddCommand(newAssignCommand(ctx))
	filesCmd.AddCommand(newSimpleOpCommand(ctx, "start-work", "Begin color work on assigned files", "start-work"))
	filesCmd.AddCommand(newSimpleOpCommand(ctx, "deliver", "Mark files delivered to the MAM", "deliver"))
	filesCmd.AddCommand(newSingleOpCommand(ctx, "archive <id>", "Archive a delivered file", "archive"))
	filesCmd.AddCommand(newRejectCommand(ctx))
	filesCmd.AddCommand(newSingleOpCommand(ctx, "revert <id>", "Undo the most recent transition", "revert"))
	filesCmd.AddCommand(newDeleteCommand(ctx))
	filesCmd.AddCommand(newCleanupCommand(ctx))
	filesCmd.AddCommand(newRetransferCommand(ctx))

	return filesCmd
}

func newFilesListCommand(ctx *commandContext) *cobra.Command {
	var stateFilter string
	var siteFilter string
	var search string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked files",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			files, err := client.ListFiles(cmd.Context(), stateFilter, siteFilter, search)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, files)
			}

			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintln(out, "No files tracked")
				return nil
			}
			colorize := shouldColorize(out)
			rows := make([][]string, 0, len(files))
			for _, file := range files {
				rows = append(rows, []string{
					shortID(file.ID),
					file.Filename,
					file.SourceSite,
					renderState(file.State, colorize),
					dash(file.AssignedTo),
					formatSize(file.FileSize),
					formatAge(file.DetectedAt),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Filename", "Site", "State", "Assignee", "Size", "Detected"},
				rows, 5,
			))
			return nil
		},
	}

	cmd.Flags().StringVarP(&stateFilter, "state", "s", "", "Filter by lifecycle state")
	cmd.Flags().StringVar(&siteFilter, "site", "", "Filter by source site")
	cmd.Flags().StringVar(&search, "search", "", "Filter by filename substring")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newFilesShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show file details, transfer attempts, and audit history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			file, err := client.GetFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			entries, err := client.FileAudit(cmd.Context(), file.ID)
			if err != nil {
				return err
			}
			transfers, err := client.FileTransfers(cmd.Context(), file.ID)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd, struct {
					File      api.FileView     `json:"file"`
					Transfers []api.TransferView `json:"transfers"`
					Audit     []api.AuditView  `json:"audit"`
				}{file, transfers, entries})
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintf(out, "File %s\n", file.ID)
			fmt.Fprintf(out, "  Filename:     %s\n", file.Filename)
			fmt.Fprintf(out, "  Site:         %s\n", file.SourceSite)
			fmt.Fprintf(out, "  Source path:  %s\n", file.SourcePath)
			fmt.Fprintf(out, "  Size:         %s\n", formatSize(file.FileSize))
			fmt.Fprintf(out, "  SHA-256:      %s\n", file.SHA256Hash)
			fmt.Fprintf(out, "  State:        %s\n", renderState(file.State, colorize))
			fmt.Fprintf(out, "  Assignee:     %s\n", dash(file.AssignedTo))
			fmt.Fprintf(out, "  Locked:       %s\n", yesNo(file.Locked))
			fmt.Fprintf(out, "  Cleaned up:   %s\n", yesNo(file.CleanedUp))
			if file.TransferProgress > 0 {
				fmt.Fprintf(out, "  Progress:     %d%%\n", file.TransferProgress)
			}
			if file.ErrorMessage != "" {
				fmt.Fprintf(out, "  Error:        %s\n", file.ErrorMessage)
			}
			fmt.Fprintf(out, "  Detected:     %s\n", formatAge(file.DetectedAt))
			fmt.Fprintf(out, "  Validated:    %s\n", formatTimestamp(file.ValidatedAt))
			fmt.Fprintf(out, "  Transferred:  %s\n", formatTimestamp(file.TransferDone))
			fmt.Fprintf(out, "  Assigned:     %s\n", formatTimestamp(file.AssignedAt))
			fmt.Fprintf(out, "  Delivered:    %s\n", formatTimestamp(file.DeliveredAt))
			fmt.Fprintf(out, "  Archived:     %s\n", formatTimestamp(file.ArchivedAt))

			if len(transfers) > 0 {
				rows := make([][]string, 0, len(transfers))
				for _, job := range transfers {
					rows = append(rows, []string{
						shortID(job.ID),
						dash(job.ExternalJobID),
						job.Status,
						formatSize(job.BytesTransferred),
						fmt.Sprintf("%d", job.RetryCount),
						dash(job.ErrorMessage),
					})
				}
				fmt.Fprintln(out, "\nTransfers:")
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Job", "Status", "Bytes", "Retries", "Error"},
					rows, 3, 4,
				))
			}

			if len(entries) > 0 {
				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					transition := dash(entry.NewState)
					if entry.PreviousState != "" {
						transition = entry.PreviousState + " -> " + entry.NewState
					}
					rows = append(rows, []string{
						formatAge(entry.CreatedAt),
						entry.Action,
						transition,
						dash(entry.PerformedBy),
						dash(entry.Details),
					})
				}
				fmt.Fprintln(out, "\nHistory:")
				fmt.Fprintln(out, renderTable(
					[]string{"When", "Action", "Transition", "By", "Details"},
					rows,
				))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a report")
	return cmd
}

func newFilesAddCommand(ctx *commandContext) *cobra.Command {
	var site string
	var sourcePath string
	var size int64
	var hash string

	cmd := &cobra.Command{
		Use:   "add <filename>",
		Short: "Manually register a file the site daemon has not reported",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			file, err := client.RegisterFile(cmd.Context(), api.RegisterFileRequest{
				Filename:   args[0],
				Site:       site,
				SourcePath: sourcePath,
				FileSize:   size,
				SHA256Hash: hash,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s as %s (%s)\n", file.Filename, shortID(file.ID), file.State)
			return nil
		},
	}

	cmd.Flags().StringVar(&site, "site", "", "Source site name")
	cmd.Flags().StringVar(&sourcePath, "path", "", "Path of the file at the source site")
	cmd.Flags().Int64Var(&size, "size", 0, "File size in bytes")
	cmd.Flags().StringVar(&hash, "hash", "", "SHA-256 of the file content")
	_ = cmd.MarkFlagRequired("site")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

// newSimpleOpCommand builds a lifecycle command that accepts one or more file
// ids. A single id uses the per-file endpoint; several go through the bulk
// endpoint so each file succeeds or fails independently.
func newSimpleOpCommand(ctx *commandContext, use, short, op string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id> [id...]",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFileOp(ctx, cmd, op, args, nil, api.BulkRequest{FileIDs: args})
		},
	}
}

// newSingleOpCommand builds a lifecycle command with no bulk counterpart.
func newSingleOpCommand(ctx *commandContext, use, short, op string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			file, err := client.FileOp(cmd.Context(), args[0], op, nil)
			if err != nil {
				return err
			}
			printFileResult(cmd, file)
			return nil
		},
	}
}

func newStartTransferCommand(ctx *commandContext) *cobra.Command {
	var jobID string

	cmd := &cobra.Command{
		Use:   "start-transfer <id>",
		Short: "Begin transferring a queued file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var body any
			if jobID != "" {
				body = api.StartTransferRequest{ExternalJobID: jobID}
			}
			file, err := client.FileOp(cmd.Context(), args[0], "start-transfer", body)
			if err != nil {
				return err
			}
			printFileResult(cmd, file)
			return nil
		},
	}

	cmd.Flags().StringVar(&jobID, "job-id", "", "External transfer job id")
	return cmd
}

func newAssignCommand(ctx *commandContext) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "assign <id> [id...]",
		Short: "Assign files to a colorist",
		Long:  "Assign files to a colorist. Without --to, the longest-standing active colorist is chosen.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body any
			if userID != "" {
				body = api.AssignRequest{UserID: userID}
			}
			return runFileOp(ctx, cmd, "assign", args, body, api.BulkRequest{FileIDs: args, UserID: userID})
		},
	}

	cmd.Flags().StringVar(&userID, "to", "", "Explicit assignee user id")
	return cmd
}

func newRejectCommand(ctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "reject <id> [id...]",
		Short: "Reject files with a reason",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body any
			if reason != "" {
				body = api.RejectRequest{Reason: reason}
			}
			return runFileOp(ctx, cmd, "reject", args, body, api.BulkRequest{FileIDs: args, Reason: reason})
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Why the file is rejected")
	return cmd
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id> [id...]",
		Short: "Remove unlocked detected files from tracking",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				if err := client.DeleteFile(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out, "Deleted %s\n", args[0])
				return nil
			}
			resp, err := client.Bulk(cmd.Context(), "delete", api.BulkRequest{FileIDs: args})
			if err != nil {
				return err
			}
			printBulkResult(cmd, resp)
			return nil
		},
	}
}

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup <id>",
		Short: "Schedule deletion of the source copy after MAM delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			task, err := client.Cleanup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleanup task %s scheduled for site %s (%s)\n",
				shortID(task.ID), task.Site, task.Status)
			return nil
		},
	}
}

func newRetransferCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retransfer <id>",
		Short: "Schedule a fresh transfer of a rejected file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			task, err := client.Retransfer(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Retransfer task %s scheduled for site %s; the file will be re-detected\n",
				shortID(task.ID), task.Site)
			return nil
		},
	}
}

func runFileOp(ctx *commandContext, cmd *cobra.Command, op string, ids []string, body any, bulkReq api.BulkRequest) error {
	client, err := ctx.client()
	if err != nil {
		return err
	}
	if len(ids) == 1 {
		file, err := client.FileOp(cmd.Context(), ids[0], op, body)
		if err != nil {
			return err
		}
		printFileResult(cmd, file)
		return nil
	}

	resp, err := client.Bulk(cmd.Context(), op, bulkReq)
	if err != nil {
		return err
	}
	printBulkResult(cmd, resp)
	return nil
}

func printFileResult(cmd *cobra.Command, file api.FileView) {
	out := cmd.OutOrStdout()
	line := fmt.Sprintf("%s %s -> %s", shortID(file.ID), file.Filename, renderState(file.State, shouldColorize(out)))
	if file.AssignedTo != "" {
		line += " (assigned to " + file.AssignedTo + ")"
	}
	fmt.Fprintln(out, line)
}

func printBulkResult(cmd *cobra.Command, resp api.BulkResponse) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d succeeded, %d failed\n", resp.Succeeded, resp.Failed)
	for _, failure := range resp.Failures {
		fmt.Fprintf(out, "  %s: %s\n", shortID(failure.FileID), failure.Error)
	}
}
