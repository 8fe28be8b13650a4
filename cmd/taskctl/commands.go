package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"smart-task-manager/internal/client"

	"github.com/spf13/cobra"
)

func newSignupCmd() *cobra.Command {
	var name, email, password string

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := promptMissing(&email, "Email: "); err != nil {
				return err
			}
			if err := promptMissing(&name, "Name: "); err != nil {
				return err
			}
			if err := promptMissing(&password, "Password: "); err != nil {
				return err
			}

			session, err := cliApp.session.Signup(cmd.Context(), name, email, password)
			if err != nil {
				return err
			}
			fmt.Printf("Signed up as %s <%s>\n", session.User.Name, session.User.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted if omitted)")
	return cmd
}

func newLoginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := promptMissing(&email, "Email: "); err != nil {
				return err
			}
			if err := promptMissing(&password, "Password: "); err != nil {
				return err
			}

			session, err := cliApp.session.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Printf("Signed in as %s <%s>\n", session.User.Name, session.User.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted if omitted)")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear local state",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cliApp.session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Signed out")
			return nil
		},
	}
}

func newProfileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cliApp.requireAuth(); err != nil {
				return err
			}

			profile, err := cliApp.session.Profile(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Name:  %s\nEmail: %s\nID:    %s\n", profile.Name, profile.Email, profile.ID)
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cliApp.requireAuth(); err != nil {
				return err
			}

			tasks, err := cliApp.tasks.List(cmd.Context())
			if err != nil {
				return err
			}

			if status != "" {
				filtered := tasks[:0]
				for _, task := range tasks {
					if strings.EqualFold(task.Status, status) {
						filtered = append(filtered, task)
					}
				}
				tasks = filtered
			}

			if len(tasks) == 0 {
				fmt.Println("No tasks")
				return warnPending()
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tDUE\tSUBTASKS")
			for _, task := range tasks {
				id := task.ID
				if client.IsLocalID(id) {
					id += " (unsynced)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
					id, task.Title, task.Status,
					task.DueDate.Format("2006-01-02"), len(task.Subtasks))
			}
			w.Flush()
			return warnPending()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (Pending, In Progress, Completed)")
	return cmd
}

func newCreateCmd() *cobra.Command {
	var title, description, due, status string
	var suggest bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cliApp.requireAuth(); err != nil {
				return err
			}
			if title == "" {
				return fmt.Errorf("--title is required")
			}
			if due == "" {
				return fmt.Errorf("--due is required (e.g. 2026-09-15)")
			}

			input := client.TaskInput{
				Title:       title,
				Description: description,
				Status:      status,
				DueDate:     due,
			}

			if suggest {
				input.Description = cliApp.suggester.RefineDescription(cmd.Context(), title, description)
				for _, st := range cliApp.suggester.SuggestSubtasks(cmd.Context(), title, input.Description) {
					input.Subtasks = append(input.Subtasks, client.Subtask{Title: st})
				}
			}

			task, err := cliApp.tasks.Create(cmd.Context(), input)
			if err != nil {
				return err
			}

			if client.IsLocalID(task.ID) {
				fmt.Printf("Created task %s (offline, will sync)\n", task.ID)
			} else {
				fmt.Printf("Created task %s\n", task.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&description, "description", "", "task description")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&status, "status", "", "initial status")
	cmd.Flags().BoolVar(&suggest, "suggest", false, "refine the description and propose subtasks with AI")
	return cmd
}

func newUpdateCmd() *cobra.Command {
	var title, description, due, status string

	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Update fields of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cliApp.requireAuth(); err != nil {
				return err
			}

			update := client.TaskUpdate{}
			if cmd.Flags().Changed("title") {
				update.Title = &title
			}
			if cmd.Flags().Changed("description") {
				update.Description = &description
			}
			if cmd.Flags().Changed("due") {
				update.DueDate = &due
			}
			if cmd.Flags().Changed("status") {
				update.Status = &status
			}

			task, err := cliApp.tasks.Update(cmd.Context(), args[0], update)
			if err != nil {
				return err
			}
			fmt.Printf("Updated task %s\n", task.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&due, "due", "", "new due date")
	cmd.Flags().StringVar(&status, "status", "", "new status")
	return cmd
}

func newCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Mark a task completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cliApp.requireAuth(); err != nil {
				return err
			}

			status := "Completed"
			task, err := cliApp.tasks.Update(cmd.Context(), args[0], client.TaskUpdate{Status: &status})
			if err != nil {
				return err
			}
			fmt.Printf("Completed task %s\n", task.ID)
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cliApp.requireAuth(); err != nil {
				return err
			}

			if !yes {
				fmt.Printf("Delete task %s? [y/N] ", args[0])
				reader := bufio.NewReader(os.Stdin)
				answer, _ := reader.ReadString('\n')
				answer = strings.ToLower(strings.TrimSpace(answer))
				if answer != "y" && answer != "yes" {
					fmt.Println("Aborted")
					return nil
				}
			}

			if err := cliApp.tasks.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("Task deleted")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push queued offline changes to the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cliApp.requireAuth(); err != nil {
				return err
			}

			start := time.Now()
			replayed, err := cliApp.tasks.Sync(cmd.Context())
			if err != nil {
				return fmt.Errorf("synced %d change(s) before failing: %w", replayed, err)
			}

			if replayed == 0 {
				fmt.Println("Nothing to sync")
			} else {
				fmt.Printf("Synced %d change(s) in %s\n", replayed, time.Since(start).Round(time.Millisecond))
			}
			return nil
		},
	}
}

func newSuggestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <title> [description]",
		Short: "Preview AI suggestions for a task",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cliApp.suggester.Enabled() {
				return fmt.Errorf("AI suggestions need AI_API_KEY set")
			}

			title := args[0]
			description := ""
			if len(args) == 2 {
				description = args[1]
			}

			refined := cliApp.suggester.RefineDescription(cmd.Context(), title, description)
			fmt.Println("Description:", refined)

			subtasks := cliApp.suggester.SuggestSubtasks(cmd.Context(), title, refined)
			if len(subtasks) == 0 {
				fmt.Println("No subtask suggestions")
				return nil
			}
			fmt.Println("Subtasks:")
			for _, st := range subtasks {
				fmt.Println("  -", st)
			}
			return nil
		},
	}
}

func warnPending() error {
	count, err := cliApp.tasks.PendingCount()
	if err == nil && count > 0 {
		fmt.Fprintf(os.Stderr, "%d change(s) pending sync; run \"taskctl sync\"\n", count)
	}
	return nil
}

func promptMissing(value *string, prompt string) error {
	if *value != "" {
		return nil
	}
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	*value = strings.TrimSpace(line)
	if *value == "" {
		return fmt.Errorf("value required")
	}
	return nil
}
