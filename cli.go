package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tarefasplus/api"
	"tarefasplus/dashboard"
	"tarefasplus/domain"
	"tarefasplus/share"
	"tarefasplus/storage"
)

func ownerFlag(cmd *cobra.Command) (string, error) {
	owner, _ := cmd.Flags().GetString("user")
	if strings.TrimSpace(owner) == "" {
		return "", errors.New("--user is required")
	}
	return owner, nil
}

func printTasks(w io.Writer, tasks []domain.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "(no tasks)")
		return
	}
	for _, t := range tasks {
		flag := " "
		if t.Public {
			flag = "P"
		}
		fmt.Fprintf(w, "%s  %s  %s  %s\n", t.ID, flag, t.Created.Local().Format("2006-01-02 15:04"), t.Tarefa)
	}
}

// openSession starts the hub and a session bound to owner, returning once the
// first snapshot is applied.
func openSession(ctx context.Context, a *app, owner string, onChange func([]domain.Task)) (*dashboard.Session, error) {
	if err := a.startHub(ctx); err != nil {
		return nil, err
	}
	sharer := &share.Sharer{BaseURL: a.cfg.PublicURL, Clipboard: share.SystemClipboard{}}
	s, err := dashboard.NewSession(ctx, a.hub, a.engine, sharer, "")
	if err != nil {
		return nil, err
	}
	first := make(chan struct{})
	var once bool
	s.OnChange(func(tasks []domain.Task) {
		if onChange != nil {
			onChange(tasks)
		}
		if !once {
			once = true
			close(first)
		}
	})
	if err := s.SetOwner(ctx, owner); err != nil {
		s.Close()
		return nil, err
	}
	select {
	case <-first:
		return s, nil
	case <-time.After(10 * time.Second):
		s.Close()
		return nil, errors.New("timed out waiting for task list")
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the task list on every change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ownerFlag(cmd)
			if err != nil {
				return err
			}
			a, err := loadSharedApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			s, err := openSession(cmd.Context(), a, owner, func(tasks []domain.Task) {
				fmt.Fprintf(out, "--- %s\n", time.Now().Format(time.TimeOnly))
				printTasks(out, tasks)
			})
			if err != nil {
				return err
			}
			defer s.Close()
			<-cmd.Context().Done()
			return nil
		},
	}
}

func addCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [text]",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ownerFlag(cmd)
			if err != nil {
				return err
			}
			public, _ := cmd.Flags().GetBool("public")
			a, err := loadSharedApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.engine.Create(cmd.Context(), strings.Join(args, " "), public, owner)
		},
	}
	cmd.Flags().BoolP("public", "p", false, "Make the task public")
	return cmd
}

func editCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit [id] [text]",
		Short: "Replace the text and visibility of a task",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ownerFlag(cmd)
			if err != nil {
				return err
			}
			public, _ := cmd.Flags().GetBool("public")
			a, err := loadSharedApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			s, err := openSession(ctx, a, owner, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			if !s.Edit(args[0]) {
				return fmt.Errorf("task %s: %w", args[0], domain.ErrNotFound)
			}
			s.SetInput(strings.Join(args[1:], " "))
			if cmd.Flags().Changed("public") {
				s.SetPublic(public)
			}
			return s.Submit(ctx)
		},
	}
	cmd.Flags().BoolP("public", "p", false, "Set visibility (keeps the current one when omitted)")
	return cmd
}

// removeTask deletes id only when it is one of owner's tasks. A missing id
// and another owner's id are both left alone and succeed.
func removeTask(ctx context.Context, a *app, owner, id string) error {
	tasks, err := a.conn.Query(ctx, owner)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if t.ID == id {
			return a.engine.Delete(ctx, id)
		}
	}
	a.logger.WithFields(log.Fields{"owner": owner, "id": id}).Debug("nothing to remove")
	return nil
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm [id]",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ownerFlag(cmd)
			if err != nil {
				return err
			}
			a, err := loadSharedApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return removeTask(cmd.Context(), a, owner, args[0])
		},
	}
}

func shareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "share [id]",
		Short: "Copy the public link of a task to the clipboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			sharer := &share.Sharer{BaseURL: cfg.PublicURL, Clipboard: share.SystemClipboard{}}
			link, err := sharer.Share(cmd.Context(), args[0])
			fmt.Fprintln(cmd.OutOrStdout(), link)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}
			return nil
		},
	}
}

func initStorageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-storage",
		Short: "Create the tasks table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			backend, err := openBackend(cfg)
			if err != nil {
				return err
			}
			store, ok := backend.(*storage.Storage)
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "memory backend needs no initialization")
				return nil
			}
			if err := store.CreateTable(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "table %s ready\n", cfg.Storage.TasksTable)
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a bearer token for test-mode authentication",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ownerFlag(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ttl, _ := cmd.Flags().GetDuration("ttl")
			tok, err := api.SignTestToken([]byte(cfg.Auth.TestSecret), owner, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
	return cmd
}
