package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"notebook/api/internal/config"
	"notebook/api/internal/logging"
	"notebook/api/internal/syncclient"
)

type globalFlags struct {
	apiURL   string
	token    string
	logLevel string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "notebook",
		Short:         "Command line client for the notebook API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.apiURL, "api", envOr("NOTEBOOK_API_URL", "http://localhost:8787"), "API base URL")
	root.PersistentFlags().StringVar(&flags.token, "token", os.Getenv("NOTEBOOK_TOKEN"), "access token (or NOTEBOOK_TOKEN)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "log level")

	root.AddCommand(
		newSignInCmd(flags),
		newTreeCmd(flags),
		newMoveCmd(flags),
		newWatchCmd(flags),
	)
	return root
}

func (f *globalFlags) client() *syncclient.Client {
	return syncclient.NewClient(f.apiURL, f.token)
}

func (f *globalFlags) logger() zerolog.Logger {
	return logging.NewWithWriter(os.Stderr, f.logLevel, true)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func newSignInCmd(flags *globalFlags) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in and print an access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("NOTEBOOK_PASSWORD")
			}
			session, err := flags.client().SignIn(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "export NOTEBOOK_TOKEN=%s\n", session.Token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (or NOTEBOOK_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newTreeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Print the folder and page tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := flags.client().Tree(cmd.Context())
			if err != nil {
				return err
			}
			renderTree(cmd.OutOrStdout(), tree)
			return nil
		},
	}
}

func newMoveCmd(flags *globalFlags) *cobra.Command {
	var parent string
	cmd := &cobra.Command{
		Use:   "move <page|folder> <id> <position>",
		Short: "Move one item to a position inside a folder or the root",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			move, err := parseMove(args, parent)
			if err != nil {
				return err
			}
			positions, err := flags.client().Reorder(cmd.Context(), []syncclient.Move{move})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "moved %s %s to %d (%d pages, %d folders)\n",
				move.Type, move.ID, move.Position, len(positions.Pages), len(positions.Folders))
			return nil
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "destination folder id; empty moves to the root")
	return cmd
}

func parseMove(args []string, parent string) (syncclient.Move, error) {
	kind := strings.ToLower(args[0])
	if kind != "page" && kind != "folder" {
		return syncclient.Move{}, fmt.Errorf("type must be page or folder, got %q", args[0])
	}
	position, err := strconv.Atoi(args[2])
	if err != nil || position < 0 {
		return syncclient.Move{}, fmt.Errorf("position must be a non-negative integer, got %q", args[2])
	}
	move := syncclient.Move{ID: args[1], Type: kind, Position: position}
	if parent = strings.TrimSpace(parent); parent != "" {
		move.ParentID = &parent
	}
	return move, nil
}

func renderTree(w io.Writer, nodes []syncclient.TreeNode) {
	var walk func(nodes []syncclient.TreeNode, depth int)
	walk = func(nodes []syncclient.TreeNode, depth int) {
		for _, node := range nodes {
			marker := "-"
			if node.Type == "folder" {
				marker = "+"
			}
			fmt.Fprintf(w, "%s%s %s  (%s #%d)\n", strings.Repeat("  ", depth), marker, node.Name, node.ID, node.Position)
			walk(node.Children, depth+1)
		}
	}
	if len(nodes) == 0 {
		fmt.Fprintln(w, "(empty)")
		return
	}
	walk(nodes, 0)
}

func durationFlagDefault(key string, fallback string) string {
	parsed := config.GetenvDuration(key, 0)
	if parsed <= 0 {
		return fallback
	}
	return parsed.String()
}
