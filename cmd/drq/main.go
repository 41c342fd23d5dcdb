package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/smtp"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"datarequest/internal/config"
	"datarequest/internal/db"
	"datarequest/internal/domain"
	"datarequest/internal/mail"
	"datarequest/internal/migrate"
	"datarequest/internal/repo"
	"datarequest/internal/server"
	"datarequest/internal/workflow"
)

var rootCmd = &cobra.Command{
	Use:   "drq",
	Short: "Data request workflow CLI",
	Long: `drq tracks research data-access requests through a multi-party approval
workflow: submission, preliminary review by the board of directors, data
manager review, assignment to data management committee reviewers, final
evaluation, and Data Transfer Agreement handling.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("DRQ")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(browseCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(groupCmd())
	rootCmd.AddCommand(apikeyCmd())
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the workspace: migrate and seed groups from config",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfgPath := config.Path(workspace)
			if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
				if err := os.WriteFile(cfgPath, []byte(config.GenerateDefault("tempZone")), 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote default config to %s\n", cfgPath)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				if err := e.Init(ctx); err != nil {
					return err
				}
				fmt.Printf("Initialized workspace %s (zone %s)\n", workspace, e.Config.Zone)
				return nil
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				if err := e.Init(ctx); err != nil {
					return err
				}
				secret := e.Config.Auth.JWTSecret
				if env := os.Getenv("DRQ_JWT_SECRET"); env != "" {
					secret = env
				}
				if secret == "" {
					return fmt.Errorf("auth.jwt_secret (or DRQ_JWT_SECRET) is required for bearer auth")
				}
				if addr == "" {
					addr = e.Config.Server.Addr
				}
				handler, err := server.New(server.Config{
					Engine:   e,
					BasePath: basePath,
					Auth:     server.AuthConfig{JWTSecret: secret},
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving data request API on http://%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

func browseCmd() *cobra.Command {
	var sortOn, sortOrder string
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "List data requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				result, err := e.Browse(ctx, repo.BrowseOptions{
					SortBy:     sortOn,
					Descending: sortOrder == "desc",
					Offset:     offset,
					Limit:      limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(result)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Submitter", "Created", "Status", "Title"})
				for _, item := range result.Items {
					created := time.Unix(item.CreateTime, 0).UTC().Format("2006-01-02")
					tw.AppendRow(table.Row{item.ID, item.Name, created, item.Status, item.Title})
				}
				tw.Render()
				fmt.Printf("%d of %d request(s)\n", len(result.Items), result.Total)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sortOn, "sort-on", "name", "sort column (name, create_time)")
	cmd.Flags().StringVar(&sortOrder, "sort-order", "asc", "sort order (asc, desc)")
	cmd.Flags().IntVar(&offset, "offset", 0, "pagination offset")
	cmd.Flags().IntVar(&limit, "limit", 10, "pagination limit")
	return cmd
}

func showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <request-id>",
		Short: "Show a data request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				req, err := e.Repo.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
	return cmd
}

func groupCmd() *cobra.Command {
	grp := &cobra.Command{Use: "group", Short: "Manage review-body group membership"}
	grp.AddCommand(groupListCmd())
	grp.AddCommand(groupAddCmd())
	grp.AddCommand(groupRemoveCmd())
	return grp
}

func groupListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List groups and members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				groups, err := e.Groups.ListGroups(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(groups)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Group", "Username", "Email"})
				for group, members := range groups {
					for _, m := range members {
						tw.AppendRow(table.Row{group, m.Username, m.Email})
					}
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func groupAddCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "add <group> <username>",
		Short: "Add a member to a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				tx, err := e.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if err := e.Groups.EnsureGroup(ctx, tx, args[0], ""); err != nil {
					return err
				}
				if err := e.Groups.AddMember(ctx, tx, args[0], args[1], email); err != nil {
					return err
				}
				return tx.Commit()
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "member email for notifications")
	return cmd
}

func groupRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <group> <username>",
		Short: "Remove a member from a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				tx, err := e.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if err := e.Groups.RemoveMember(ctx, tx, args[0], args[1]); err != nil {
					return err
				}
				return tx.Commit()
			})
		},
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var username, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (prints the secret once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				return fmt.Errorf("--username required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				secret := uuid.NewString() + uuid.NewString()
				apiKey := domain.APIKey{
					ID:       uuid.NewString(),
					Username: username,
					Name:     name,
					KeyHash:  repo.HashAPIKey(secret),
				}
				if err := e.Repo.InsertAPIKey(ctx, nil, apiKey); err != nil {
					return err
				}
				fmt.Printf("API key created for %s (id %s):\n%s\n", username, apiKey.ID, secret)
				fmt.Println("Store this secret now; only its hash is kept.")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "user the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				keys, err := e.Repo.ListAPIKeys(ctx, username)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Username", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Username, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "filter by username")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func withEngine(ctx context.Context, fn func(context.Context, workflow.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = config.Default("tempZone")
	}
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()
	e := workflow.New(conn, cfg, mailService(cfg, log), log)
	return fn(ctx, e)
}

func mailService(cfg *config.Config, log *zap.Logger) *mail.Service {
	var sender mail.Sender
	if cfg.Mail.Mode == "smtp" {
		var auth smtp.Auth
		if cfg.Mail.Username != "" {
			host := cfg.Mail.SMTPAddress
			if i := strings.IndexByte(host, ':'); i >= 0 {
				host = host[:i]
			}
			auth = smtp.PlainAuth("", cfg.Mail.Username, cfg.Mail.Password, host)
		}
		sender = &mail.SMTPSender{Addr: cfg.Mail.SMTPAddress, From: cfg.Mail.From, Auth: auth}
	} else {
		sender = &mail.LogSender{Log: log}
	}
	return &mail.Service{Sender: sender, PortalURL: cfg.PortalURL}
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
