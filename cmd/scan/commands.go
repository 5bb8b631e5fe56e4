package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/physio-outreach/internal/app"
	"github.com/jwalitptl/physio-outreach/internal/classifier"
	"github.com/jwalitptl/physio-outreach/internal/config"
	"github.com/jwalitptl/physio-outreach/internal/middleware"
	"github.com/jwalitptl/physio-outreach/internal/repository"
	"github.com/jwalitptl/physio-outreach/internal/repository/memory"
	"github.com/jwalitptl/physio-outreach/internal/repository/postgres"
	"github.com/jwalitptl/physio-outreach/migrations"
	"github.com/jwalitptl/physio-outreach/pkg/logger"
	"github.com/jwalitptl/physio-outreach/pkg/nlp"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "scan",
		Short:        "Find patients to contact after a missed appointment",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "path to config.yml")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(migrateCmd())
	return rootCmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.LoadConfig(path)
}

// cliLogger writes to stderr so that stdout only carries results.
func cliLogger(cmd *cobra.Command, cfg config.LogConfig) *logger.Logger {
	return logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Level),
		TimeFormat: time.RFC3339,
		Output:     cmd.ErrOrStderr(),
		JSON:       cfg.Format != "console",
	})
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one scan and print the results as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			window, _ := cmd.Flags().GetDuration("window")
			fixtures, _ := cmd.Flags().GetString("fixtures")
			details, _ := cmd.Flags().GetBool("details")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if window != 0 {
				cfg.Analysis.RecencyWindow = window
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			log := cliLogger(cmd, cfg.Log)

			ctx := cmd.Context()
			opener, closeStore, err := openStore(ctx, cfg, fixtures)
			if err != nil {
				return err
			}
			defer closeStore()

			svc, err := app.NewOutreachService(cfg, opener, log, nil)
			if err != nil {
				return err
			}

			report, err := svc.Run(ctx)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if details {
				for _, c := range report.Candidates {
					if err := enc.Encode(c); err != nil {
						return err
					}
				}
				return nil
			}
			for _, r := range report.Results() {
				if err := enc.Encode(r); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().Duration("window", 0, "override analysis.recency_window, e.g. 2160h")
	cmd.Flags().String("fixtures", "", "scan a JSON fixture file instead of the database")
	cmd.Flags().Bool("details", false, "include the confirming sentences")
	return cmd
}

func openStore(ctx context.Context, cfg *config.Config, fixtures string) (repository.Opener, func(), error) {
	if fixtures != "" {
		ds, err := memory.LoadDataset(fixtures)
		if err != nil {
			return nil, nil, err
		}
		return memory.NewOpener(ds), func() {}, nil
	}

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewOpener(db), func() { db.Close() }, nil
}

// classification is what classify prints for the text read on stdin.
type classification struct {
	Topic      bool     `json:"topic"`
	Candidates []string `json:"candidates"`
	Confirmed  []string `json:"confirmed"`
	Secondary  *bool    `json:"secondary,omitempty"`
}

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Run the topic and improvement classifiers over text read from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			useLLM, _ := cmd.Flags().GetBool("llm")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			text, err := readAll(cmd.InOrStdin())
			if err != nil {
				return err
			}

			resources, err := nlp.Load(nlp.Language(cfg.Analysis.Language))
			if err != nil {
				return err
			}
			lexicon := classifier.ItalianLowerBackPain
			detector := classifier.NewImprovementDetector(resources, lexicon)

			out := classification{
				Topic:      classifier.NewTopicMatcher(resources, lexicon).Matches(text),
				Candidates: nonNil(detector.Candidates(text)),
				Confirmed:  nonNil(detector.ConfirmedImprovements(text)),
			}

			if useLLM {
				secondary := app.NewSecondaryClassifier(cfg.LLM)
				if secondary == nil {
					return fmt.Errorf("--llm needs llm.enabled and llm.api_key")
				}
				ok, err := secondary.Confirm(cmd.Context(), text)
				if err != nil {
					return err
				}
				out.Secondary = &ok
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().Bool("llm", false, "also ask the secondary classifier")
	return cmd
}

// readAll keeps line breaks, which end sentences.
func readAll(r io.Reader) (string, error) {
	var b strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		b.WriteString(scanner.Text())
		b.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return b.String(), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not set")
			}

			token, err := middleware.NewAuthMiddleware(cfg.Auth.JWTSecret, cfg.Auth.Issuer).IssueToken(subject, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().String("subject", "front-desk", "token subject")
	cmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema management",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply the schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := postgres.NewDB(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := migrations.Up(ctx, db)
			if err != nil {
				return err
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the embedded migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := migrations.Names()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	})

	return cmd
}
