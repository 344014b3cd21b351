package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/willow/config"
	"github.com/Ramsey-B/willow/pkg/integrity"
	"github.com/Ramsey-B/willow/pkg/packagefile"
	"github.com/Ramsey-B/willow/pkg/vocabulary"
)

type configLoader func() (*config.Config, error)

func newServeCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the import API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, logger)
		},
	}
}

func newMigrateCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			infra := &infrastructure{cfg: cfg, logger: logger}
			pg := infra.postgresDependency()
			if err := pg.Start(cmd.Context()); err != nil {
				return err
			}
			return pg.Stop(cmd.Context())
		},
	}
}

type inspectOptions struct {
	VocabularyFile string
	SigningKey     string
}

func newInspectCmd(load configLoader) *cobra.Command {
	var opts inspectOptions

	cmd := &cobra.Command{
		Use:   "inspect <package.uhc>",
		Short: "Verify a package file offline and print its integrity report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}

			codes := vocabulary.Default()
			if path := firstNonEmpty(opts.VocabularyFile, cfg.VocabularyFile); path != "" {
				if codes, err = vocabulary.LoadFile(path); err != nil {
					return err
				}
			}
			key := firstNonEmpty(opts.SigningKey, cfg.SigningKey)
			verifier := integrity.NewVerifier(integrity.Config{
				RequireSignature: key != "",
				SigningKey:       key,
			}, codes, logger)

			f, err := packagefile.Open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			report, err := verifier.Verify(cmd.Context(), f)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(report.Diagnostics(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			if report.Failure != nil {
				return fmt.Errorf("package would be quarantined: %w", report.Failure)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.VocabularyFile, "vocabulary", "", "vocabulary catalogue (defaults to VOCABULARY_FILE or the built-in catalogue)")
	cmd.Flags().StringVar(&opts.SigningKey, "signing-key", "", "verify the manifest signature with this key")
	return cmd
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
