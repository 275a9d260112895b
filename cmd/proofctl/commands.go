package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"StarkProof/internal/app"
	"StarkProof/internal/config"
	"StarkProof/internal/proofs"
	"StarkProof/pkg/logger"
	"StarkProof/sdk/go/starkproof"
)

const (
	defaultServer  = "http://127.0.0.1:8090"
	defaultTimeout = 10 * time.Second
)

// newRootCmd creates the root command for proofctl.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "proofctl",
		Short: "Operate a StarkProof proof store",
		Long: `proofctl queries a running StarkProof server, resolves proofs directly
through the configured store, and imports proof files into Redis or SQL stores.

Example:
  proofctl get abc --server http://127.0.0.1:8090
  proofctl import examples/proof.json --config configs/starkproof.yaml`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file (defaults to $STARKPROOF_CONFIG or configs/starkproof.yaml)")
	rootCmd.PersistentFlags().Duration("timeout", defaultTimeout, "Timeout for each operation")

	rootCmd.AddCommand(newGetCmd(), newLookupCmd(), newDigestCmd(), newImportCmd())
	return rootCmd
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <secret>",
		Short: "Fetch a proof from a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			server, err := cmd.Flags().GetString("server")
			if err != nil {
				return fmt.Errorf("failed to get server flag: %w", err)
			}
			ctx, cancel := operationContext(cmd)
			defer cancel()

			client, err := starkproof.NewClient(server, nil)
			if err != nil {
				return err
			}
			proof, err := client.GetProof(ctx, args[0])
			if err != nil {
				return err
			}
			return printDocument(cmd, proof.Document, proof.Digest)
		},
	}
	cmd.Flags().StringP("server", "s", defaultServer, "Base URL of the StarkProof server")
	cmd.Flags().Bool("digest", false, "Print the proof digest before the document")
	return cmd
}

func newLookupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup <secret>",
		Short: "Resolve a proof through the configured store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := resolve(cmd, args[0])
			if err != nil {
				return err
			}
			return printDocument(cmd, result.Document, result.Digest)
		},
	}
	cmd.Flags().Bool("digest", false, "Print the proof digest before the document")
	return cmd
}

func newDigestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "digest <secret>",
		Short: "Print the Keccak-256 digest of a stored proof",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := resolve(cmd, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Digest)
			return nil
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import a proof file into the configured redis or sql store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read proof file: %w", err)
			}
			entries, err := proofs.ParseStore(data)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := operationContext(cmd)
			defer cancel()

			store, err := app.OpenStore(ctx, cfg.Store, logger.Discard().Logger())
			if err != nil {
				return err
			}
			defer store.Close()
			if store.Importer == nil {
				return fmt.Errorf("store driver %q does not support imports", cfg.Store.Driver)
			}

			n, err := store.Importer.Import(ctx, entries)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d proofs into %s store\n", n, cfg.Store.Driver)
			return nil
		},
	}
}

func resolve(cmd *cobra.Command, secret string) (proofs.Result, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return proofs.Result{}, err
	}
	ctx, cancel := operationContext(cmd)
	defer cancel()

	store, err := app.OpenStore(ctx, cfg.Store, logger.Discard().Logger())
	if err != nil {
		return proofs.Result{}, err
	}
	defer store.Close()

	result := app.NewService(cfg.Store, store.Provider, proofs.NopSink{}).GetProof(ctx, secret)
	if !result.OK() {
		return result, errors.New("Error generating proof: " + result.Message())
	}
	return result, nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	if path == "" {
		path = os.Getenv("STARKPROOF_CONFIG")
	}
	if path == "" {
		return config.LoadOptional(filepath.Join("configs", "starkproof.yaml"))
	}
	return config.Load(path)
}

func operationContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil || timeout <= 0 {
		timeout = defaultTimeout
	}
	return context.WithTimeout(cmd.Context(), timeout)
}

func printDocument(cmd *cobra.Command, doc json.RawMessage, digest string) error {
	withDigest, _ := cmd.Flags().GetBool("digest")
	out := cmd.OutOrStdout()
	if withDigest {
		fmt.Fprintln(out, digest)
	}
	compact, err := proofs.Compact(doc)
	if err != nil {
		return fmt.Errorf("stored proof is not valid JSON: %w", err)
	}
	fmt.Fprintln(out, string(compact))
	return nil
}
