// Command seed loads a JSON fixture of souvenirs and carts into the
// configured stores and prints what was created.
//
// Usage:
//
//	seed --file fixtures/catalog.json [--merge-duplicates]
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/utafrali/SouvenirShop/internal/app"
	"github.com/utafrali/SouvenirShop/internal/config"
	"github.com/utafrali/SouvenirShop/internal/service"
	"github.com/utafrali/SouvenirShop/pkg/logger"
)

const serviceName = "souvenir-seed"

func newRootCmd() *cobra.Command {
	var (
		file  string
		merge bool
	)
	cmd := &cobra.Command{
		Use:           "seed",
		Short:         "Load a souvenir and cart fixture into the configured stores",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fixture, err := readFixture(file)
			if err != nil {
				return err
			}
			if merge {
				fixture.MergeDuplicateItems = true
			}
			return seed(cmd.Context(), fixture, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the JSON fixture")
	cmd.Flags().BoolVar(&merge, "merge-duplicates", false, "sum amounts of cart items that repeat a souvenir instead of rejecting the fixture")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "seed:", err)
		os.Exit(1)
	}
}

func seed(ctx context.Context, fixture *service.Fixture, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(serviceName, cfg.LogLevel)

	application, err := app.New(ctx, cfg, log, serviceName)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer func() { _ = application.Close() }()

	result, err := application.Seed.Load(ctx, *fixture)
	if err != nil {
		return err
	}
	return json.NewEncoder(out).Encode(result)
}

func readFixture(path string) (*service.Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var f service.Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode fixture %s: %w", path, err)
	}
	return &f, nil
}
