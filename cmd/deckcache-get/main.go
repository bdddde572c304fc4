package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Amund211/deckcache/internal/adapters/fetcher"
	"github.com/Amund211/deckcache/internal/adapters/store"
	"github.com/Amund211/deckcache/internal/app"
	"github.com/Amund211/deckcache/internal/domain"
	"github.com/Amund211/deckcache/internal/events"
	"github.com/Amund211/deckcache/internal/inflight"
	"github.com/Amund211/deckcache/internal/logging"
	"github.com/Amund211/deckcache/internal/swr"
)

type output struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

type options struct {
	storePath string
	baseURL   string
	staleTime time.Duration
	maxAge    time.Duration
	token     string
	mutate    string
}

// waitIdle blocks until no revalidation is running on h
func waitIdle(ctx context.Context, h *swr.Handle[json.RawMessage]) error {
	updates, unsubscribe := h.IsValidating().Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case validating, ok := <-updates:
			if !ok || !validating {
				return nil
			}
		}
	}
}

func run(cmd *cobra.Command, path string, opts options) error {
	ctx := cmd.Context()

	kind, err := app.ParseResourcePath(path)
	if err != nil {
		return err
	}
	if opts.mutate != "" && !json.Valid([]byte(opts.mutate)) {
		return fmt.Errorf("%w: --mutate is not valid json", domain.ErrInvalidBody)
	}

	pebbleStore, err := store.OpenPebble(opts.storePath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer pebbleStore.Close()

	httpClient := &http.Client{Timeout: 10 * time.Second}
	client := swr.NewClient(
		pebbleStore,
		fetcher.NewHTTP(httpClient, opts.token),
		inflight.NewTracker[json.RawMessage](),
		events.NewBus(),
		time.Now,
	)

	policyOptions := []swr.PolicyOption{swr.WithResourceKind(kind)}
	if cmd.Flags().Changed("stale-time") {
		policyOptions = append(policyOptions, swr.WithStaleTime(opts.staleTime))
	}
	if cmd.Flags().Changed("max-age") {
		policyOptions = append(policyOptions, swr.WithMaxAge(opts.maxAge))
	}

	url := strings.TrimSuffix(opts.baseURL, "/") + path
	h := swr.Use[json.RawMessage](ctx, client, url, domain.Request{}, policyOptions...)
	defer h.Close()

	if opts.mutate != "" {
		value := json.RawMessage(opts.mutate)
		h.Mutate(ctx, &value)
	}

	// Let a background revalidation finish writing to the store before exiting
	waitCtx, cancel := context.WithTimeout(ctx, 2*httpClient.Timeout)
	defer cancel()
	if err := waitIdle(waitCtx, h); err != nil {
		return fmt.Errorf("revalidation did not finish: %w", err)
	}

	result := output{}
	if data, ok := h.Data().Get(); ok {
		result.Data = data
	}
	if err, _ := h.Err().Get(); err != nil {
		result.Error = err.Error()
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))

	return nil
}

func newRootCommand() *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:   "deckcache-get <path>",
		Short: "Read an upstream resource through the local cache",
		Long: `Read an upstream resource through a stale-while-revalidate cache kept on disk.

Fresh entries are served without a network call. Stale entries are served and
revalidated before the command exits.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.storePath, "store", ".deckcache", "directory of the on-disk store")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "http://localhost:5173", "upstream base url")
	cmd.Flags().DurationVar(&opts.staleTime, "stale-time", swr.DefaultStaleTime, "override the stale time of the resource kind")
	cmd.Flags().DurationVar(&opts.maxAge, "max-age", swr.DefaultMaxAge, "override the max age of the resource kind")
	cmd.Flags().StringVar(&opts.token, "token", os.Getenv("UPSTREAM_TOKEN"), "bearer token for the upstream")
	cmd.Flags().StringVar(&opts.mutate, "mutate", "", "json value to write through instead of reading")

	return cmd
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := logging.AddToContext(context.Background(), logger)

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
