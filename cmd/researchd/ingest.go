package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/provider"
	"github.com/mohammad-safakhou/deepresearch/tools/web_fetch"
)

func ingestCMD() *cobra.Command {
	var cfgPath string
	var docID string
	var fromURL bool

	var ingest = &cobra.Command{
		Use:   "ingest [file-or-url ...]",
		Short: "Add documents to the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if cfg.Docstore.SnapshotPath == "" {
				return fmt.Errorf("docstore.snapshot_path must be configured so ingested documents survive the process")
			}
			llm, err := provider.NewProvider(cfg.LLM)
			if err != nil {
				return err
			}
			docs, err := buildDocstore(cfg, llm)
			if err != nil {
				return err
			}
			if docID != "" && len(args) > 1 {
				return fmt.Errorf("--id only makes sense with a single source")
			}

			ctx := context.Background()
			for _, arg := range args {
				id := docID
				var text string
				if fromURL || strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
					fetcher, err := web_fetch.NewWebFetcher(web_fetch.FetcherType(cfg.Retrieval.Fetcher), cfg.Retrieval.FetchTimeout, 0)
					if err != nil {
						return err
					}
					page, err := fetcher.Exec(ctx, arg)
					if err != nil {
						return fmt.Errorf("fetching %s: %w", arg, err)
					}
					text = page.Text
					if id == "" {
						id = arg
					}
				} else {
					raw, err := os.ReadFile(arg)
					if err != nil {
						return err
					}
					text = string(raw)
					if id == "" {
						id = filepath.Base(arg)
					}
				}
				chunks, err := docs.Ingest(ctx, id, text)
				if err != nil {
					return fmt.Errorf("ingesting %s: %w", arg, err)
				}
				fmt.Printf("%s: %d chunks\n", id, chunks)
			}
			return docs.SaveFile(cfg.Docstore.SnapshotPath)
		},
	}
	ingest.Flags().StringVar(&docID, "id", "", "document id (defaults to filename or url)")
	ingest.Flags().BoolVar(&fromURL, "url", false, "treat arguments as urls")
	ingest.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return ingest
}
