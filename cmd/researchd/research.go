package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/store"
)

func researchCMD() *cobra.Command {
	var cfgPath string
	var noRAG bool
	var kWeb, kDocs int
	var save bool
	var asJSON bool

	var research = &cobra.Command{
		Use:   "research [query]",
		Short: "Run the research pipeline once and print the answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if kWeb <= 0 {
				kWeb = cfg.Retrieval.WebResults
			}
			if kDocs <= 0 {
				kDocs = cfg.Retrieval.DocResults
			}

			orch, _, err := buildOrchestrator(cfg)
			if err != nil {
				return err
			}

			ctx := context.Background()
			state, runErr := orch.Run(ctx, args[0], !noRAG, kWeb, kDocs)

			if save {
				st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
				if err != nil {
					fmt.Fprintf(os.Stderr, "warning: result not persisted: %v\n", err)
				} else {
					meta := map[string]interface{}{"use_rag": !noRAG, "k_web": kWeb, "k_docs": kDocs}
					if err := st.Save(ctx, state, meta); err != nil {
						fmt.Fprintf(os.Stderr, "warning: result not persisted: %v\n", err)
					}
					_ = st.Close()
				}
			}

			if asJSON {
				out, err := json.MarshalIndent(state, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return runErr
			}
			if runErr != nil {
				return runErr
			}
			fmt.Println(state.FinalAnswer)
			return nil
		},
	}
	research.Flags().BoolVar(&noRAG, "no-rag", false, "skip the document store during retrieval")
	research.Flags().IntVar(&kWeb, "k-web", 0, "web results to retrieve (default from config)")
	research.Flags().IntVar(&kDocs, "k-docs", 0, "document chunks to retrieve (default from config)")
	research.Flags().BoolVar(&save, "save", false, "persist the run to postgres")
	research.Flags().BoolVar(&asJSON, "json", false, "print the full run state as json")
	research.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return research
}
