// Package main provides the entry point for the lightrag CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lightrag-go/lightrag/cmd/lightrag/commands"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lightrag",
		Short: "LightRAG document ingestion pipeline and task queue",
		Long: `LightRAG ingests text documents into a knowledge graph: documents are
chunked, enriched with embeddings and LLM-extracted entities/relations,
and merged into durable graph, vector, and key-value stores.

Commands:
  ingest    Enqueue documents and process the queue
  queue     Inspect and manage the task queue`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewIngestCommand())
	rootCmd.AddCommand(commands.NewQueueCommand())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
