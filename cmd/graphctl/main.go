// Command graphctl runs graph maintenance tasks against the configured store.
//
//	graphctl build <sentences.json>   build a graph from a file and print it
//	graphctl sync                     process newly captured sentences
//	graphctl rebuild                  rebuild the graph from every sentence
//	graphctl refresh <context>        rebuild one context
//	graphctl stats                    print the stored graph statistics
//	graphctl domains                  print sentence counts per context
//	graphctl clear [-all]             remove the stored graph
//	graphctl export                   copy the stored graph into Neo4j
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"fluent-backend/domain/graph"
	graphsvc "fluent-backend/domain/services"
	"fluent-backend/infrastructure/config"
	"fluent-backend/infrastructure/di"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "graphctl %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: graphctl <build|sync|rebuild|refresh|stats|domains|clear|export> [args]")
}

func run(ctx context.Context, command string, args []string, out io.Writer) error {
	if command == "build" {
		if len(args) != 1 {
			return errors.New("expected a sentences file")
		}
		return build(args[0], out)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	container, cleanup, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	switch command {
	case "sync":
		result, err := container.Sync.Sync(ctx)
		if err != nil {
			return err
		}
		return writeJSON(out, result)

	case "rebuild":
		result, err := container.Sync.Rebuild(ctx)
		if err != nil {
			return err
		}
		return writeJSON(out, result)

	case "refresh":
		if len(args) != 1 {
			return errors.New("expected a context")
		}
		result, err := container.Sync.RefreshContext(ctx, args[0])
		if err != nil {
			return err
		}
		return writeJSON(out, result)

	case "stats":
		data, err := container.Storage.GetGraphData(ctx)
		if err != nil {
			return err
		}
		if data == nil {
			data = graph.Empty()
		}
		return writeJSON(out, data.Stats)

	case "domains":
		sentences, err := container.Source.ListSentences(ctx)
		if err != nil {
			return err
		}
		return writeJSON(out, graphsvc.AvailableDomains(sentences))

	case "clear":
		fs := flag.NewFlagSet("clear", flag.ContinueOnError)
		all := fs.Bool("all", false, "also remove captured sentences")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return container.Sync.Clear(ctx, *all)

	case "export":
		if container.Exporter == nil {
			return errors.New("NEO4J_URI is not configured")
		}
		data, err := container.Storage.GetGraphData(ctx)
		if err != nil {
			return err
		}
		if data == nil {
			return errors.New("no stored graph")
		}
		if err := container.Exporter.Export(ctx, data); err != nil {
			return err
		}
		fmt.Fprintf(out, "exported %d nodes and %d edges\n", len(data.Nodes), len(data.Edges))
		return nil

	default:
		usage(out)
		return fmt.Errorf("unknown command %q", command)
	}
}

// build reads a JSON array of captured sentences and prints the graph built from them
func build(path string, out io.Writer) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var sentences []graph.CapturedSentence
	if err := json.Unmarshal(raw, &sentences); err != nil {
		return fmt.Errorf("invalid sentences file: %w", err)
	}
	return writeJSON(out, graphsvc.NewGraphProcessor(nil).ProcessSentencesIntoGraph(sentences))
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
