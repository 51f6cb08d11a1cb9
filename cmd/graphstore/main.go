// Command graphstore works a local content-addressed document store
// from the shell: store a JSON document as an encrypted node graph,
// read it back linked or resolved, and edit it path by path. Documents
// travel as JSON on stdin and stdout; the store location and the
// encryption keys come from a YAML config file.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/evannetwork/graphstore"
	"github.com/evannetwork/graphstore/pkg/contentstore"
	"github.com/evannetwork/graphstore/pkg/envelope"
	"github.com/evannetwork/graphstore/pkg/graph"
)

func main() {
	cmd := &cli.Command{
		Name:  "graphstore",
		Usage: "store and edit encrypted content-addressed document graphs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config file",
				Value:   "graphstore.yaml",
				Sources: cli.EnvVars("GRAPHSTORE_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "store",
				Usage:     "store a JSON document from stdin, print the root address",
				Action:    runStore,
				ArgsUsage: " ",
			},
			{
				Name:      "get",
				Usage:     "print the node at PATH of the document at REF",
				ArgsUsage: "REF [PATH]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "resolved",
						Usage: "recursively resolve link boundaries",
					},
					&cli.IntFlag{
						Name:  "depth",
						Usage: "resolution depth (0 = configured default)",
					},
				},
				Action: runGet,
			},
			{
				Name:      "set",
				Usage:     "attach the JSON value from stdin at PATH, print the new root",
				ArgsUsage: "REF PATH",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "inline",
						Usage: "inline the value instead of creating a link boundary",
					},
					&cli.StringFlag{
						Name:  "algorithm",
						Usage: "seal the new boundary with this algorithm",
					},
					&cli.StringFlag{
						Name:  "origin",
						Usage: "seal the new boundary under this origin's key",
					},
				},
				Action: runSet,
			},
			{
				Name:      "remove",
				Usage:     "remove the node at PATH, print the new root",
				ArgsUsage: "REF PATH",
				Action:    runRemove,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logrus.WithError(err).Error("graphstore failed")
		os.Exit(1)
	}
}

// openStore builds the store described by the config file. The caller
// must close the returned backend.
func openStore(cmd *cli.Command) (*graphstore.Store, *contentstore.BadgerStore, error) {
	conf, err := loadConfig(cmd.String("config"))
	if err != nil {
		return nil, nil, err
	}

	log := logrus.New()
	backend, err := contentstore.NewBadgerStore(contentstore.StoreConfig{
		Path:   conf.Store,
		Logger: log,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open store at %s: %w", conf.Store, err)
	}

	store, err := graphstore.New(backend, conf.ring(), graphstore.Config{
		DefaultCryptoInfo: conf.defaultInfo(),
		Logger:            log,
	})
	if err != nil {
		backend.Close()
		return nil, nil, err
	}
	return store, backend, nil
}

func runStore(ctx context.Context, cmd *cli.Command) error {
	store, backend, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer backend.Close()

	value, err := readJSON(os.Stdin)
	if err != nil {
		return err
	}

	receipt, err := store.Store(ctx, value)
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, map[string]any{
		"root":    receipt.Root.String(),
		"written": hashStrings(receipt),
	})
}

func runGet(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() < 1 {
		return fmt.Errorf("get needs a document reference")
	}
	ref := cmd.Args().Get(0)
	path := cmd.Args().Get(1)

	store, backend, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer backend.Close()

	var node any
	if cmd.Bool("resolved") {
		node, err = store.GetResolvedGraph(ctx, ref, path, int(cmd.Int("depth")))
	} else {
		node, err = store.GetLinkedGraph(ctx, ref, path)
	}
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, displayValue(node))
}

func runSet(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() < 2 {
		return fmt.Errorf("set needs a document reference and a path")
	}
	ref := cmd.Args().Get(0)
	path := cmd.Args().Get(1)

	store, backend, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer backend.Close()

	value, err := readJSON(os.Stdin)
	if err != nil {
		return err
	}

	opts := graph.MutationOptions{InlineAsPlainObject: cmd.Bool("inline")}
	if algo := cmd.String("algorithm"); algo != "" || cmd.String("origin") != "" {
		if algo == "" {
			algo = envelope.AlgoAESGCM
		}
		opts.CryptoInfo = &envelope.CryptoInfo{
			Algorithm: algo,
			Origin:    cmd.String("origin"),
		}
	}

	tree, err := store.Set(ctx, ref, path, value, opts)
	if err != nil {
		return err
	}
	return commit(ctx, store, tree)
}

func runRemove(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() < 2 {
		return fmt.Errorf("remove needs a document reference and a path")
	}

	store, backend, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer backend.Close()

	tree, err := store.Remove(ctx, cmd.Args().Get(0), cmd.Args().Get(1))
	if err != nil {
		return err
	}
	return commit(ctx, store, tree)
}

func commit(ctx context.Context, store *graphstore.Store, tree any) error {
	receipt, err := store.Store(ctx, tree)
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, map[string]any{
		"root":    receipt.Root.String(),
		"written": hashStrings(receipt),
	})
}

func hashStrings(receipt graphstore.Receipt) []string {
	out := make([]string, len(receipt.Written))
	for i, h := range receipt.Written {
		out[i] = h.String()
	}
	return out
}

// displayValue rewrites unresolved link boundaries into a JSON-able
// form, since a linked view may contain *graph.Link values.
func displayValue(v any) any {
	switch node := v.(type) {
	case *graph.Link:
		return map[string]any{"@link": "0x" + node.Hash.String()}
	case map[string]any:
		out := make(map[string]any, len(node))
		for k, child := range node {
			out[k] = displayValue(child)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, child := range node {
			out[i] = displayValue(child)
		}
		return out
	default:
		return v
	}
}

func readJSON(r io.Reader) (any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read value: %w", err)
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("parse value: %w", err)
	}
	return value, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
