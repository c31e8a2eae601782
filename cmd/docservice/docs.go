package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperengineering/docservice/internal/document"
	"github.com/hyperengineering/docservice/internal/filter"
	"github.com/hyperengineering/docservice/internal/service"
	"github.com/spf13/cobra"
)

var (
	queryJSON  string
	dataJSON   string
	findSort   string
	findSelect string
	findLimit  int64
	findSkip   int64
)

var findCmd = &cobra.Command{
	Use:   "find <service>",
	Short: "Find documents",
	Long:  "Find documents matching --query. $sort, $limit, $skip and $select in the query (or the matching flags) shape the result.",
	Args:  cobra.ExactArgs(1),
	RunE:  runFind,
}

var getCmd = &cobra.Command{
	Use:   "get <service> <id>",
	Short: "Get one document by id",
	Args:  cobra.ExactArgs(2),
	RunE:  runGet,
}

var createCmd = &cobra.Command{
	Use:   "create <service>",
	Short: "Create a document from --data or stdin",
	Args:  cobra.ExactArgs(1),
	RunE:  runCreate,
}

var updateCmd = &cobra.Command{
	Use:   "update <service> <id>",
	Short: "Update the top-level fields of a document from --data or stdin",
	Args:  cobra.ExactArgs(2),
	RunE:  runUpdate,
}

var removeCmd = &cobra.Command{
	Use:   "remove <service> <id>",
	Short: "Remove a document and print it",
	Args:  cobra.ExactArgs(2),
	RunE:  runRemove,
}

func init() {
	findCmd.Flags().StringVar(&queryJSON, "query", "",
		"Query conditions as a JSON object")
	for _, c := range []*cobra.Command{createCmd, updateCmd} {
		c.Flags().StringVar(&dataJSON, "data", "",
			"Document as a JSON object (read from stdin when omitted)")
	}

	findCmd.Flags().StringVar(&findSort, "sort", "",
		`Sort specification, e.g. "name -age"`)
	findCmd.Flags().StringVar(&findSelect, "select", "",
		`Projection, e.g. "name email" or "-password"`)
	findCmd.Flags().Int64Var(&findLimit, "limit", 0,
		"Maximum number of documents")
	findCmd.Flags().Int64Var(&findSkip, "skip", 0,
		"Number of documents to skip")
}

// serviceCall opens the runtime, resolves the named service and runs fn
// against it, printing the result as JSON.
func serviceCall(cmd *cobra.Command, name string, fn func(ctx context.Context, svc service.CRUD) (any, error)) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	svc, err := rt.app.Service(name)
	if err != nil {
		return err
	}

	result, err := fn(ctx, svc)
	if err != nil {
		return fmt.Errorf("%s %s: %w", cmd.Name(), name, err)
	}
	if docs, ok := result.([]document.Document); ok && docs == nil {
		result = []document.Document{}
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func runFind(cmd *cobra.Command, args []string) error {
	params, err := queryParams()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("sort") {
		params.Query[filter.DirectiveSort] = findSort
	}
	if flags.Changed("select") {
		params.Query[filter.DirectiveSelect] = findSelect
	}
	if flags.Changed("limit") {
		params.Query[filter.DirectiveLimit] = findLimit
	}
	if flags.Changed("skip") {
		params.Query[filter.DirectiveSkip] = findSkip
	}

	return serviceCall(cmd, args[0], func(ctx context.Context, svc service.CRUD) (any, error) {
		return svc.Find(ctx, params)
	})
}

func runGet(cmd *cobra.Command, args []string) error {
	return serviceCall(cmd, args[0], func(ctx context.Context, svc service.CRUD) (any, error) {
		return svc.Get(ctx, args[1], &filter.Params{})
	})
}

func runCreate(cmd *cobra.Command, args []string) error {
	data, err := readData(cmd.InOrStdin())
	if err != nil {
		return err
	}
	return serviceCall(cmd, args[0], func(ctx context.Context, svc service.CRUD) (any, error) {
		return svc.Create(ctx, data, &filter.Params{})
	})
}

func runUpdate(cmd *cobra.Command, args []string) error {
	data, err := readData(cmd.InOrStdin())
	if err != nil {
		return err
	}
	return serviceCall(cmd, args[0], func(ctx context.Context, svc service.CRUD) (any, error) {
		return svc.Update(ctx, args[1], data, &filter.Params{})
	})
}

func runRemove(cmd *cobra.Command, args []string) error {
	return serviceCall(cmd, args[0], func(ctx context.Context, svc service.CRUD) (any, error) {
		return svc.Remove(ctx, args[1], &filter.Params{})
	})
}

// queryParams parses --query into call params.
func queryParams() (*filter.Params, error) {
	params := &filter.Params{Query: map[string]any{}}
	if strings.TrimSpace(queryJSON) == "" {
		return params, nil
	}
	if err := json.Unmarshal([]byte(queryJSON), &params.Query); err != nil {
		return nil, fmt.Errorf("parse --query: %w", err)
	}
	if params.Query == nil {
		return nil, fmt.Errorf("parse --query: expected a JSON object")
	}
	return params, nil
}

// readData parses --data, or stdin when the flag is empty, as one document.
func readData(stdin io.Reader) (document.Document, error) {
	raw := []byte(dataJSON)
	if strings.TrimSpace(dataJSON) == "" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		raw = b
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, fmt.Errorf("no document given: use --data or pipe JSON on stdin")
	}

	var data document.Document
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("parse document: expected a JSON object")
	}
	return data, nil
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
