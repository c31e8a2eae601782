package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var servicesJSONOutput bool

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "List the configured services",
	Args:  cobra.NoArgs,
	RunE:  runServices,
}

func init() {
	servicesCmd.Flags().BoolVar(&servicesJSONOutput, "json", false,
		"Output in JSON format")
}

func runServices(cmd *cobra.Command, args []string) error {
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

	names := rt.app.Names()

	if servicesJSONOutput {
		items := make([]map[string]any, 0, len(names))
		for _, name := range names {
			sc, _ := cfg.Service(name)
			unique := sc.Unique
			if unique == nil {
				unique = []string{}
			}
			items = append(items, map[string]any{
				"name":       name,
				"collection": sc.CollectionName(),
				"virtual_id": sc.VirtualID,
				"rename_id":  sc.RenameID,
				"unique":     unique,
			})
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"driver":   cfg.Database.Driver,
			"services": items,
			"total":    len(items),
		})
	}

	if len(names) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No services configured.")
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "NAME\tCOLLECTION\tVIRTUAL ID\tUNIQUE")
	for _, name := range names {
		sc, _ := cfg.Service(name)
		unique := strings.Join(sc.Unique, ",")
		if unique == "" {
			unique = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", name, sc.CollectionName(), sc.VirtualID, unique)
	}
	w.Flush()

	return nil
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}
