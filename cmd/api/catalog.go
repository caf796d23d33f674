package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/askcart-ai/assistant/internal/catalog"
	"github.com/askcart-ai/assistant/internal/config"
	"github.com/askcart-ai/assistant/internal/model"
	"github.com/askcart-ai/assistant/internal/store"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the SQLite product catalog",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import products from a YAML file into the SQLite catalog",
	Long: `Reads a YAML file with a top-level "products" list and upserts every
entry into the catalog at SQLITE_PATH. Products without an id get a new one.
HTML in descriptions is reduced to plain text.`,
	Args: cobra.ExactArgs(1),
	RunE: runCatalogImport,
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the SQLite catalog",
	Args:  cobra.NoArgs,
	RunE:  runCatalogList,
}

func init() {
	catalogCmd.AddCommand(catalogImportCmd)
	catalogCmd.AddCommand(catalogListCmd)
}

func openCatalog() (*store.SQLiteStore, *catalog.SQLiteCatalog, error) {
	cfg := config.Load()

	st, err := store.OpenSQLite(cfg.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	cat, err := catalog.NewSQLiteCatalog(st.DB())
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return st, cat, nil
}

func runCatalogImport(cmd *cobra.Command, args []string) error {
	products, err := catalog.LoadFile(args[0])
	if err != nil {
		return err
	}

	st, cat, err := openCatalog()
	if err != nil {
		return err
	}
	defer st.Close()

	saved, err := cat.Upsert(cmd.Context(), products)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d products into %s\n", len(saved), st.Path())
	return nil
}

func runCatalogList(cmd *cobra.Command, args []string) error {
	st, cat, err := openCatalog()
	if err != nil {
		return err
	}
	defer st.Close()

	products, err := cat.List(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, p := range products {
		fmt.Fprintf(out, "%s\t%s\t%s\n", p.ID, p.Name, model.FormatPrice(p.Price))
	}
	return nil
}
