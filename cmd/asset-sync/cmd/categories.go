package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"go-asset-sync/internal/models"
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the catalog category tree",
	RunE:  runCategories,
}

func init() {
	rootCmd.AddCommand(categoriesCmd)
}

func runCategories(cmd *cobra.Command, args []string) error {
	client := newApiClient()
	resp := client.GetCategories()
	if !resp.OK {
		return fmt.Errorf("fetching categories: %s", resp.Error)
	}
	var categories models.CategoriesResponse
	if err := resp.Decode(&categories); err != nil {
		return fmt.Errorf("decoding categories: %w", err)
	}
	if len(categories.Payload) == 0 {
		fmt.Println("No categories available.")
		return nil
	}
	for _, cat := range categories.Payload {
		printCategory(cat, 0)
	}
	return nil
}

func printCategory(cat models.Category, depth int) {
	fmt.Printf("%s%s\n", strings.Repeat("  ", depth), cat.Name)
	for _, child := range cat.Children {
		printCategory(child, depth+1)
	}
}
