package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/cli"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage expense categories",
		Long:  `List, add, update, and deactivate the categories expenses are filed under.`,
	}

	cmd.AddCommand(listCategoriesCmd())
	cmd.AddCommand(addCategoryCmd())
	cmd.AddCommand(updateCategoryCmd())
	cmd.AddCommand(deactivateCategoryCmd())

	return cmd
}

func listCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, _, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			categories, err := store.GetCategories(ctx)
			if err != nil {
				return fmt.Errorf("loading categories: %w", err)
			}
			if len(categories) == 0 {
				fmt.Println(cli.FormatInfo("No categories yet. Use 'boleta categories add' to create one."))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION")
			fmt.Fprintln(w, "──\t────\t───────────")

			for _, cat := range categories {
				desc := cat.Description
				if desc == "" {
					desc = cli.SubtleStyle.Render("(no description)")
				}
				fmt.Fprintf(w, "%d\t%s\t%s\n", cat.ID, cat.Name, desc)
			}

			return w.Flush()
		},
	}
}

func addCategoryCmd() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a new category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name := args[0]

			store, _, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			existing, err := store.GetCategoryByName(ctx, name)
			if err != nil {
				return fmt.Errorf("checking existing category: %w", err)
			}
			if existing != nil {
				return fmt.Errorf("category %q already exists", name)
			}

			category, err := store.CreateCategory(ctx, name, description)
			if err != nil {
				return fmt.Errorf("creating category: %w", err)
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Created category %q (ID: %d)", category.Name, category.ID)))
			return nil
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "Category description")

	return cmd
}

func updateCategoryCmd() *cobra.Command {
	var (
		name        string
		description string
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid category ID: %w", err)
			}
			if name == "" && description == "" {
				return fmt.Errorf("must specify --name or --description to update")
			}

			store, _, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			categories, err := store.GetCategories(ctx)
			if err != nil {
				return fmt.Errorf("loading categories: %w", err)
			}

			var current *model.Category
			for i := range categories {
				if categories[i].ID == id {
					current = &categories[i]
					break
				}
			}
			if current == nil {
				return fmt.Errorf("category with ID %d not found", id)
			}

			if name == "" {
				name = current.Name
			}
			if description == "" {
				description = current.Description
			}

			if err := store.UpdateCategory(ctx, id, name, description); err != nil {
				return fmt.Errorf("updating category: %w", err)
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Updated category %d", id)))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "New category name")
	cmd.Flags().StringVar(&description, "description", "", "New category description")

	return cmd
}

func deactivateCategoryCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "deactivate <id>",
		Short: "Deactivate a category",
		Long: `Hide a category from new scans. Expenses already filed under it keep
their category.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid category ID: %w", err)
			}

			store, _, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if !force {
				fmt.Printf("Deactivate category %d? (y/N): ", id)
				var response string
				fmt.Scanln(&response)
				if strings.ToLower(response) != "y" {
					fmt.Println("Canceled.")
					return nil
				}
			}

			if err := store.DeactivateCategory(ctx, id); err != nil {
				return fmt.Errorf("deactivating category: %w", err)
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Deactivated category %d", id)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip confirmation prompt")

	return cmd
}
