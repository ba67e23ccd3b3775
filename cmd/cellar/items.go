package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cellar/internal/client"
	"cellar/internal/config"
	"cellar/internal/item"
)

// addCmd creates an item
var addCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add an item to the cellar",
	Long: `Adds a named item. Multiple arguments are joined with spaces, so
quoting is optional:

  cellar add Vintage Port
  cellar add "Vintage Port"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

// listCmd lists all items
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List items, newest first",
	RunE:  runList,
}

// rmCmd deletes an item
var rmCmd = &cobra.Command{
	Use:   "rm [id]",
	Short: "Delete an item (the age gate applies)",
	Args:  cobra.ExactArgs(1),
	RunE:  runRm,
}

// statusCmd reports server health
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	RunE:  runStatus,
}

func apiContext(cfg *config.Config) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), cfg.GetClientTimeout())
}

func runAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	name := strings.Join(args, " ")

	ctx, cancel := apiContext(cfg)
	defer cancel()

	api := newAPIClient(cfg)
	created, err := api.Create(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to add item: %w", err)
	}

	logger.Debug("Item created", zap.Int64("id", created.ID), zap.String("name", created.Name))
	fmt.Printf("Added #%d %q\n", created.ID, created.Name)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := apiContext(cfg)
	defer cancel()

	api := newAPIClient(cfg)
	items, err := api.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list items: %w", err)
	}

	if len(items) == 0 {
		fmt.Println("The cellar is empty.")
		return nil
	}

	now := time.Now()
	for _, it := range items {
		ageText := "age unknown"
		gate := "locked"
		if created, parseErr := it.CreatedTime(); parseErr == nil {
			age := item.AgeDays(created, now)
			ageText = fmt.Sprintf("%.1f days", age)
			if item.WholeDays(age) >= cfg.Store.MinAgeDays {
				gate = "deletable"
			}
		}
		fmt.Printf("%5d  %-30s  %s (%s)\n", it.ID, it.Name, ageText, gate)
	}
	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid item id %q", args[0])
	}

	ctx, cancel := apiContext(cfg)
	defer cancel()

	api := newAPIClient(cfg)
	if err := api.Delete(ctx, id); err != nil {
		var apiErr *client.APIError
		switch {
		case client.IsAgeRestricted(err):
			if errors.As(err, &apiErr) && apiErr.ItemAge != nil {
				return fmt.Errorf("item #%d must rest at least %d full days (currently %d)",
					id, cfg.Store.MinAgeDays, item.WholeDays(*apiErr.ItemAge))
			}
			return fmt.Errorf("item #%d is too new to delete", id)
		case client.IsNotFound(err):
			return fmt.Errorf("item #%d not found", id)
		default:
			return fmt.Errorf("failed to delete item: %w", err)
		}
	}

	fmt.Printf("Deleted #%d\n", id)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := apiContext(cfg)
	defer cancel()

	api := newAPIClient(cfg)
	health, err := api.Health(ctx)
	if err != nil {
		return fmt.Errorf("server unreachable at %s: %w", cfg.Client.BaseURL, err)
	}

	fmt.Printf("Server:  %s (%s)\n", cfg.Client.BaseURL, health.Status)
	fmt.Printf("Items:   %d\n", health.Items)
	fmt.Printf("Age gate: %d days\n", cfg.Store.MinAgeDays)
	return nil
}
