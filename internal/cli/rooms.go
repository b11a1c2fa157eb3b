package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/dkeye/Roulette/internal/client/roomapi"
	"github.com/dkeye/Roulette/internal/domain"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List rooms waiting for a partner",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		api, err := roomapi.New(cfg.ServerURL, cfg.Timeout)
		if err != nil {
			return err
		}
		id := clientID(cfg.ClientID)
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
		defer cancel()
		rooms, err := api.Search(ctx, id)
		if err != nil {
			return err
		}
		if len(rooms) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), MutedStyle.Render("no rooms are waiting"))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), roomsTable(rooms))
		return nil
	},
}

func roomsTable(rooms []domain.Room) string {
	t := table.New().Headers("ROOM", "STATUS", "MEMBERS")
	for _, r := range rooms {
		t.Row(string(r.ID), string(r.Status), strconv.Itoa(r.Size()))
	}
	return t.Render()
}

func clientID(configured string) domain.ClientID {
	if id, err := domain.ParseClientID(configured); err == nil {
		return id
	}
	return domain.NewClientID()
}
