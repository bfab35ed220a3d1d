package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/casapps/landregistry/src/pkg/client"
)

func newLandsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lands",
		Short: "Browse and register lands",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List lands",
		RunE: authed("/lands", func(ctx context.Context, r *remote, cmd *cobra.Command, args []string) error {
			q := landQuery(cmd)
			page, err := r.api.Lands(ctx, q)
			if err != nil {
				return err
			}
			printLands(cmd, page.Lands)
			fmt.Fprintf(cmd.OutOrStdout(), "page %d of %d (%d lands)\n", page.Page, page.Pages, page.Total)
			return nil
		}),
	}
	addLandQueryFlags(list)

	mine := &cobra.Command{
		Use:   "mine",
		Short: "List your lands",
		RunE: authed("/my-lands", func(ctx context.Context, r *remote, cmd *cobra.Command, args []string) error {
			lands, err := r.api.MyLands(ctx)
			if err != nil {
				return err
			}
			printLands(cmd, lands)
			return nil
		}),
	}

	show := &cobra.Command{
		Use:   "show <land-id>",
		Short: "Show one land",
		Args:  cobra.ExactArgs(1),
		RunE: authed("/lands", func(ctx context.Context, r *remote, cmd *cobra.Command, args []string) error {
			land, err := r.api.Land(ctx, args[0])
			if err != nil {
				return err
			}
			printLand(cmd, land)
			return nil
		}),
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Register a new land for review",
		RunE: authed("/lands", func(ctx context.Context, r *remote, cmd *cobra.Command, args []string) error {
			req, err := landRequest(cmd)
			if err != nil {
				return err
			}
			land, err := r.api.CreateLand(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s), status %s\n", land.PropertyID, land.ID, land.Status)
			return nil
		}),
	}
	create.Flags().String("property-id", "", "unique property identifier")
	create.Flags().String("title", "", "title")
	create.Flags().String("description", "", "description")
	create.Flags().String("location", "", "address or description of the location")
	create.Flags().Float64("area", 0, "area in square metres")
	create.Flags().String("type", "residential", "residential, commercial or agricultural")
	create.Flags().String("price", "", "asking price")
	create.Flags().String("coordinates", "", "latitude,longitude")
	for _, name := range []string{"property-id", "title", "location", "area"} {
		_ = create.MarkFlagRequired(name)
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show registry statistics",
		RunE: authed("/lands", func(ctx context.Context, r *remote, cmd *cobra.Command, args []string) error {
			s, err := r.api.Statistics(ctx)
			if err != nil {
				return err
			}
			w := table(cmd)
			fmt.Fprintf(w, "Total:\t%d\nPending:\t%d\nVerified:\t%d\nRejected:\t%d\nOn chain:\t%d\n",
				s.TotalLands, s.PendingLands, s.VerifiedLands, s.RejectedLands, s.BlockchainLands)
			fmt.Fprintf(w, "Total area:\t%.2f\nTotal value:\t%s\n", s.TotalArea, s.TotalValue.StringFixed(2))
			for kind, n := range s.ByPropertyType {
				fmt.Fprintf(w, "  %s:\t%d\n", kind, n)
			}
			return w.Flush()
		}),
	}

	mapCmd := &cobra.Command{
		Use:   "map [south,west,north,east]",
		Short: "List lands with coordinates",
		Args:  cobra.MaximumNArgs(1),
		RunE: authed("/map", func(ctx context.Context, r *remote, cmd *cobra.Command, args []string) error {
			var bounds *client.Bounds
			if len(args) == 1 {
				b, err := parseBounds(args[0])
				if err != nil {
					return err
				}
				bounds = b
			}
			lands, err := r.api.MapData(ctx, bounds)
			if err != nil {
				return err
			}
			w := table(cmd)
			fmt.Fprintln(w, "PROPERTY\tTITLE\tLAT\tLNG\tSTATUS")
			for _, l := range lands {
				fmt.Fprintf(w, "%s\t%s\t%.5f\t%.5f\t%s\n", l.PropertyID, l.Title, *l.Latitude, *l.Longitude, l.Status)
			}
			return w.Flush()
		}),
	}

	cmd.AddCommand(list, mine, show, create, stats, mapCmd)
	return cmd
}

func addLandQueryFlags(cmd *cobra.Command) {
	cmd.Flags().String("search", "", "search title, location and property id")
	cmd.Flags().String("status", "", "pending, verified or rejected")
	cmd.Flags().String("type", "", "property type")
	cmd.Flags().Int("page", 1, "page")
	cmd.Flags().Int("per-page", 20, "results per page")
}

func landQuery(cmd *cobra.Command) client.LandQuery {
	var q client.LandQuery
	q.Search, _ = cmd.Flags().GetString("search")
	q.Status, _ = cmd.Flags().GetString("status")
	q.PropertyType, _ = cmd.Flags().GetString("type")
	q.Page, _ = cmd.Flags().GetInt("page")
	q.PerPage, _ = cmd.Flags().GetInt("per-page")
	return q
}

func landRequest(cmd *cobra.Command) (client.LandRequest, error) {
	var req client.LandRequest
	req.PropertyID, _ = cmd.Flags().GetString("property-id")
	req.Title, _ = cmd.Flags().GetString("title")
	req.Description, _ = cmd.Flags().GetString("description")
	req.Location, _ = cmd.Flags().GetString("location")
	req.Area, _ = cmd.Flags().GetFloat64("area")
	req.PropertyType, _ = cmd.Flags().GetString("type")

	if raw, _ := cmd.Flags().GetString("price"); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return req, fmt.Errorf("invalid price %q", raw)
		}
		req.Price = &price
	}
	if raw, _ := cmd.Flags().GetString("coordinates"); raw != "" {
		parts := strings.Split(raw, ",")
		if len(parts) != 2 {
			return req, fmt.Errorf("coordinates must be latitude,longitude")
		}
		lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err1 != nil || err2 != nil {
			return req, fmt.Errorf("coordinates must be numeric")
		}
		req.Latitude, req.Longitude = &lat, &lng
	}
	return req, nil
}

func parseBounds(raw string) (*client.Bounds, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bounds must be south,west,north,east")
	}
	v := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("bounds must be numeric")
		}
		v[i] = f
	}
	return &client.Bounds{South: v[0], West: v[1], North: v[2], East: v[3]}, nil
}

func formatPrice(p decimal.NullDecimal) string {
	if !p.Valid {
		return "-"
	}
	return p.Decimal.StringFixed(2)
}

func printLands(cmd *cobra.Command, lands []client.Land) {
	w := table(cmd)
	fmt.Fprintln(w, "ID\tPROPERTY\tTITLE\tTYPE\tSTATUS\tON CHAIN\tOWNER\tPRICE")
	for _, l := range lands {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
			l.ID, l.PropertyID, l.Title, l.PropertyType, l.Status, l.IsRegisteredOnBlockchain, l.OwnerUsername, formatPrice(l.Price))
	}
	_ = w.Flush()
}

func printLand(cmd *cobra.Command, l *client.Land) {
	w := table(cmd)
	fmt.Fprintf(w, "ID:\t%s\n", l.ID)
	fmt.Fprintf(w, "Property:\t%s\n", l.PropertyID)
	fmt.Fprintf(w, "Title:\t%s\n", l.Title)
	fmt.Fprintf(w, "Location:\t%s\n", l.Location)
	fmt.Fprintf(w, "Area:\t%.2f\n", l.Area)
	fmt.Fprintf(w, "Type:\t%s\n", l.PropertyType)
	fmt.Fprintf(w, "Price:\t%s\n", formatPrice(l.Price))
	fmt.Fprintf(w, "Status:\t%s\n", l.Status)
	fmt.Fprintf(w, "Owner:\t%s\n", l.OwnerUsername)
	fmt.Fprintf(w, "Token:\t%s\n", deref(l.TokenID))
	fmt.Fprintf(w, "Tx hash:\t%s\n", deref(l.BlockchainTxHash))
	if l.ReviewComments != "" {
		fmt.Fprintf(w, "Review:\t%s\n", l.ReviewComments)
	}
	_ = w.Flush()
}
