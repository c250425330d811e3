package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var timelineYear int

func timelineCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "timeline <politician-id>",
		Short: "Show the expense timeline of a politician",
		Args:  cobra.ExactArgs(1),
		RunE:  cmdTimeline,
	}
	c.Flags().IntVar(&timelineYear, "year", 0, "Select a year (0 shows every year)")
	return c
}

func cmdTimeline(cmd *cobra.Command, args []string) error {
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid politician id: %s", args[0])
	}

	setup(cpath)
	s := newService()
	defer s.Close() //nolint:errcheck

	ctx, cancel := signalContext()
	defer cancel()

	tl, err := s.ExpensesTimeline(ctx, id, timelineYear)
	if err != nil {
		return err
	}
	if tl.Err != nil {
		log.Warnw("showing cached data", "error", tl.Err, "fetched_at", tl.FetchedAt)
	}
	return printOut(tl)
}
