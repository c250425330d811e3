package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/WrongProvider/quemVota-sub000/serv"
	"github.com/spf13/cobra"
)

// resource reads one resource given its positional arguments.
type resource struct {
	usage string
	args  int // required arguments, an optional year may follow
	year  bool
	get   func(ctx context.Context, s *serv.Service, id, year int) (any, error)
}

var resources = map[string]resource{
	"politician": {usage: "politician <id>", args: 1,
		get: func(ctx context.Context, s *serv.Service, id, _ int) (any, error) {
			return s.Politician(ctx, id)
		}},
	"stats": {usage: "stats <id> [year]", args: 1, year: true,
		get: func(ctx context.Context, s *serv.Service, id, year int) (any, error) {
			return s.Stats(ctx, id, year)
		}},
	"performance": {usage: "performance <id> [year]", args: 1, year: true,
		get: func(ctx context.Context, s *serv.Service, id, year int) (any, error) {
			return s.Performance(ctx, id, year)
		}},
	"history": {usage: "history <id>", args: 1,
		get: func(ctx context.Context, s *serv.Service, id, _ int) (any, error) {
			return s.Timeline(ctx, id)
		}},
	"votes": {usage: "votes <id>", args: 1,
		get: func(ctx context.Context, s *serv.Service, id, _ int) (any, error) {
			return s.Votes(ctx, id)
		}},
	"proposal": {usage: "proposal <id>", args: 1,
		get: func(ctx context.Context, s *serv.Service, id, _ int) (any, error) {
			return s.Proposal(ctx, id)
		}},
	"proposal-votings": {usage: "proposal-votings <id>", args: 1,
		get: func(ctx context.Context, s *serv.Service, id, _ int) (any, error) {
			return s.ProposalVotings(ctx, id)
		}},
	"voting": {usage: "voting <id>", args: 1,
		get: func(ctx context.Context, s *serv.Service, id, _ int) (any, error) {
			return s.Voting(ctx, id)
		}},
	"performance-ranking": {usage: "performance-ranking",
		get: func(ctx context.Context, s *serv.Service, _, _ int) (any, error) {
			return s.PerformanceRanking(ctx)
		}},
	"overall-stats": {usage: "overall-stats",
		get: func(ctx context.Context, s *serv.Service, _, _ int) (any, error) {
			return s.OverallStats(ctx)
		}},
}

func getCmd() *cobra.Command {
	names := make([]string, 0, len(resources))
	for _, r := range resources {
		names = append(names, "  "+r.usage)
	}
	sort.Strings(names)

	return &cobra.Command{
		Use:   "get <resource> [args]",
		Short: "Read a single resource",
		Long:  "Read a single resource of the API.\n\nResources:\n" + strings.Join(names, "\n"),
		Args:  cobra.MinimumNArgs(1),
		RunE:  cmdGet,
	}
}

func cmdGet(cmd *cobra.Command, args []string) error {
	r, ok := resources[args[0]]
	if !ok {
		return fmt.Errorf("unknown resource: %s", args[0])
	}

	n := len(args) - 1
	if n < r.args || (n > r.args && !(r.year && n == r.args+1)) {
		return fmt.Errorf("usage: quemvota get %s", r.usage)
	}

	var id, year int
	var err error

	if r.args == 1 {
		if id, err = strconv.Atoi(args[1]); err != nil {
			return fmt.Errorf("invalid id: %s", args[1])
		}
	}
	if r.year && n == r.args+1 {
		if year, err = strconv.Atoi(args[n]); err != nil {
			return fmt.Errorf("invalid year: %s", args[n])
		}
	}

	setup(cpath)
	s := newService()
	defer s.Close() //nolint:errcheck

	ctx, cancel := signalContext()
	defer cancel()

	v, err := r.get(ctx, s, id, year)
	if err != nil {
		return err
	}
	return printOut(v)
}
