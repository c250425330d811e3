package main

import (
	"bufio"
	"os"
	"strings"

	"github.com/WrongProvider/quemVota-sub000/serv"
	"github.com/spf13/cobra"
)

var (
	searchUF    string
	searchParty string
)

const moreCommand = ":more"

func searchCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "search",
		Short: "Search politicians interactively",
		Long: `Search politicians by name reading one query per line from stdin.

Queries typed in quick succession are collapsed and only the last one
is sent. A line with ` + moreCommand + ` loads the next page of the current query.
The log level and rate limit follow edits of the config file.`,
		Args: cobra.NoArgs,
		RunE: cmdSearch,
	}
	c.Flags().StringVar(&searchUF, "uf", "", "Two-letter state code")
	c.Flags().StringVar(&searchParty, "party", "", "Party acronym")
	return c
}

func cmdSearch(cmd *cobra.Command, args []string) error {
	setup(cpath)
	s := newService()
	defer s.Close() //nolint:errcheck
	s.WatchConfig(level)

	ctx, cancel := signalContext()
	defer cancel()

	ss := s.NewSearch(ctx, serv.PoliticianFilter{UF: searchUF, Party: searchParty})
	defer ss.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case r := <-ss.Results():
				printResult(r)
			case <-ctx.Done():
				select {
				case r := <-ss.Results():
					printResult(r)
				default:
				}
				return
			}
		}
	}()

	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == moreCommand {
			ss.Flush()
			ss.More()
			continue
		}
		ss.Type(line)
	}
	ss.Flush()

	if err := sc.Err(); err != nil {
		return err
	}

	cancel()
	<-done
	return nil
}

func printResult(r serv.SearchResult) {
	if r.Err != nil {
		log.Errorw("search failed", "q", r.Query, "error", r.Err)
		return
	}
	if err := printOut(r); err != nil {
		log.Error(err)
	}
}
