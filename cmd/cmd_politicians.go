package main

import (
	"github.com/WrongProvider/quemVota-sub000/serv"
	"github.com/spf13/cobra"
)

var (
	polQuery string
	polUF    string
	polParty string
	polPages int
	polLimit int
)

func politiciansCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "politicians",
		Short: "List politicians page by page",
		Long: `List politicians matching the given filters.

Pages are loaded one after the other until --pages pages were read
or the list ends.`,
		Args: cobra.NoArgs,
		RunE: cmdPoliticians,
	}
	c.Flags().StringVar(&polQuery, "q", "", "Free-text name search")
	c.Flags().StringVar(&polUF, "uf", "", "Two-letter state code")
	c.Flags().StringVar(&polParty, "party", "", "Party acronym")
	c.Flags().IntVar(&polPages, "pages", 1, "Number of pages to load")
	c.Flags().IntVar(&polLimit, "limit", 0, "Page size (defaults to pagination.page_size)")
	return c
}

type politiciansOutput struct {
	Items   []serv.Politician `json:"items"`
	Offsets []int             `json:"offsets"`
	HasMore bool              `json:"has_more"`
}

func cmdPoliticians(cmd *cobra.Command, args []string) error {
	setup(cpath)
	s := newService()
	defer s.Close() //nolint:errcheck

	ctx, cancel := signalContext()
	defer cancel()

	p := s.Politicians(serv.PoliticianFilter{
		Query: polQuery,
		UF:    polUF,
		Party: polParty,
	}, polLimit)

	for i := 0; i < polPages && p.HasNextPage(); i++ {
		if _, _, err := p.FetchNextPage(ctx); err != nil {
			return err
		}
	}

	return printOut(politiciansOutput{
		Items:   p.Items(),
		Offsets: p.Offsets(),
		HasMore: p.HasNextPage(),
	})
}
