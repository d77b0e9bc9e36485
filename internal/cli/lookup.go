package cli

import (
	"fmt"
	"strings"

	"github.com/hyperjump/ruiji/internal/keyword"
	"github.com/spf13/cobra"
)

func newLookupCommand(opts *globalOptions) *cobra.Command {
	var (
		limit     int
		fuzziness int
	)
	cmd := &cobra.Command{
		Use:   "lookup <words>...",
		Short: "Find stored ids by the words in their paths",
		Long: `Find stored ids containing every given word. Ids are split into words at every
character that is not a letter or digit, so "photos/cat_01.jpg" matches "cat 01".
Use the result with "ruiji search --id".

Examples:
  ruiji lookup cat
  ruiji lookup --fuzzy 1 vacaton 2023`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.format()
			if err != nil {
				return err
			}
			if fuzziness < 0 || fuzziness > 2 {
				return fmt.Errorf("--fuzzy must be 0, 1 or 2, got %d", fuzziness)
			}
			cfg, _, logger, err := opts.setup(false)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			components, err := initializeComponents(ctx, cfg, logger, needs{ids: true})
			if err != nil {
				return err
			}
			defer components.Close()

			if limit <= 0 {
				limit = cfg.Search.DefaultLimit
			}
			hits, err := components.IDs.Search(ctx, strings.Join(args, " "), limit, &keyword.SearchOptions{Fuzziness: fuzziness})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if format == OutputJSON {
				return writeJSON(out, map[string]interface{}{"hits": hits})
			}
			for _, h := range hits {
				fmt.Fprintln(out, h.ID)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum ids to return (default from config)")
	cmd.Flags().IntVar(&fuzziness, "fuzzy", 0, "allowed edits per word (0-2)")
	return cmd
}
