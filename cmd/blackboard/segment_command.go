package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yungbote/blackboard-backend/internal/lesson/subtitle"
)

func newSegmentCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:         "segment [text]",
		Short:       "Split narration text into subtitle chunks (reads stdin when no text is given)",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 0 || text == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(b)
			}
			if strings.TrimSpace(text) == "" {
				return errors.New("no text to segment")
			}

			chunks := subtitle.Segment(text)
			if asJSON {
				return writeJSON(cmd, chunks)
			}
			rows := make([][]string, 0, len(chunks))
			for i, c := range chunks {
				rows = append(rows, []string{strconv.Itoa(i + 1), c})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"#", "Subtitle"},
				rows,
				[]columnAlignment{alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print chunks as a JSON array")
	return cmd
}
