package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/blackboard-backend/internal/data/db"
	lessonrepo "github.com/yungbote/blackboard-backend/internal/data/repos/lesson"
	"github.com/yungbote/blackboard-backend/internal/platform/dbctx"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var boardID string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored lessons of a board, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			boardID = strings.TrimSpace(boardID)
			if boardID == "" {
				return errors.New("--board is required")
			}
			cfg, log, err := ctx.logger()
			if err != nil {
				return err
			}
			defer log.Sync()

			dbs, err := db.Open(log, cfg.DB)
			if err != nil {
				return err
			}
			defer dbs.Close()
			if err := dbs.AutoMigrateAll(); err != nil {
				return err
			}

			repo := lessonrepo.NewLessonPlanRepo(dbs.DB(), log)
			rows, err := repo.ListByBoard(dbctx.Of(cmd.Context()), boardID, limit)
			if err != nil {
				return fmt.Errorf("list lessons: %w", err)
			}
			if asJSON {
				return writeJSON(cmd, rows)
			}
			if len(rows) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No lessons for board %s\n", boardID)
				return nil
			}

			table := make([][]string, 0, len(rows))
			for _, rec := range rows {
				fallback := ""
				if rec.Fallback {
					fallback = "yes"
				}
				table = append(table, []string{
					rec.ID.String(),
					rec.CreatedAt.Local().Format(time.DateTime),
					rec.Language,
					strconv.Itoa(rec.StepCount),
					fallback,
					truncate(rec.Prompt, 48),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Created", "Language", "Steps", "Fallback", "Prompt"},
				table,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVarP(&boardID, "board", "b", "", "Board id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum lessons to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print lessons as JSON")
	return cmd
}
