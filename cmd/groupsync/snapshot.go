package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/k-negishi/group-calendar-sync/internal/availability"
	"github.com/k-negishi/group-calendar-sync/internal/config"
	"github.com/k-negishi/group-calendar-sync/internal/domain"
	"github.com/k-negishi/group-calendar-sync/internal/gateway"
)

func snapshotCommand() *cli.Command {
	return &cli.Command{
		Name:  "snapshot",
		Usage: "サーバーが集計したグループの空き状況を表示する",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "days", Usage: "表示する日数 (既定値は HORIZON_DAYS)"},
			&cli.IntFlag{Name: "min", Usage: "強調する最少人数 (既定値は MIN_PEOPLE)"},
			&cli.BoolFlag{Name: "all", Usage: "強調対象以外のスロットも表示する"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.LogLevel)

			if c.IsSet("days") {
				cfg.HorizonDays = c.Int("days")
			}
			if c.IsSet("min") {
				cfg.MinPeople = c.Int("min")
			}

			query, err := cfg.AvailabilityQuery(time.Now())
			if err != nil {
				return err
			}
			loc, _ := cfg.Location()

			client := availability.NewSnapshotClient(gateway.NewAPIClient(cfg.APIBaseURL, cfg.APIAccessToken, cfg.SelfUserID, logger), logger)
			result := client.Fetch(c.Context, query)
			if result.Err != nil {
				return fmt.Errorf("空き状況の取得に失敗しました: %w", result.Err)
			}

			snapshot := result.Snapshot
			fmt.Printf("アクティブ %d人 / メンバー %d人 (スケジュール未選択 %d人)\n",
				snapshot.ActiveCount, snapshot.TotalMembers, snapshot.MissingCount)

			slots := snapshot.Highlighted(query.MinPeople)
			if c.Bool("all") {
				slots = snapshot.Slots
			}
			if len(slots) == 0 {
				fmt.Println("表示するスロットはありません")
				return nil
			}
			for _, slot := range slots {
				printAvailabilitySlot(slot, loc)
			}
			return nil
		},
	}
}

func printAvailabilitySlot(slot domain.AvailabilitySlot, loc *time.Location) {
	fmt.Printf("%s - %s  %d人\n",
		slot.Start.In(loc).Format("01/02 15:04"),
		slot.End.In(loc).Format("15:04"),
		slot.Available)
}
