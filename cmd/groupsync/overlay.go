package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/k-negishi/group-calendar-sync/internal/config"
	"github.com/k-negishi/group-calendar-sync/internal/domain"
	"github.com/k-negishi/group-calendar-sync/internal/gateway"
	"github.com/k-negishi/group-calendar-sync/internal/usecase"
)

func overlayCommand() *cli.Command {
	return &cli.Command{
		Name:  "overlay",
		Usage: "選択したメンバーと外部の予定ソースの共通の空き時間を表示する",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "member", Usage: "対象メンバーのID (省略時は全員)"},
			&cli.StringFlag{Name: "date", Usage: "開始日 YYYY-MM-DD (省略時は今日)"},
			&cli.IntFlag{Name: "days", Value: 1, Usage: "対象の日数"},
			&cli.IntFlag{Name: "step", Usage: "スロットの分数 (既定値は STEP_MINUTES)"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.LogLevel)

			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			start, err := overlayStart(c.String("date"), time.Now(), loc)
			if err != nil {
				return err
			}
			step := cfg.StepMinutes
			if c.IsSet("step") {
				step = c.Int("step")
			}
			grid := domain.TimeGrid{
				RangeStart:  start,
				RangeEnd:    start.AddDate(0, 0, c.Int("days")),
				StepMinutes: step,
			}

			sources, err := buildBusySources(c.Context, cfg, logger)
			if err != nil {
				return err
			}

			selected := make([]domain.ID, 0)
			for _, id := range c.StringSlice("member") {
				selected = append(selected, domain.ID(id))
			}

			apiClient := gateway.NewAPIClient(cfg.APIBaseURL, cfg.APIAccessToken, cfg.SelfUserID, logger)
			uc := usecase.NewOverlayUseCase(apiClient, sources, logger)

			overlay, err := uc.Execute(c.Context, cfg.GroupID, selected, grid)
			if err != nil {
				return err
			}

			for _, id := range overlay.Excluded {
				fmt.Printf("メンバー %s はスケジュール未選択のため除外しました\n", id)
			}
			if !overlay.Meaningful() {
				fmt.Println("対象の参加者がいません")
				return nil
			}

			free := 0
			for _, slot := range overlay.Slots {
				if !slot.FreeForAll {
					continue
				}
				free++
				fmt.Printf("%s - %s\n", slot.Start.In(loc).Format("01/02 15:04"), slot.End.In(loc).Format("15:04"))
			}
			if free == 0 {
				fmt.Println("共通の空き時間はありません")
			}
			return nil
		},
	}
}

// overlayStart --date の日の0時。空なら now の日
func overlayStart(date string, now time.Time, loc *time.Location) (time.Time, error) {
	if date == "" {
		local := now.In(loc)
		return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc), nil
	}
	t, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("日付の形式が不正です: %q", date)
	}
	return t, nil
}
