package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/k-negishi/group-calendar-sync/internal/config"
	"github.com/k-negishi/group-calendar-sync/internal/gateway"
	"github.com/k-negishi/group-calendar-sync/internal/usecase"
)

// LambdaEvent Lambda実行時のイベント構造体
type LambdaEvent struct {
	// GroupName 通知に使うグループ名。空ならサーバーから取得する
	GroupName string `json:"groupName,omitempty"`
}

// LambdaResponse Lambda実行結果のレスポンス
type LambdaResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// handler Lambda関数のメインハンドラー
func handler(ctx context.Context, event LambdaEvent) (LambdaResponse, error) {

	// 設定を読み込み
	cfg, err := config.Load()
	if err != nil {
		return LambdaResponse{
			StatusCode: 500,
			Message:    "設定読み込みエラー",
		}, err
	}
	if err := cfg.RequireLINE(); err != nil {
		return LambdaResponse{
			StatusCode: 500,
			Message:    "設定読み込みエラー",
		}, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	// 設定したタイムゾーンで今日から HORIZON_DAYS 日分
	query, err := cfg.AvailabilityQuery(time.Now())
	if err != nil {
		return LambdaResponse{
			StatusCode: 500,
			Message:    "設定読み込みエラー",
		}, err
	}
	loc, _ := cfg.Location()

	apiClient := gateway.NewAPIClient(cfg.APIBaseURL, cfg.APIAccessToken, cfg.SelfUserID, logger)
	lineNotifier := gateway.NewLINENotifier(cfg.LineChannelAccessToken, cfg.LineUserID, loc)

	groupName := event.GroupName
	if groupName == "" {
		groupName, err = apiClient.GetGroupName(ctx, cfg.GroupID)
		if err != nil {
			// 名前が取れなくても通知は続ける
			logger.Warn("グループ名の取得に失敗しました", "group_id", cfg.GroupID.String(), "error", err)
			groupName = "グループ " + cfg.GroupID.String()
		}
	}

	uc := usecase.NewNotifyFreeSlotsUseCase(apiClient, lineNotifier, logger)
	skipped, err := uc.Execute(ctx, groupName, query)
	if err != nil {
		return LambdaResponse{
			StatusCode: 500,
			Message:    "空き時間通知エラー",
		}, err
	}

	if skipped {
		return LambdaResponse{
			StatusCode: 200,
			Message:    "共通の空き時間なしのため通知スキップ",
		}, nil
	}

	return LambdaResponse{
		StatusCode: 200,
		Message:    "通知送信完了",
	}, nil
}

func main() {
	lambda.Start(handler)
}
