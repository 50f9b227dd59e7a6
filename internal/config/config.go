package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"

	"github.com/k-negishi/group-calendar-sync/internal/domain"
)

// ssmParameterGetter Parameter Store の読み取り
type ssmParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Config アプリケーション設定構造体
type Config struct {
	// グループカレンダー API設定
	APIBaseURL     string
	APIAccessToken string
	GroupID        domain.ID
	ScheduleID     domain.ID
	SelfUserID     domain.ID

	// 空き状況の集計設定
	StepMinutes     int
	MinPeople       int
	AggregationMode domain.AggregationMode
	HorizonDays     int

	// LINE API設定
	LineChannelAccessToken string
	LineUserID             string

	// 外部の予定ソース
	GoogleCredentials string
	BusySourcesFile   string

	// その他設定
	LogLevel   string
	Timezone   string
	ResyncCron string

	// AWS関連（本番環境でのみ使用）
	ssmClient ssmParameterGetter
}

// Load 環境に応じて設定を読み込み
func Load() (*Config, error) {
	// AWS Lambda環境かどうか判定
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		return loadAWSConfig()
	}
	return loadLocalConfig()
}

// loadLocalConfig ローカル開発環境用の設定読み込み
func loadLocalConfig() (*Config, error) {
	// .envファイルを読み込み（存在する場合のみ）
	if err := godotenv.Load(); err != nil {
		slog.Debug(".envファイルが見つかりません", "error", err)
	}

	cfg, err := fromEnv()
	if err != nil {
		return nil, err
	}
	cfg.APIAccessToken = getEnvOrDefault("API_ACCESS_TOKEN", "")
	cfg.LineChannelAccessToken = getEnvOrDefault("LINE_CHANNEL_ACCESS_TOKEN", "")
	cfg.LineUserID = getEnvOrDefault("LINE_USER_ID", "")
	cfg.GoogleCredentials = getEnvOrDefault("GOOGLE_CREDENTIALS", "")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadAWSConfig AWS Lambda環境用の設定読み込み
func loadAWSConfig() (*Config, error) {
	ctx := context.TODO()

	// AWS設定を初期化
	awsConfig, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("AWS設定の読み込みに失敗しました: %v", err)
	}

	cfg, err := fromEnv()
	if err != nil {
		return nil, err
	}
	cfg.ssmClient = ssm.NewFromConfig(awsConfig)

	// Parameter Storeから機密情報を取得
	if err := cfg.loadFromParameterStore(ctx); err != nil {
		return nil, fmt.Errorf("Parameter Storeからの設定読み込みに失敗しました: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fromEnv 機密情報以外の設定を環境変数から読み込む
func fromEnv() (*Config, error) {
	cfg := &Config{
		APIBaseURL:      getEnvOrDefault("API_BASE_URL", ""),
		GroupID:         domain.ID(getEnvOrDefault("GROUP_ID", "")),
		ScheduleID:      domain.ID(getEnvOrDefault("SCHEDULE_ID", "")),
		SelfUserID:      domain.ID(getEnvOrDefault("SELF_USER_ID", "")),
		AggregationMode: domain.AggregationMode(getEnvOrDefault("AGGREGATION_MODE", string(domain.AggregationActiveOnly))),
		BusySourcesFile: getEnvOrDefault("BUSY_SOURCES_FILE", ""),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "INFO"),
		Timezone:        getEnvOrDefault("TIMEZONE", "Asia/Tokyo"),
		ResyncCron:      getEnvOrDefault("RESYNC_CRON", "*/15 * * * *"),
	}

	var err error
	if cfg.StepMinutes, err = getIntOrDefault("STEP_MINUTES", 30); err != nil {
		return nil, err
	}
	if cfg.MinPeople, err = getIntOrDefault("MIN_PEOPLE", 1); err != nil {
		return nil, err
	}
	if cfg.HorizonDays, err = getIntOrDefault("HORIZON_DAYS", 7); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 必須設定項目と値の範囲を確認
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL環境変数が設定されていません")
	}
	if c.APIAccessToken == "" {
		return fmt.Errorf("API_ACCESS_TOKEN環境変数が設定されていません")
	}
	if c.GroupID.IsZero() {
		return fmt.Errorf("GROUP_ID環境変数が設定されていません")
	}
	if c.StepMinutes <= 0 {
		return fmt.Errorf("STEP_MINUTESは正の値である必要があります: %d", c.StepMinutes)
	}
	if c.MinPeople < 0 {
		return fmt.Errorf("MIN_PEOPLEは0以上である必要があります: %d", c.MinPeople)
	}
	if c.HorizonDays <= 0 {
		return fmt.Errorf("HORIZON_DAYSは正の値である必要があります: %d", c.HorizonDays)
	}
	switch c.AggregationMode {
	case domain.AggregationActiveOnly, domain.AggregationAllMembers:
	default:
		return fmt.Errorf("未対応のAGGREGATION_MODEです: %s", c.AggregationMode)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// RequireLINE LINE通知に必要な設定を確認
func (c *Config) RequireLINE() error {
	if c.LineChannelAccessToken == "" {
		return fmt.Errorf("LINE_CHANNEL_ACCESS_TOKEN環境変数が設定されていません")
	}
	if c.LineUserID == "" {
		return fmt.Errorf("LINE_USER_ID環境変数が設定されていません")
	}
	return nil
}

// loadFromParameterStore Parameter Storeから機密情報を読み込み
func (c *Config) loadFromParameterStore(ctx context.Context) error {
	// API アクセストークンを取得
	apiTokenParam := getEnvOrDefault("API_ACCESS_TOKEN_PARAM", "/group-calendar-sync/api-access-token")
	apiToken, err := c.getParameter(ctx, apiTokenParam, true)
	if err != nil {
		return fmt.Errorf("APIアクセストークンの取得に失敗しました: %v", err)
	}
	c.APIAccessToken = apiToken

	// LINE Channel Access Tokenを取得
	lineTokenParam := getEnvOrDefault("LINE_CHANNEL_ACCESS_TOKEN_PARAM", "/group-calendar-sync/line-channel-access-token")
	lineToken, err := c.getParameter(ctx, lineTokenParam, true)
	if err != nil {
		return fmt.Errorf("LINE Channel Access Tokenの取得に失敗しました: %v", err)
	}
	c.LineChannelAccessToken = lineToken

	// LINE User IDを取得
	lineUserParam := getEnvOrDefault("LINE_USER_ID_PARAM", "/group-calendar-sync/line-user-id")
	lineUser, err := c.getParameter(ctx, lineUserParam, true)
	if err != nil {
		return fmt.Errorf("LINE User IDの取得に失敗しました: %v", err)
	}
	c.LineUserID = lineUser

	// Google認証情報は外部の予定ソースを使う場合のみ
	if googleCredsParam := getEnvOrDefault("GOOGLE_CREDS_PARAM", ""); googleCredsParam != "" {
		googleCreds, err := c.getParameter(ctx, googleCredsParam, true)
		if err != nil {
			return fmt.Errorf("Google認証情報の取得に失敗しました: %v", err)
		}
		c.GoogleCredentials = googleCreds
	}

	return nil
}

// getParameter Parameter Storeから指定されたパラメータを取得
func (c *Config) getParameter(ctx context.Context, paramName string, withDecryption bool) (string, error) {
	input := &ssm.GetParameterInput{
		Name:           aws.String(paramName),
		WithDecryption: aws.Bool(withDecryption),
	}

	result, err := c.ssmClient.GetParameter(ctx, input)
	if err != nil {
		return "", fmt.Errorf("パラメータ %s の取得に失敗しました: %v", paramName, err)
	}

	if result.Parameter == nil || result.Parameter.Value == nil || *result.Parameter.Value == "" {
		return "", fmt.Errorf("パラメータ %s が空の値です", paramName)
	}

	return *result.Parameter.Value, nil
}

// GetGoogleCredentialsJSON Google認証情報をJSONとして解析
func (c *Config) GetGoogleCredentialsJSON() (map[string]interface{}, error) {
	var credentials map[string]interface{}
	if err := json.Unmarshal([]byte(c.GoogleCredentials), &credentials); err != nil {
		return nil, fmt.Errorf("Google認証情報のJSON解析に失敗しました: %v", err)
	}
	return credentials, nil
}

// Location TIMEZONE のロケーション
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("タイムゾーン %s の読み込みに失敗しました: %v", c.Timezone, err)
	}
	return loc, nil
}

// SlogLevel LOG_LEVEL を slog のレベルに変換。不明な値は INFO
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// AvailabilityQuery now の属する日の0時から HORIZON_DAYS 日分のクエリ
func (c *Config) AvailabilityQuery(now time.Time) (domain.AvailabilityQuery, error) {
	loc, err := c.Location()
	if err != nil {
		return domain.AvailabilityQuery{}, err
	}

	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return domain.AvailabilityQuery{
		GroupID:     c.GroupID,
		RangeStart:  start,
		RangeEnd:    start.AddDate(0, 0, c.HorizonDays),
		StepMinutes: c.StepMinutes,
		Mode:        c.AggregationMode,
		MinPeople:   c.MinPeople,
	}, nil
}

// getEnvOrDefault 環境変数を取得し、存在しない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getIntOrDefault 整数の環境変数を取得
func getIntOrDefault(key string, defaultValue int) (int, error) {
	raw := getEnvOrDefault(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s環境変数は整数である必要があります: %q", key, raw)
	}
	return v, nil
}
