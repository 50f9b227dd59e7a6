package config

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/k-negishi/group-calendar-sync/internal/domain"
)

// MockSSMClient は ssmParameterGetter のテスト用モック
type MockSSMClient struct {
	mock.Mock
}

func (m *MockSSMClient) GetParameter(ctx context.Context, params *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ssm.GetParameterOutput), args.Error(1)
}

// --- getEnvOrDefault テスト ---

func TestGetEnvOrDefault_WithValue(t *testing.T) {
	t.Setenv("TEST_ENV_KEY", "test-value")
	result := getEnvOrDefault("TEST_ENV_KEY", "default")
	assert.Equal(t, "test-value", result)
}

func TestGetEnvOrDefault_WithDefault(t *testing.T) {
	result := getEnvOrDefault("NONEXISTENT_KEY_FOR_TEST_12345", "default-value")
	assert.Equal(t, "default-value", result)
}

func TestGetEnvOrDefault_TrimsWhitespace(t *testing.T) {
	t.Setenv("TEST_ENV_WHITESPACE", "  trimmed  ")
	result := getEnvOrDefault("TEST_ENV_WHITESPACE", "default")
	assert.Equal(t, "trimmed", result)
}

// --- GetGoogleCredentialsJSON テスト ---

func TestGetGoogleCredentialsJSON_Valid(t *testing.T) {
	cfg := &Config{GoogleCredentials: `{"type": "service_account", "project_id": "test"}`}
	result, err := cfg.GetGoogleCredentialsJSON()
	require.NoError(t, err)
	assert.Equal(t, "service_account", result["type"])
	assert.Equal(t, "test", result["project_id"])
}

func TestGetGoogleCredentialsJSON_Invalid(t *testing.T) {
	cfg := &Config{GoogleCredentials: "not valid json"}
	_, err := cfg.GetGoogleCredentialsJSON()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Google認証情報のJSON解析に失敗しました")
}

// --- loadLocalConfig テスト ---

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("API_BASE_URL", "https://calendar.example.com")
	t.Setenv("API_ACCESS_TOKEN", "api-token")
	t.Setenv("GROUP_ID", "42")
}

func TestLoadLocalConfig_MissingRequired(t *testing.T) {
	// 必須環境変数が未設定の状態をシミュレート
	t.Setenv("API_BASE_URL", "")
	t.Setenv("API_ACCESS_TOKEN", "")
	t.Setenv("GROUP_ID", "")

	_, err := loadLocalConfig()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "環境変数が設定されていません")
}

func TestLoadLocalConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)
	for _, key := range []string{"STEP_MINUTES", "MIN_PEOPLE", "HORIZON_DAYS", "AGGREGATION_MODE", "TIMEZONE", "LOG_LEVEL", "RESYNC_CRON"} {
		t.Setenv(key, "")
	}

	cfg, err := loadLocalConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://calendar.example.com", cfg.APIBaseURL)
	assert.Equal(t, "api-token", cfg.APIAccessToken)
	assert.Equal(t, domain.ID("42"), cfg.GroupID)
	assert.Equal(t, 30, cfg.StepMinutes)
	assert.Equal(t, 1, cfg.MinPeople)
	assert.Equal(t, 7, cfg.HorizonDays)
	assert.Equal(t, domain.AggregationActiveOnly, cfg.AggregationMode)
	assert.Equal(t, "Asia/Tokyo", cfg.Timezone)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "*/15 * * * *", cfg.ResyncCron)
}

func TestLoadLocalConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		contains string
	}{
		{name: "整数でないステップ幅", key: "STEP_MINUTES", value: "thirty", contains: "整数である必要があります"},
		{name: "0のステップ幅", key: "STEP_MINUTES", value: "0", contains: "STEP_MINUTES"},
		{name: "負の最少人数", key: "MIN_PEOPLE", value: "-1", contains: "MIN_PEOPLE"},
		{name: "未対応の集計モード", key: "AGGREGATION_MODE", value: "everyone", contains: "AGGREGATION_MODE"},
		{name: "不明なタイムゾーン", key: "TIMEZONE", value: "Mars/Olympus", contains: "タイムゾーン"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := loadLocalConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestRequireLINE(t *testing.T) {
	assert.Error(t, (&Config{LineUserID: "U1"}).RequireLINE())
	assert.Error(t, (&Config{LineChannelAccessToken: "token"}).RequireLINE())
	assert.NoError(t, (&Config{LineChannelAccessToken: "token", LineUserID: "U1"}).RequireLINE())
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, (&Config{LogLevel: "debug"}).SlogLevel())
	assert.Equal(t, slog.LevelWarn, (&Config{LogLevel: "WARN"}).SlogLevel())
	assert.Equal(t, slog.LevelError, (&Config{LogLevel: "ERROR"}).SlogLevel())
	assert.Equal(t, slog.LevelInfo, (&Config{LogLevel: "verbose"}).SlogLevel())
}

func TestAvailabilityQuery(t *testing.T) {
	cfg := &Config{
		GroupID:         "42",
		StepMinutes:     30,
		MinPeople:       2,
		AggregationMode: domain.AggregationActiveOnly,
		HorizonDays:     7,
		Timezone:        "Asia/Tokyo",
	}

	// JST では 1/16 の 08:30
	now := time.Date(2024, 1, 15, 23, 30, 0, 0, time.UTC)

	q, err := cfg.AvailabilityQuery(now)
	require.NoError(t, err)
	assert.True(t, q.Valid())
	assert.Equal(t, domain.ID("42"), q.GroupID)
	assert.True(t, q.RangeStart.Equal(time.Date(2024, 1, 15, 15, 0, 0, 0, time.UTC)))
	assert.True(t, q.RangeEnd.Equal(time.Date(2024, 1, 22, 15, 0, 0, 0, time.UTC)))
	assert.Equal(t, 30, q.StepMinutes)
	assert.Equal(t, 2, q.MinPeople)
}

// --- getParameter テスト（モック使用） ---

func TestGetParameter_Success(t *testing.T) {
	mockSSM := new(MockSSMClient)
	cfg := &Config{ssmClient: mockSSM}

	output := &ssm.GetParameterOutput{
		Parameter: &types.Parameter{
			Value: aws.String("test-value"),
		},
	}

	mockSSM.On("GetParameter", mock.Anything, mock.MatchedBy(func(input *ssm.GetParameterInput) bool {
		return *input.Name == "/test/param" && *input.WithDecryption == true
	})).Return(output, nil)

	result, err := cfg.getParameter(context.Background(), "/test/param", true)
	require.NoError(t, err)
	assert.Equal(t, "test-value", result)
	mockSSM.AssertExpectations(t)
}

func TestGetParameter_EmptyValue(t *testing.T) {
	mockSSM := new(MockSSMClient)
	cfg := &Config{ssmClient: mockSSM}

	output := &ssm.GetParameterOutput{
		Parameter: &types.Parameter{
			Value: aws.String(""),
		},
	}

	mockSSM.On("GetParameter", mock.Anything, mock.Anything).Return(output, nil)

	_, err := cfg.getParameter(context.Background(), "/test/param", true)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "空の値です")
}

func TestGetParameter_APIError(t *testing.T) {
	mockSSM := new(MockSSMClient)
	cfg := &Config{ssmClient: mockSSM}

	mockSSM.On("GetParameter", mock.Anything, mock.Anything).Return(nil, errors.New("SSM API error"))

	_, err := cfg.getParameter(context.Background(), "/test/param", true)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "パラメータ /test/param の取得に失敗しました")
	mockSSM.AssertExpectations(t)
}

func TestLoadFromParameterStore(t *testing.T) {
	mockSSM := new(MockSSMClient)
	cfg := &Config{ssmClient: mockSSM}

	// デフォルトのパラメータ名を使用させるため環境変数をクリア
	t.Setenv("API_ACCESS_TOKEN_PARAM", "")
	t.Setenv("LINE_CHANNEL_ACCESS_TOKEN_PARAM", "")
	t.Setenv("LINE_USER_ID_PARAM", "")
	t.Setenv("GOOGLE_CREDS_PARAM", "")

	// 各パラメータの取得を設定
	mockSSM.On("GetParameter", mock.Anything, mock.MatchedBy(func(input *ssm.GetParameterInput) bool {
		return *input.Name == "/group-calendar-sync/api-access-token"
	})).Return(&ssm.GetParameterOutput{
		Parameter: &types.Parameter{Value: aws.String("api-token-value")},
	}, nil)

	mockSSM.On("GetParameter", mock.Anything, mock.MatchedBy(func(input *ssm.GetParameterInput) bool {
		return *input.Name == "/group-calendar-sync/line-channel-access-token"
	})).Return(&ssm.GetParameterOutput{
		Parameter: &types.Parameter{Value: aws.String("line-token-value")},
	}, nil)

	mockSSM.On("GetParameter", mock.Anything, mock.MatchedBy(func(input *ssm.GetParameterInput) bool {
		return *input.Name == "/group-calendar-sync/line-user-id"
	})).Return(&ssm.GetParameterOutput{
		Parameter: &types.Parameter{Value: aws.String("line-user-id-value")},
	}, nil)

	err := cfg.loadFromParameterStore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "api-token-value", cfg.APIAccessToken)
	assert.Equal(t, "line-token-value", cfg.LineChannelAccessToken)
	assert.Equal(t, "line-user-id-value", cfg.LineUserID)
	assert.Empty(t, cfg.GoogleCredentials)
	mockSSM.AssertExpectations(t)
}

func TestLoadFromParameterStore_WithGoogleCredentials(t *testing.T) {
	mockSSM := new(MockSSMClient)
	cfg := &Config{ssmClient: mockSSM}

	t.Setenv("GOOGLE_CREDS_PARAM", "/group-calendar-sync/google-creds")

	mockSSM.On("GetParameter", mock.Anything, mock.MatchedBy(func(input *ssm.GetParameterInput) bool {
		return *input.Name == "/group-calendar-sync/google-creds"
	})).Return(&ssm.GetParameterOutput{
		Parameter: &types.Parameter{Value: aws.String(`{"type":"service_account"}`)},
	}, nil)
	mockSSM.On("GetParameter", mock.Anything, mock.Anything).Return(&ssm.GetParameterOutput{
		Parameter: &types.Parameter{Value: aws.String("value")},
	}, nil)

	err := cfg.loadFromParameterStore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"type":"service_account"}`, cfg.GoogleCredentials)
}

func TestLoadFromParameterStore_Error(t *testing.T) {
	mockSSM := new(MockSSMClient)
	cfg := &Config{ssmClient: mockSSM}

	mockSSM.On("GetParameter", mock.Anything, mock.Anything).Return(nil, errors.New("AccessDenied"))

	err := cfg.loadFromParameterStore(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "APIアクセストークンの取得に失敗しました")
}
