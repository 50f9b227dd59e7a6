package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BusySourceConfig グループ外の予定ソース1件
//
// ics_url と google_calendar_id のどちらか一方を指定する。
type BusySourceConfig struct {
	Name             string `yaml:"name"`
	ICSURL           string `yaml:"ics_url"`
	GoogleCalendarID string `yaml:"google_calendar_id"`
}

type busySourcesFile struct {
	Sources []BusySourceConfig `yaml:"sources"`
}

// LoadBusySources BUSY_SOURCES_FILE の YAML を読み込む。path が空なら何も返さない
//
// ics_url 中の ${VAR} は環境変数で展開する。
func LoadBusySources(path string) ([]BusySourceConfig, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("予定ソースファイルの読み込みに失敗しました: %w", err)
	}

	var file busySourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("予定ソースファイルの解析に失敗しました: %w", err)
	}

	sources := make([]BusySourceConfig, 0, len(file.Sources))
	for i, src := range file.Sources {
		src.ICSURL = os.ExpandEnv(src.ICSURL)
		if err := src.validate(); err != nil {
			return nil, fmt.Errorf("予定ソース %d: %w", i, err)
		}
		if src.Name == "" {
			src.Name = fmt.Sprintf("source-%d", i+1)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func (s BusySourceConfig) validate() error {
	switch {
	case s.ICSURL == "" && s.GoogleCalendarID == "":
		return errors.New("ics_url か google_calendar_id を指定してください")
	case s.ICSURL != "" && s.GoogleCalendarID != "":
		return errors.New("ics_url と google_calendar_id は同時に指定できません")
	}
	return nil
}
