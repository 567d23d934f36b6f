package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sanosuguru/go-tour-reservation/internal/domain/reservation"
)

// Config はNATS接続設定
type Config struct {
	URL string
}

// Publisher は予約ドメインイベントをNATSに配信する
// サブジェクトはイベント種別（reservation.held など）をそのまま使う
type Publisher struct {
	conn *nats.Conn
}

// NewPublisher はNATSに接続してPublisherを作成する
func NewPublisher(cfg *Config) (*Publisher, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("NATS接続エラー: %w", err)
	}
	return &Publisher{conn: conn}, nil
}

// Publish はイベントをJSONで配信する
// 配信は at-least-once であり、重複排除は消費側が EventID で行う
func (p *Publisher) Publish(event *reservation.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("イベントのシリアライズに失敗: %w", err)
	}
	if err := p.conn.Publish(event.Type, payload); err != nil {
		return fmt.Errorf("イベント配信に失敗: %w", err)
	}
	return nil
}

// Close は接続を閉じる。未送信バッファはフラッシュしてから閉じる
func (p *Publisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
