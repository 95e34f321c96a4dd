// Package voice は音声キーワードによる撮影トリガーを担う
//
// 外部の音声認識コマンドを起動してstdoutの転写テキストを監視し、
// キーワードが現れたら撮影トリガーを呼び出す。UI由来のトリガーと
// 並行して発火しても安全である（重複排除はセッション側のIdleガードが担う）
package voice

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"sync"
)

// DefaultKeyword は既定の撮影キーワード
const DefaultKeyword = "smile"

// Trigger は撮影トリガーの呼び出し先を表す
// TriggerCaptureはトリガーが受理されたかどうかを返す
type Trigger interface {
	TriggerCapture() bool
}

// Listener は音声認識コマンドの出力からキーワードを監視する
type Listener struct {
	command []string // 転写テキストを行単位でstdoutへ出すコマンド
	keyword string
	trigger Trigger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewListener は新しいListenerを作成する
func NewListener(command []string, keyword string, trigger Trigger) *Listener {
	if keyword == "" {
		keyword = DefaultKeyword
	}
	return &Listener{
		command: command,
		keyword: strings.ToLower(keyword),
		trigger: trigger,
	}
}

// Start は監視ゴルーチンを開始する
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return fmt.Errorf("音声リスナーは既に開始されています")
	}
	if len(l.command) == 0 {
		return fmt.Errorf("音声認識コマンドが設定されていません")
	}

	runCtx, cancel := context.WithCancel(ctx)

	cmd := exec.CommandContext(runCtx, l.command[0], l.command[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("音声認識コマンドの起動に失敗: %w", err)
	}

	l.cancel = cancel
	l.started = true

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() {
			_ = cmd.Wait() // キャンセル時のエラーは無視
		}()

		log.Printf("音声リスナーを開始しました (キーワード: %q)", l.keyword)

		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			line := strings.ToLower(scanner.Text())
			if strings.Contains(line, l.keyword) {
				log.Printf("キーワードを検出しました: %q", l.keyword)
				if !l.trigger.TriggerCapture() {
					log.Print("撮影中のためトリガーをスキップしました")
				}
			}
		}
	}()

	return nil
}

// Stop は監視を停止しコマンドを終了させる
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.started {
		return
	}

	l.cancel()
	l.wg.Wait()
	l.started = false
}
