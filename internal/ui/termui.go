package ui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/skalibog/bstb/internal/config"
	"github.com/skalibog/bstb/pkg/logger"
	"github.com/skalibog/bstb/pkg/models"
	"go.uber.org/zap"
)

// Стили UI
var (
	primaryColor = lipgloss.Color("#0077cc")
	dimColor     = lipgloss.Color("#333333")
	errorColor   = lipgloss.Color("#cc3300")
	successColor = lipgloss.Color("#33cc33")
	warningColor = lipgloss.Color("#cccc00")

	appStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor)
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(primaryColor).
			Padding(0, 1).
			Align(lipgloss.Center)
	sectionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#ffffff")).
				Background(dimColor).
				Padding(0, 1)
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(dimColor).
			Padding(0, 1)
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#999999")).
			Padding(0, 1)
)

// TermUI — терминальный интерфейс: сигналы, позиции и хвост логов
type TermUI struct {
	cfg config.UIConfig

	signalsMutex sync.RWMutex
	signals      map[string]*models.SignalResult

	positionsMutex sync.RWMutex
	positions      map[string]*models.Position

	logsMutex sync.RWMutex
	logs      []string

	program *tea.Program
	width   int
	height  int
}

type refreshMsg struct{}

type bubbleModel struct {
	ui *TermUI
}

// NewTermUI создает терминальный интерфейс
func NewTermUI(cfg config.UIConfig) *TermUI {
	ui := &TermUI{
		cfg:       cfg,
		signals:   make(map[string]*models.SignalResult),
		positions: make(map[string]*models.Position),
		logs:      []string{"bstb запущен. Ожидание данных..."},
		width:     120,
		height:    40,
	}

	// Таймер подгрузки логов из JSON-файла логгера
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.RefreshRate) * time.Millisecond)
		defer ticker.Stop()

		for range ticker.C {
			if err := ui.loadLogsFromFile(); err != nil {
				logger.Warn("Ошибка загрузки логов", zap.Error(err))
			}
			if ui.program != nil {
				ui.program.Send(refreshMsg{})
			}
		}
	}()

	return ui
}

// Start запускает UI в текущей горутине (блокирующий вызов)
func (ui *TermUI) Start() error {
	ui.program = tea.NewProgram(bubbleModel{ui: ui}, tea.WithAltScreen())
	_, err := ui.program.Run()
	return err
}

// UpdateSignal принимает свежий результат цикла оценки
func (ui *TermUI) UpdateSignal(signal *models.SignalResult) {
	ui.signalsMutex.Lock()
	ui.signals[signal.Symbol] = signal
	ui.signalsMutex.Unlock()

	if ui.program != nil {
		ui.program.Send(refreshMsg{})
	}
}

// UpdatePosition принимает состояние позиции; nil означает закрытие
func (ui *TermUI) UpdatePosition(symbol string, pos *models.Position) {
	ui.positionsMutex.Lock()
	if pos == nil {
		delete(ui.positions, symbol)
	} else {
		snapshot := *pos
		ui.positions[symbol] = &snapshot
	}
	ui.positionsMutex.Unlock()

	if ui.program != nil {
		ui.program.Send(refreshMsg{})
	}
}

// loadLogsFromFile читает хвост JSON-лога и форматирует для отображения
func (ui *TermUI) loadLogsFromFile() error {
	file, err := os.Open(logger.JSONLogFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	ansiRegex := regexp.MustCompile(`\x1b\[[0-9;]*m`)
	scanner := bufio.NewScanner(file)
	var logs []string

	for scanner.Scan() {
		line := scanner.Text()

		var zapLog map[string]interface{}
		if err := json.Unmarshal([]byte(line), &zapLog); err == nil {
			level, _ := zapLog["level"].(string)
			ts, _ := zapLog["ts"].(string)
			msg, _ := zapLog["msg"].(string)

			level = ansiRegex.ReplaceAllString(level, "")

			timestamp := ""
			if t, err := time.Parse("02.01.2006 - 15:04:05.999999999Z07:00", ts); err == nil {
				timestamp = t.Format("15:04:05")
			}

			formatted := fmt.Sprintf("[%s] [%s] %s", timestamp, level, msg)
			for k, v := range zapLog {
				if k != "level" && k != "ts" && k != "msg" && k != "caller" {
					formatted += fmt.Sprintf(" (%s: %v)", k, v)
				}
			}
			logs = append(logs, formatted)
		} else {
			logs = append(logs, line)
		}

		if len(logs) > 50 {
			logs = logs[1:]
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	ui.logsMutex.Lock()
	if len(logs) > 0 {
		ui.logs = logs
	}
	ui.logsMutex.Unlock()

	return nil
}

// Методы для bubbletea
func (m bubbleModel) Init() tea.Cmd {
	return nil
}

func (m bubbleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.ui.width = msg.Width
		m.ui.height = msg.Height
	case refreshMsg:
		// Просто перерисовываем
	}
	return m, nil
}

func (m bubbleModel) View() string {
	m.ui.signalsMutex.RLock()
	m.ui.positionsMutex.RLock()
	m.ui.logsMutex.RLock()
	defer m.ui.signalsMutex.RUnlock()
	defer m.ui.positionsMutex.RUnlock()
	defer m.ui.logsMutex.RUnlock()

	title := titleStyle.Render("BSTB - Binance Spot Trading Bot")
	signals := renderSignalsSection(m.ui.signals)
	positions := renderPositionsSection(m.ui.positions)
	logs := renderLogsSection(m.ui.logs)
	footer := footerStyle.Render("Клавиши: Q - выход")

	return appStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			title,
			"\n",
			signals,
			"\n",
			positions,
			"\n",
			logs,
			"\n",
			footer,
		),
	)
}

func renderSignalsSection(signals map[string]*models.SignalResult) string {
	header := sectionHeaderStyle.Render("СИГНАЛЫ")
	content := strings.Builder{}

	symbols := sortedKeys(signals)
	if len(symbols) == 0 {
		content.WriteString("  Ожидание данных...\n")
	}
	for _, symbol := range symbols {
		s := signals[symbol]
		line := fmt.Sprintf("  %s: %s buy=%.2f sell=%.2f стакан=%.2f цена=%.6f",
			symbol, formatAction(s.Action), s.BuyScore, s.SellScore, s.BidRatio, s.CurrentPrice)
		content.WriteString(line + "\n")
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left, header, content.String()),
	)
}

func renderPositionsSection(positions map[string]*models.Position) string {
	header := sectionHeaderStyle.Render("ПОЗИЦИИ")
	content := strings.Builder{}

	symbols := make([]string, 0, len(positions))
	for symbol := range positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	if len(symbols) == 0 {
		content.WriteString("  Нет открытых позиций\n")
	}
	for _, symbol := range symbols {
		p := positions[symbol]
		line := fmt.Sprintf("  %s: вход=%.6f кол-во=%.6f максимум=%.6f цель=%.1f%%",
			symbol, p.EntryPrice, p.Quantity, p.HighestPrice, p.TakeProfitPct*100)
		content.WriteString(line + "\n")
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left, header, content.String()),
	)
}

func renderLogsSection(logs []string) string {
	header := sectionHeaderStyle.Render("ЛОГИ")
	content := strings.Builder{}

	maxLogsToShow := 10
	start := 0
	if len(logs) > maxLogsToShow {
		start = len(logs) - maxLogsToShow
	}

	for i := start; i < len(logs); i++ {
		log := logs[i]
		if strings.Contains(log, "[ERROR]") {
			log = lipgloss.NewStyle().Foreground(errorColor).Render(log)
		} else if strings.Contains(log, "[INFO]") {
			log = lipgloss.NewStyle().Foreground(successColor).Render(log)
		} else if strings.Contains(log, "[WARN]") {
			log = lipgloss.NewStyle().Foreground(warningColor).Render(log)
		} else if strings.Contains(log, "[DEBUG]") {
			log = lipgloss.NewStyle().Foreground(lipgloss.Color("#9999ff")).Render(log)
		}
		content.WriteString("  " + log + "\n")
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left, header, content.String()),
	)
}

func formatAction(action models.Action) string {
	switch action {
	case models.ActionBuy:
		return lipgloss.NewStyle().Foreground(successColor).Bold(true).Render("ПОКУПКА")
	case models.ActionSell:
		return lipgloss.NewStyle().Foreground(errorColor).Bold(true).Render("ПРОДАЖА")
	default:
		return lipgloss.NewStyle().Foreground(warningColor).Render("ОЖИДАНИЕ")
	}
}

func sortedKeys(signals map[string]*models.SignalResult) []string {
	keys := make([]string, 0, len(signals))
	for k := range signals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
